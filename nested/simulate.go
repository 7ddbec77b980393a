package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/barnettlynn/nfctools/nested/internal/config"
	"github.com/barnettlynn/nfctools/pkg/mfclassic"
	"github.com/barnettlynn/nfctools/pkg/mfsim"
)

const (
	defaultSimDistance  = 840
	defaultSimTargetKey = mfclassic.Key(0x112233445566)
)

// newSimulatedCard builds the card used with -simulate. Every sector opens
// with the source key except the target sector, whose target key type uses
// simulation.target_key.
func newSimulatedCard(cfg *config.Config, sourceKey mfclassic.Key) (*mfsim.Card, error) {
	sim := mfsim.Config{
		DefaultKey: sourceKey,
		Distance:   defaultSimDistance,
		Jitter:     2000,
	}
	sc := cfg.Simulation
	if sc.Distance != nil {
		sim.Distance = uint32(*sc.Distance)
	}
	if sc.Static != nil {
		sim.Static = *sc.Static
		if sim.Static && sc.Distance == nil {
			sim.Distance = mfclassic.DefaultStaticOffsets[0]
		}
	}
	if s := strings.TrimSpace(sc.Seed); s != "" {
		seed, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("simulation seed: %w", err)
		}
		sim.Seed = uint32(seed)
	}
	if s := strings.TrimSpace(sc.UID); s != "" {
		uid, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("simulation uid: %w", err)
		}
		sim.UID = uid
	}

	targetKey := defaultSimTargetKey
	if s := strings.TrimSpace(sc.TargetKey); s != "" {
		k, err := mfclassic.ParseKey(s)
		if err != nil {
			return nil, fmt.Errorf("simulation target key: %w", err)
		}
		targetKey = k
	}
	if cfg.Target.Block != nil {
		kt, err := mfclassic.ParseKeyType(cfg.Target.KeyType)
		if err != nil {
			return nil, err
		}
		keys := mfsim.SectorKeys{A: sourceKey, B: sourceKey}
		if kt == mfclassic.KeyB {
			keys.B = targetKey
		} else {
			keys.A = targetKey
		}
		sim.Keys = map[int]mfsim.SectorKeys{mfsim.SectorOf(byte(*cfg.Target.Block)): keys}
	}

	return mfsim.New(sim), nil
}
