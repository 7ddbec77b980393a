package mfclassic

import (
	"context"
	"fmt"
	"log/slog"
)

// NonceType classifies a card's nonce generator.
type NonceType int

const (
	// NonceNoTag means the last probe got no nonce.
	NonceNoTag NonceType = iota
	// NonceWeak means the generator runs freely and the nested attack applies.
	NonceWeak
	// NonceStatic means the card repeats the same nonce after power-up.
	NonceStatic
)

func (n NonceType) String() string {
	switch n {
	case NonceNoTag:
		return "no tag"
	case NonceWeak:
		return "weak"
	case NonceStatic:
		return "static"
	default:
		return fmt.Sprintf("nonce-type(%d)", int(n))
	}
}

const (
	nonceTypeSamples = 5
	// staticPairs is the number of equal ordered sample pairs above which
	// the generator is static. Three equal samples already give six pairs.
	staticPairs = 3
)

// CheckNonceType powers the card up five times, reads the first nonce of
// each session and counts repeats.
//
// A read of zero is treated as failed: zero is the generator's fixed point
// and is never on its cycle.
func CheckNonceType(ctx context.Context, t Transceiver) (NonceType, error) {
	type sample struct {
		nt uint32
		ok bool
	}
	var samples [nonceTypeSamples]sample

	for i := range samples {
		if err := ctx.Err(); err != nil {
			return NonceNoTag, err
		}
		nt, ok := sampleFirstNonce(t)
		samples[i] = sample{nt: nt, ok: ok}
		slog.Debug("nonce sample", "index", i, "nt", fmt.Sprintf("%08X", nt), "ok", ok)
	}

	same := 0
	for i := range samples {
		for j := range samples {
			if i != j && samples[i].ok && samples[j].ok && samples[i].nt == samples[j].nt {
				same++
			}
		}
	}

	if !samples[nonceTypeSamples-1].ok {
		return NonceNoTag, nil
	}
	if same > staticPairs {
		return NonceStatic, nil
	}
	return NonceWeak, nil
}

func sampleFirstNonce(t Transceiver) (uint32, bool) {
	_, release, err := openField(t)
	defer release()
	if err != nil {
		return 0, false
	}

	var s Session
	rx, err := sendShortCommand(t, &s, false, CmdAuthA, 0)
	if err != nil {
		return 0, false
	}
	nt, ok := readNonce(rx)
	if !ok || nt == 0 {
		return 0, false
	}
	return nt, true
}
