package mfclassic

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
)

// HardNestedRounds is the number of nonces collected per CollectHardNonces call.
const HardNestedRounds = 8

// staticEncryptedRepeats is the number of consecutive repeats above which the
// encrypted nonces are considered static.
const staticEncryptedRepeats = 4

// FirstByteSet records which values have been seen as the first byte of an
// encrypted nonce. The offline solver needs a spread across all 256.
type FirstByteSet [256]bool

// Add marks b as seen and reports whether it was new.
func (f *FirstByteSet) Add(b byte) bool {
	if f[b] {
		return false
	}
	f[b] = true
	return true
}

// Count returns the number of distinct first bytes seen.
func (f *FirstByteSet) Count() int {
	n := 0
	for _, v := range f {
		if v {
			n++
		}
	}
	return n
}

// HardNonce is one record of the nonce log.
type HardNonce struct {
	Nt     uint32 // encrypted nonce as received
	Parity byte   // received parity bits, byte 0 in bit 3
}

// NonceLog appends "<nonce>|<parity>\n" records for the offline solver.
type NonceLog struct {
	w io.Writer
	n int
}

// NewNonceLog returns a log writing to w.
func NewNonceLog(w io.Writer) *NonceLog {
	return &NonceLog{w: w}
}

// Append writes one record.
func (l *NonceLog) Append(n HardNonce) error {
	if _, err := fmt.Fprintf(l.w, "%d|%d\n", uint64(n.Nt), n.Parity&0x0F); err != nil {
		return err
	}
	l.n++
	return nil
}

// Len returns the number of records appended through l.
func (l *NonceLog) Len() int {
	return l.n
}

// ReadNonceLog parses records written by NonceLog. Lines that do not look
// like records, such as headers added by other tools, are skipped.
func ReadNonceLog(r io.Reader) ([]HardNonce, error) {
	var out []HardNonce
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		nt, par, ok := strings.Cut(text, "|")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(nt, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("nonce log line %d: %w", line, err)
		}
		p, err := strconv.ParseUint(par, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("nonce log line %d: %w", line, err)
		}
		if p > 0x0F {
			return nil, fmt.Errorf("nonce log line %d: parity %d out of range", line, p)
		}
		out = append(out, HardNonce{Nt: uint32(v), Parity: byte(p)})
	}
	return out, scanner.Err()
}

// HardParams configures CollectHardNonces.
type HardParams struct {
	Source Target
	Key    Key
	Target Target
	Rounds int // zero means HardNestedRounds
}

// HardResult summarises one collection batch.
type HardResult struct {
	UID             uint32
	Collected       int
	StaticEncrypted bool
	Outcome         Outcome
}

// CollectHardNonces gathers encrypted target nonces with their parity bits
// and appends them to sink without resolving them. seen, when non-nil, is
// updated with the first byte of every nonce.
//
// Rounds whose authentication fails are skipped. More than four nonces equal
// to their predecessor mark the batch as StaticEncrypted.
func CollectHardNonces(ctx context.Context, t Transceiver, p HardParams, sink *NonceLog, seen *FirstByteSet) (HardResult, error) {
	rounds := p.Rounds
	if rounds <= 0 {
		rounds = HardNestedRounds
	}
	res := HardResult{Outcome: OutcomePartial}

	var (
		same     int
		previous uint32
		havePrev bool
	)
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		uid, n, err := hardRound(t, p)
		if err != nil {
			if IsNoTag(err) || isFieldFailure(err) {
				res.Outcome = OutcomeNoTag
				return res, err
			}
			slog.Debug("hard nested round skipped", "round", i, "error", err)
			continue
		}
		res.UID = uid

		if seen != nil {
			seen.Add(byte(n.Nt >> 24))
		}
		if havePrev && n.Nt == previous {
			same++
		}
		previous, havePrev = n.Nt, true

		if err := sink.Append(n); err != nil {
			return res, fmt.Errorf("write nonce log: %w", err)
		}
		res.Collected++
		slog.Debug("collected nonce", "count", res.Collected, "rounds", rounds)
	}

	res.StaticEncrypted = same > staticEncryptedRepeats
	res.Outcome = OutcomeFull
	return res, nil
}

func hardRound(t Transceiver, p HardParams) (uint32, HardNonce, error) {
	info, release, err := openField(t)
	defer release()
	if err != nil {
		return 0, HardNonce{}, err
	}
	uid := info.CUID()

	var s Session
	if _, err := Authenticate(t, &s, AuthParams{UID: uid, Target: p.Source, Key: p.Key}); err != nil {
		return uid, HardNonce{}, err
	}
	rx, err := sendShortCommand(t, &s, true, p.Target.KeyType.AuthCommand(), p.Target.Block)
	if err != nil {
		return uid, HardNonce{}, err
	}
	nt, ok := readNonce(rx)
	if !ok {
		return uid, HardNonce{}, ErrNoResponse
	}

	par := parityMismatches(rx)
	var pbits byte
	for j := 0; j < 4; j++ {
		pbits = pbits<<1 | (crypto1.OddParity8(rx.Data[j]) ^ par[j])
	}
	return uid, HardNonce{Nt: nt, Parity: pbits}, nil
}
