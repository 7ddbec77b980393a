package mfclassic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
)

// encryptedNonce encrypts nt the way a card answers a nested auth command.
func encryptedNonce(key Key, uid, nt uint32) Frame {
	var s Session
	s.Init(key)
	in := uid ^ nt
	rx := Frame{Data: make([]byte, 4), Parity: make([]byte, 4)}
	for k := 0; k < 4; k++ {
		b := byte(nt >> uint(24-8*k))
		rx.Data[k] = b ^ s.Byte(byte(in>>uint(24-8*k)), false)
		rx.Parity[k] = s.Filter() ^ crypto1.OddParity8(b)
	}
	return rx
}

func TestValidNonceAcceptsTrueNonce(t *testing.T) {
	nt1 := crypto1.Successor(0xCAFEBABE, 32)
	for _, d := range []uint32{160, 840, 1203} {
		nt := crypto1.Successor(nt1, d)
		rx := encryptedNonce(0x112233445566, 0xDEADBEEF, nt)
		enc := bytesToUint32(rx.Data)
		par := parityMismatches(rx)

		if !ValidNonce(nt, enc, nt^enc, par) {
			t.Fatalf("distance %d: true nonce rejected", d)
		}
		par[0] ^= 1
		if ValidNonce(nt, enc, nt^enc, par) {
			t.Fatalf("distance %d: flipped parity accepted", d)
		}
		par[0] ^= 1

		cand, matches := resolveOffset(nt1, enc, par, d)
		if matches < 1 || matches > 2*nestedWindow+1 {
			t.Fatalf("distance %d: unexpected match count %d", d, matches)
		}
		if matches == 1 && (cand.Nt != nt || cand.Distance != d || cand.Ks != nt^enc) {
			t.Fatalf("distance %d: unique match is wrong: %+v", d, cand)
		}
	}
}

func TestValidNonceFalsePositiveRate(t *testing.T) {
	base := crypto1.Successor(0x0BADF00D, 32)
	var trials, accepted int
	for i := uint32(0); i < 200; i++ {
		nt1 := crypto1.Successor(base, i*37)
		nt := crypto1.Successor(nt1, 840)
		rx := encryptedNonce(0xA0A1A2A3A4A5, 0x01020304+i, nt)
		enc := bytesToUint32(rx.Data)
		par := parityMismatches(rx)
		for off := uint32(845); off < 855; off++ {
			guess := crypto1.Successor(nt1, off)
			trials++
			if ValidNonce(guess, enc, guess^enc, par) {
				accepted++
			}
		}
	}
	if rate := float64(accepted) / float64(trials); rate > 0.3 {
		t.Fatalf("wrong offsets accepted at rate %.3f, expected about 1/8", rate)
	}
}

func TestResolveOffsetWindowAtZero(t *testing.T) {
	nt1 := crypto1.Successor(0x01020304, 32)
	rx := encryptedNonce(0xFFFFFFFFFFFF, 0x01020304, crypto1.Successor(nt1, 1))
	if _, matches := resolveOffset(nt1, bytesToUint32(rx.Data), parityMismatches(rx), 1); matches == 0 {
		t.Fatalf("expected the true offset to pass")
	}
}

func TestDistanceStatsAnchorsFirstSample(t *testing.T) {
	var st distanceStats
	st.add(10)
	st.add(1000)
	st.add(1000)
	est := st.estimate()
	if est.Min != 10 || est.Max != 1000 || est.Average != 1000 {
		t.Fatalf("expected 10/1000/1000, got %d/%d/%d", est.Min, est.Max, est.Average)
	}
	if est.Collected != 3 || len(est.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", est.Collected)
	}
}

func TestDistanceStatsSingleSample(t *testing.T) {
	var st distanceStats
	st.add(840)
	est := st.estimate()
	if est.Min != 840 || est.Max != 840 || est.Average != 840 {
		t.Fatalf("expected 840/840/840, got %d/%d/%d", est.Min, est.Max, est.Average)
	}
	if est.Mean != 840 || est.StdDev != 0 {
		t.Fatalf("expected mean 840 stddev 0, got %f %f", est.Mean, est.StdDev)
	}
}

func TestDistanceStatsEmpty(t *testing.T) {
	var st distanceStats
	if est := st.estimate(); est.Collected != 0 || est.Average != 0 {
		t.Fatalf("expected empty estimate, got %+v", est)
	}
}

func TestCalibrationPlans(t *testing.T) {
	cases := []struct {
		mode CalibrationMode
		want calibrationPlan
	}{
		{CalibrateFull, calibrationPlan{rounds: 5, from: 101, limit: 65565}},
		{CalibrateFast, calibrationPlan{rounds: 17, from: 101, limit: 1200}},
		{CalibrateInfo, calibrationPlan{rounds: 10, from: 2, limit: 65565}},
	}
	for _, tc := range cases {
		if got := tc.mode.plan(); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.mode, tc.want, got)
		}
	}
}

func TestEncryptMasksParity(t *testing.T) {
	var a, b Session
	a.Init(0xA0A1A2A3A4A5)
	b.Init(0xA0A1A2A3A4A5)
	cmd := buildShortCommand(CmdAuthB, 4)
	frame := a.encrypt(cmd, false)
	for i, p := range cmd {
		ks := b.Byte(0, false)
		if frame.Data[i] != p^ks {
			t.Fatalf("byte %d: %02X, want %02X", i, frame.Data[i], p^ks)
		}
		if frame.Parity[i] != b.Filter()^crypto1.OddParity8(p) {
			t.Fatalf("byte %d: parity %d", i, frame.Parity[i])
		}
	}
}

func TestBuildShortCommandCRC(t *testing.T) {
	got := buildShortCommand(CmdAuthA, 0)
	want := []byte{0x60, 0x00, 0xF5, 0x7B}
	if string(got) != string(want) {
		t.Fatalf("expected % X, got % X", want, got)
	}
}

func TestParseKey(t *testing.T) {
	cases := map[string]Key{
		"FFFFFFFFFFFF":        0xFFFFFFFFFFFF,
		"a0a1a2a3a4a5":        0xA0A1A2A3A4A5,
		"A0:A1:A2:A3:A4:A5":   0xA0A1A2A3A4A5,
		" 11 22 33 44 55 66 ": 0x112233445566,
	}
	for in, want := range cases {
		got, err := ParseKey(in)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseKey(%q) = %s, want %s", in, got, want)
		}
	}
	for _, bad := range []string{"", "FFFF", "GGGGGGGGGGGG", "FFFFFFFFFFFFFF"} {
		if _, err := ParseKey(bad); err == nil {
			t.Fatalf("ParseKey(%q) expected error", bad)
		}
	}
}

func TestLoadKeyHexFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.hex")
	if err := os.WriteFile(path, []byte("# sector 0 key A\n\nA0A1A2A3A4A5\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	key, err := LoadKeyHexFile(path)
	if err != nil {
		t.Fatalf("LoadKeyHexFile: %v", err)
	}
	if key != 0xA0A1A2A3A4A5 {
		t.Fatalf("expected A0A1A2A3A4A5, got %s", key)
	}
	if b := key.Bytes(); b[0] != 0xA0 || b[5] != 0xA5 {
		t.Fatalf("unexpected key bytes % X", b)
	}

	empty := filepath.Join(dir, "empty.hex")
	if err := os.WriteFile(empty, []byte("# nothing\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, err := LoadKeyHexFile(empty); err == nil || !strings.Contains(err.Error(), "no key found") {
		t.Fatalf("expected no key error, got %v", err)
	}
}

func TestParseKeyType(t *testing.T) {
	for in, want := range map[string]KeyType{"A": KeyA, "b": KeyB, "0": KeyA, "1": KeyB} {
		got, err := ParseKeyType(in)
		if err != nil || got != want {
			t.Fatalf("ParseKeyType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseKeyType("C"); err == nil {
		t.Fatalf("expected error for key type C")
	}
	if KeyB.AuthCommand() != CmdAuthB || KeyA.AuthCommand() != CmdAuthA {
		t.Fatalf("unexpected auth commands")
	}
}

func TestNonceLogFormat(t *testing.T) {
	var sb strings.Builder
	log := NewNonceLog(&sb)
	if err := log.Append(HardNonce{Nt: 0xDEADBEEF, Parity: 0x0A}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append(HardNonce{Nt: 1, Parity: 0xFF}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got, want := sb.String(), "3735928559|10\n1|15\n"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	records, err := ReadNonceLog(strings.NewReader("Filetype: Flipper Nested Nonces\n" + sb.String()))
	if err != nil {
		t.Fatalf("ReadNonceLog: %v", err)
	}
	if len(records) != 2 || records[0].Nt != 0xDEADBEEF || records[1].Parity != 15 {
		t.Fatalf("unexpected records %+v", records)
	}

	if _, err := ReadNonceLog(strings.NewReader("1|16\n")); err == nil {
		t.Fatalf("expected out of range parity error")
	}
}

func TestFirstByteSet(t *testing.T) {
	var f FirstByteSet
	if !f.Add(0x12) || f.Add(0x12) || !f.Add(0xFF) {
		t.Fatalf("unexpected Add results")
	}
	if f.Count() != 2 {
		t.Fatalf("expected 2 bytes, got %d", f.Count())
	}
}

func TestLookupStaticOffsets(t *testing.T) {
	if got := LookupStaticOffsets(StaticProfiles, 0x009080A2, KeyB); got != [2]uint32{161, 321} {
		t.Fatalf("expected 161/321, got %v", got)
	}
	if got := LookupStaticOffsets(StaticProfiles, 0x009080A2, KeyA); got != DefaultStaticOffsets {
		t.Fatalf("expected default offsets, got %v", got)
	}
}

func TestErrorClassification(t *testing.T) {
	authErr := &AuthError{Step: "ack", Cause: ErrAuthMismatch}
	wrapped := fmt.Errorf("check: %w", authErr)
	if step, ok := ClassifyAuthError(wrapped); !ok || step != "ack" {
		t.Fatalf("expected ack step, got %q %v", step, ok)
	}
	if !IsAuthMismatch(wrapped) || IsTransport(wrapped) {
		t.Fatalf("expected a cryptographic failure")
	}

	silent := &AuthError{Step: "cmd", Cause: &TransportError{Op: "transceive", Cause: &PN53xError{Cmd: 0x42, Status: PN53xTimeout}}}
	if !IsTransport(silent) || !errors.Is(silent, ErrNoResponse) {
		t.Fatalf("expected transport failure, got %v", silent)
	}
	if errors.Is(&PN53xError{Cmd: 0x42, Status: PN53xCRCError}, ErrNoResponse) {
		t.Fatalf("CRC error must not map to no response")
	}
	if !strings.Contains((&PN53xError{Cmd: 0x42, Status: PN53xCardGone}).Error(), "card disappeared") {
		t.Fatalf("expected status description in error text")
	}

	if !isFieldFailure(fmt.Errorf("round: %w", &TransportError{Op: opFieldOn, Cause: errors.New("usb")})) {
		t.Fatalf("expected field failure")
	}
}
