package mfsim

import (
	"errors"
	"testing"
	"time"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
	"github.com/barnettlynn/nfctools/pkg/mfclassic"
)

func TestSectorOf(t *testing.T) {
	cases := map[byte]int{0: 0, 3: 0, 4: 1, 127: 31, 128: 32, 143: 32, 144: 33, 255: 39}
	for block, want := range cases {
		if got := SectorOf(block); got != want {
			t.Fatalf("SectorOf(%d) = %d, want %d", block, got, want)
		}
	}
}

func TestDetectCardRequiresField(t *testing.T) {
	c := New(Config{})
	if _, err := c.DetectCard(time.Millisecond); err == nil {
		t.Fatalf("expected error with field off")
	}
	if err := c.ActivateField(); err != nil {
		t.Fatalf("ActivateField: %v", err)
	}
	info, err := c.DetectCard(time.Millisecond)
	if err != nil {
		t.Fatalf("DetectCard: %v", err)
	}
	if info.CUID() != 0xDEADBEEF {
		t.Fatalf("expected default UID DEADBEEF, got %08X", info.CUID())
	}
}

func TestAbsentCard(t *testing.T) {
	c := New(Config{Absent: true})
	_ = c.ActivateField()
	if _, err := c.DetectCard(time.Millisecond); !errors.Is(err, mfclassic.ErrNoTag) {
		t.Fatalf("expected ErrNoTag, got %v", err)
	}
}

func TestStaticNonceSequence(t *testing.T) {
	c := New(Config{Seed: 0x009080A2, Static: true, Distance: 160, KeyBExtra: 1})
	for i := 0; i < 2; i++ {
		_ = c.ActivateField()
		if _, err := c.DetectCard(time.Millisecond); err != nil {
			t.Fatalf("DetectCard: %v", err)
		}
		if got := c.nextNonce(mfclassic.KeyA); got != 0x009080A2 {
			t.Fatalf("activation %d: first nonce %08X", i, got)
		}
		if got, want := c.nextNonce(mfclassic.KeyB), crypto1.Successor(0x009080A2, 161); got != want {
			t.Fatalf("activation %d: second nonce %08X, want %08X", i, got, want)
		}
		_ = c.DeactivateField()
	}
}

func TestPlainCommandNeedsCRCFraming(t *testing.T) {
	c := New(Config{})
	_ = c.ActivateField()
	_, _ = c.DetectCard(time.Millisecond)
	_, err := c.Transceive(mfclassic.Frame{Data: []byte{mfclassic.CmdAuthA, 0}}, mfclassic.FramingRaw, time.Millisecond)
	if !errors.Is(err, mfclassic.ErrNoResponse) {
		t.Fatalf("expected silence, got %v", err)
	}
	if len(c.Issued) != 0 {
		t.Fatalf("expected no nonce issued, got %d", len(c.Issued))
	}
}

func TestPlainAuthIssuesNonceWithParity(t *testing.T) {
	c := New(Config{Seed: 0x01020304, Static: true})
	_ = c.ActivateField()
	_, _ = c.DetectCard(time.Millisecond)
	rx, err := c.Transceive(mfclassic.Frame{Data: []byte{mfclassic.CmdAuthA, 0}}, mfclassic.FramingTxCRC, time.Millisecond)
	if err != nil {
		t.Fatalf("Transceive: %v", err)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04}
	for i := range want {
		if rx.Data[i] != want[i] {
			t.Fatalf("nonce byte %d = %02X, want %02X", i, rx.Data[i], want[i])
		}
		if rx.Parity[i] != crypto1.OddParity8(want[i]) {
			t.Fatalf("parity bit %d = %d", i, rx.Parity[i])
		}
	}
}
