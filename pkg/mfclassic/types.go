package mfclassic

import (
	"fmt"
	"strings"
)

// KeyType selects key A or key B of a sector.
type KeyType byte

const (
	KeyA KeyType = 0
	KeyB KeyType = 1
)

// Auth command codes.
const (
	CmdAuthA = 0x60
	CmdAuthB = 0x61
)

// AuthCommand returns the authentication command byte for the key type.
func (k KeyType) AuthCommand() byte {
	return CmdAuthA + byte(k&0x01)
}

func (k KeyType) String() string {
	if k&0x01 == KeyB {
		return "B"
	}
	return "A"
}

// ParseKeyType accepts "A", "B", "0" or "1", case-insensitive.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "0":
		return KeyA, nil
	case "B", "1":
		return KeyB, nil
	}
	return KeyA, fmt.Errorf("invalid key type %q (want A or B)", s)
}

// Key is a 48-bit Mifare Classic sector key.
type Key uint64

const keyMask = 0xFFFFFFFFFFFF

func (k Key) String() string {
	return fmt.Sprintf("%012X", uint64(k)&keyMask)
}

// Bytes returns the key as six bytes, most significant first.
func (k Key) Bytes() []byte {
	b := make([]byte, 6)
	v := uint64(k)
	for i := 5; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// Target names a block and the key type used to authenticate to it.
type Target struct {
	Block   byte
	KeyType KeyType
}

func (t Target) String() string {
	return fmt.Sprintf("block %d key %s", t.Block, t.KeyType)
}

// Outcome is the tagged result shared by the attack entry points.
type Outcome int

const (
	// OutcomeNoTag means the card was missing or the field failed.
	OutcomeNoTag Outcome = iota
	// OutcomePartial means some data was collected but not enough for key recovery.
	OutcomePartial
	// OutcomeFull means all data needed for key recovery was collected.
	OutcomeFull
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoTag:
		return "no tag"
	case OutcomePartial:
		return "partial"
	case OutcomeFull:
		return "full"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
