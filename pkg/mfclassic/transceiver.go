package mfclassic

import (
	"fmt"
	"time"
)

// Framing selects how a transceiver frames a transmission.
type Framing int

const (
	// FramingRaw sends Data with the caller's Parity bits and no CRC, and
	// returns received parity bits without checking them.
	FramingRaw Framing = iota
	// FramingCRC appends a CRC on transmit and checks it on receive.
	FramingCRC
	// FramingTxCRC appends a CRC on transmit only. Tag nonces carry no CRC.
	FramingTxCRC
)

func (f Framing) String() string {
	switch f {
	case FramingRaw:
		return "raw"
	case FramingCRC:
		return "crc"
	case FramingTxCRC:
		return "tx-crc"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// Frame is one air transmission. Parity holds one bit (0 or 1) per byte of
// Data. Bits is the number of valid data bits; zero means len(Data)*8.
type Frame struct {
	Data   []byte
	Parity []byte
	Bits   int
}

// BitLen returns the number of data bits in the frame.
func (f Frame) BitLen() int {
	if f.Bits > 0 {
		return f.Bits
	}
	return len(f.Data) * 8
}

// DeviceInfo describes the card found by DetectCard.
type DeviceInfo struct {
	UID  []byte
	ATQA [2]byte
	SAK  byte
}

// CUID returns the 32-bit UID used to seed Crypto1: the whole UID for single
// size cards, the last four bytes otherwise.
func (d *DeviceInfo) CUID() uint32 {
	if d == nil || len(d.UID) < 4 {
		return 0
	}
	return bytesToUint32(d.UID[len(d.UID)-4:])
}

// Transceiver is the contactless front end used by every attack. One
// transceiver is owned by one operation at a time.
type Transceiver interface {
	ActivateField() error
	DeactivateField() error
	// DetectCard runs anticollision and selects a card. It returns an error
	// wrapping ErrNoTag when nothing answers.
	DetectCard(timeout time.Duration) (*DeviceInfo, error)
	Transceive(tx Frame, framing Framing, timeout time.Duration) (Frame, error)
}

const (
	selectTimeout   = 200 * time.Millisecond
	detectTimeout   = 400 * time.Millisecond
	shortCmdTimeout = 6 * time.Millisecond
	authTimeout     = 25 * time.Millisecond
)

func bytesToUint32(b []byte) uint32 {
	var v uint32
	for _, x := range b {
		v = v<<8 | uint32(x)
	}
	return v
}

func uint32ToBytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
