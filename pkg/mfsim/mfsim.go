// Package mfsim simulates a Mifare Classic card behind a Transceiver so the
// attacks in mfclassic can run without a reader.
//
// The simulated card implements the card side of the Crypto1 authentication
// bit for bit, checks the reader's parity bits and answer, and models its
// nonce generator as a position on the LFSR cycle that advances a fixed
// number of steps between authentications in one power cycle.
package mfsim

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
	"github.com/barnettlynn/nfctools/pkg/mfclassic"
)

// SectorKeys holds key A and key B of one sector.
type SectorKeys struct {
	A mfclassic.Key
	B mfclassic.Key
}

// Config describes the simulated card.
type Config struct {
	UID        []byte             // 4 or 7 bytes; default DE AD BE EF
	DefaultKey mfclassic.Key      // key of sectors missing from Keys
	Keys       map[int]SectorKeys // per-sector keys
	Seed       uint32             // generator state at power-up; zero means 01020304
	Static     bool               // every power-up restarts the generator at Seed
	Distance   uint32             // generator steps between authentications in one power cycle
	Distances  []uint32           // per power cycle distances, cycled; overrides Distance
	KeyBExtra  uint32             // extra steps for key B nonces after the first authentication
	PowerUp    uint32             // steps the generator runs between power cycles
	Jitter     uint32             // random extra steps per power cycle
	Rand       *rand.Rand         // jitter source; nil means a fixed seed
	Absent     bool               // no card in the field

	// OnNonce is called for every nonce the card issues.
	OnNonce func(n IssuedNonce)
	// Transform rewrites every reply before it reaches the reader.
	Transform func(rx mfclassic.Frame) mfclassic.Frame
}

// IssuedNonce records a nonce handed out by the card.
type IssuedNonce struct {
	Activation int
	Block      byte
	KeyType    mfclassic.KeyType
	Nt         uint32 // plaintext nonce
	Enc        uint32 // nonce as sent; equals Nt for plain authentications
	Nested     bool
}

type phase int

const (
	phaseOff phase = iota
	phaseReady
	phaseIdle
	phaseNonceSent
	phaseAuthenticated
	phaseHalted
)

// ErrSilent is returned when the card does not answer a frame.
var ErrSilent = fmt.Errorf("mfsim: card silent: %w", mfclassic.ErrNoResponse)

// Card is a simulated Mifare Classic 1K/4K card. It implements
// mfclassic.Transceiver and is not safe for concurrent use.
type Card struct {
	cfg   Config
	rng   *rand.Rand
	cuid  uint32
	cs    crypto1.State
	phase phase
	nt    uint32

	clock      uint32
	start      uint32
	authIndex  uint32
	distance   uint32
	fieldOn    bool
	activation int

	// Issued lists every nonce the card has handed out.
	Issued []IssuedNonce
	// Activations counts successful selections.
	Activations int
}

// New returns a card in an unpowered field.
func New(cfg Config) *Card {
	if len(cfg.UID) == 0 {
		cfg.UID = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	}
	if cfg.Seed == 0 {
		// Zero is the generator's fixed point.
		cfg.Seed = 0x01020304
	}
	if cfg.PowerUp == 0 {
		cfg.PowerUp = 1000
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	info := mfclassic.DeviceInfo{UID: cfg.UID}
	return &Card{cfg: cfg, rng: rng, cuid: info.CUID(), clock: cfg.Seed}
}

// FieldOn reports whether the field is currently powered.
func (c *Card) FieldOn() bool {
	return c.fieldOn
}

// ActivateField powers the field. The card stays unselected until DetectCard.
func (c *Card) ActivateField() error {
	c.fieldOn = true
	c.phase = phaseReady
	return nil
}

// DeactivateField removes power; all session state is lost.
func (c *Card) DeactivateField() error {
	c.fieldOn = false
	c.phase = phaseOff
	c.cs.Reset()
	return nil
}

// DetectCard selects the card and starts a new power cycle of its generator.
func (c *Card) DetectCard(timeout time.Duration) (*mfclassic.DeviceInfo, error) {
	if !c.fieldOn {
		return nil, errors.New("mfsim: field is off")
	}
	if c.cfg.Absent {
		return nil, mfclassic.ErrNoTag
	}

	if c.cfg.Static {
		c.start = c.cfg.Seed
	} else {
		step := c.cfg.PowerUp
		if c.cfg.Jitter > 0 {
			step += uint32(c.rng.Int63n(int64(c.cfg.Jitter)))
		}
		c.clock = crypto1.Successor(c.clock, step)
		c.start = c.clock
	}
	c.distance = c.cfg.Distance
	if n := len(c.cfg.Distances); n > 0 {
		c.distance = c.cfg.Distances[c.activation%n]
	}
	c.activation++
	c.Activations++
	c.authIndex = 0
	c.phase = phaseIdle

	return &mfclassic.DeviceInfo{
		UID:  append([]byte(nil), c.cfg.UID...),
		ATQA: [2]byte{0x00, 0x04},
		SAK:  0x08,
	}, nil
}

// Transceive handles one reader frame.
func (c *Card) Transceive(tx mfclassic.Frame, framing mfclassic.Framing, timeout time.Duration) (mfclassic.Frame, error) {
	if !c.fieldOn {
		return mfclassic.Frame{}, ErrSilent
	}

	var (
		rx  mfclassic.Frame
		err error
	)
	switch c.phase {
	case phaseIdle:
		rx, err = c.plainCommand(tx, framing)
	case phaseAuthenticated:
		rx, err = c.encryptedCommand(tx, framing)
	case phaseNonceSent:
		rx, err = c.readerAnswer(tx, framing)
	default:
		err = ErrSilent
	}
	if err != nil {
		c.phase = phaseHalted
		return mfclassic.Frame{}, err
	}
	if c.cfg.Transform != nil {
		rx = c.cfg.Transform(rx)
	}
	return rx, nil
}

func (c *Card) plainCommand(tx mfclassic.Frame, framing mfclassic.Framing) (mfclassic.Frame, error) {
	if framing != mfclassic.FramingTxCRC || len(tx.Data) != 2 {
		return mfclassic.Frame{}, ErrSilent
	}
	return c.startAuth(tx.Data[0], tx.Data[1], false)
}

func (c *Card) encryptedCommand(tx mfclassic.Frame, framing mfclassic.Framing) (mfclassic.Frame, error) {
	if framing != mfclassic.FramingRaw || len(tx.Data) != 4 || len(tx.Parity) != 4 {
		return mfclassic.Frame{}, ErrSilent
	}
	plain := make([]byte, 4)
	for i, b := range tx.Data {
		plain[i] = b ^ c.cs.Byte(0, false)
		if tx.Parity[i] != c.cs.Filter()^crypto1.OddParity8(plain[i]) {
			return mfclassic.Frame{}, ErrSilent
		}
	}
	if !crypto1.CheckCRC16A(plain) {
		return mfclassic.Frame{}, ErrSilent
	}
	return c.startAuth(plain[0], plain[1], true)
}

func (c *Card) startAuth(cmd, block byte, nested bool) (mfclassic.Frame, error) {
	if cmd != mfclassic.CmdAuthA && cmd != mfclassic.CmdAuthB {
		return mfclassic.Frame{}, ErrSilent
	}
	kt := mfclassic.KeyType(cmd & 0x01)
	key, ok := c.key(block, kt)
	if !ok {
		return mfclassic.Frame{}, ErrSilent
	}

	nt := c.nextNonce(kt)
	c.nt = nt
	ntBytes := []byte{byte(nt >> 24), byte(nt >> 16), byte(nt >> 8), byte(nt)}

	c.cs.Init(uint64(key))
	rx := mfclassic.Frame{Data: make([]byte, 4), Parity: make([]byte, 4)}
	if nested {
		in := c.cuid ^ nt
		for k := 0; k < 4; k++ {
			ks := c.cs.Byte(byte(in>>uint(24-8*k)), false)
			rx.Data[k] = ntBytes[k] ^ ks
			rx.Parity[k] = c.cs.Filter() ^ crypto1.OddParity8(ntBytes[k])
		}
	} else {
		c.cs.Word(c.cuid^nt, false)
		copy(rx.Data, ntBytes)
		rx.Parity = crypto1.OddParity(ntBytes)
	}

	issued := IssuedNonce{
		Activation: c.activation,
		Block:      block,
		KeyType:    kt,
		Nt:         nt,
		Enc:        uint32(rx.Data[0])<<24 | uint32(rx.Data[1])<<16 | uint32(rx.Data[2])<<8 | uint32(rx.Data[3]),
		Nested:     nested,
	}
	c.Issued = append(c.Issued, issued)
	if c.cfg.OnNonce != nil {
		c.cfg.OnNonce(issued)
	}

	c.phase = phaseNonceSent
	return rx, nil
}

func (c *Card) readerAnswer(tx mfclassic.Frame, framing mfclassic.Framing) (mfclassic.Frame, error) {
	if framing != mfclassic.FramingRaw || len(tx.Data) != 8 || len(tx.Parity) != 8 {
		return mfclassic.Frame{}, ErrSilent
	}

	for i := 0; i < 4; i++ {
		nr := tx.Data[i] ^ c.cs.Byte(tx.Data[i], true)
		if tx.Parity[i] != c.cs.Filter()^crypto1.OddParity8(nr) {
			return mfclassic.Frame{}, ErrSilent
		}
	}
	ar := crypto1.Successor(c.nt, 64)
	for i := 4; i < 8; i++ {
		want := byte(ar >> uint(24-8*(i-4)))
		got := tx.Data[i] ^ c.cs.Byte(0, false)
		if got != want || tx.Parity[i] != c.cs.Filter()^crypto1.OddParity8(got) {
			return mfclassic.Frame{}, ErrSilent
		}
	}

	at := crypto1.Successor(c.nt, 96)
	rx := mfclassic.Frame{Data: make([]byte, 4), Parity: make([]byte, 4)}
	for k := 0; k < 4; k++ {
		b := byte(at >> uint(24-8*k))
		rx.Data[k] = b ^ c.cs.Byte(0, false)
		rx.Parity[k] = c.cs.Filter() ^ crypto1.OddParity8(b)
	}
	c.phase = phaseAuthenticated
	return rx, nil
}

// nextNonce returns the nonce for the next authentication in this power cycle.
func (c *Card) nextNonce(kt mfclassic.KeyType) uint32 {
	k := c.authIndex
	c.authIndex++
	nt := crypto1.Successor(c.start, k*c.distance)
	if k > 0 && kt == mfclassic.KeyB && c.cfg.KeyBExtra > 0 {
		nt = crypto1.Successor(nt, c.cfg.KeyBExtra)
	}
	return nt
}

func (c *Card) key(block byte, kt mfclassic.KeyType) (mfclassic.Key, bool) {
	sector := SectorOf(block)
	keys, ok := c.cfg.Keys[sector]
	if !ok {
		keys = SectorKeys{A: c.cfg.DefaultKey, B: c.cfg.DefaultKey}
	}
	if kt == mfclassic.KeyB {
		return keys.B, true
	}
	return keys.A, true
}

// SectorOf maps a block number to its sector on 1K and 4K cards.
func SectorOf(block byte) int {
	if block < 128 {
		return int(block) / 4
	}
	return 32 + (int(block)-128)/16
}
