package crypto1

import "math/bits"

const (
	lfPolyOdd  = 0x29CE5C
	lfPolyEven = 0x870804
)

// State is the 48-bit Crypto1 register split into its odd and even halves.
// The zero value is a cleared register.
type State struct {
	Odd  uint32
	Even uint32
}

// NewState returns a register loaded with key.
func NewState(key uint64) *State {
	s := &State{}
	s.Init(key)
	return s
}

// Init loads a 48-bit key into the register.
func (s *State) Init(key uint64) {
	s.Odd, s.Even = 0, 0
	for i := 47; i > 0; i -= 2 {
		s.Odd = s.Odd<<1 | uint32(key>>uint((i-1)^7)&1)
		s.Even = s.Even<<1 | uint32(key>>uint(i^7)&1)
	}
}

// Reset clears the register.
func (s *State) Reset() {
	s.Odd, s.Even = 0, 0
}

// Filter returns the current keystream bit without clocking the register.
func (s *State) Filter() byte {
	return filter(s.Odd)
}

// Bit clocks the register once, feeding in. When encrypted is set the input is
// ciphertext and the keystream bit is folded back in, so both ends of the link
// feed the same plaintext bit. It returns the keystream bit used.
func (s *State) Bit(in byte, encrypted bool) byte {
	ret := filter(s.Odd)

	var feed uint32
	if encrypted {
		feed = uint32(ret)
	}
	if in != 0 {
		feed ^= 1
	}
	feed ^= lfPolyOdd & s.Odd
	feed ^= lfPolyEven & s.Even
	s.Even = s.Even<<1 | uint32(bits.OnesCount32(feed)&1)

	s.Odd, s.Even = s.Even, s.Odd
	return ret
}

// Byte clocks eight bits of in, LSB first, and returns the keystream byte.
func (s *State) Byte(in byte, encrypted bool) byte {
	var ret byte
	for i := 0; i < 8; i++ {
		ret |= s.Bit(in>>uint(i)&1, encrypted) << uint(i)
	}
	return ret
}

// Word clocks 32 bits of in in air order (byte 0 first, each byte LSB first)
// and returns the keystream word in the same byte order as in.
func (s *State) Word(in uint32, encrypted bool) uint32 {
	var ret uint32
	for i := 0; i < 32; i++ {
		b := byte(in >> uint(i^24) & 1)
		ret |= uint32(s.Bit(b, encrypted)) << uint(24^i)
	}
	return ret
}

func filter(x uint32) byte {
	f := uint32(0xF22C0) >> (x & 0xF) & 16
	f |= uint32(0x6C9C0) >> (x >> 4 & 0xF) & 8
	f |= uint32(0x3C8B0) >> (x >> 8 & 0xF) & 4
	f |= uint32(0x1E458) >> (x >> 12 & 0xF) & 2
	f |= uint32(0x0D938) >> (x >> 16 & 0xF) & 1
	return byte(uint32(0xEC57E80A) >> f & 1)
}
