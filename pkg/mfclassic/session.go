package mfclassic

import "github.com/barnettlynn/nfctools/pkg/crypto1"

// Session is the reader side cipher state of one attack operation. A Session
// is owned by the operation that declares it and is not safe for concurrent
// use. The zero value is a cleared register.
type Session struct {
	cs crypto1.State
}

// Init loads key into the register.
func (s *Session) Init(key Key) {
	s.cs.Init(uint64(key) & keyMask)
}

// Reset clears the register.
func (s *Session) Reset() {
	s.cs.Reset()
}

// NonceWord clocks a 32-bit word through the cipher and returns the keystream.
// With encrypted set, in is treated as ciphertext, which is how an encrypted
// tag nonce is folded in during nested authentication.
func (s *Session) NonceWord(in uint32, encrypted bool) uint32 {
	return s.cs.Word(in, encrypted)
}

// Byte clocks one byte through the cipher and returns the keystream byte.
func (s *Session) Byte(in byte, encrypted bool) byte {
	return s.cs.Byte(in, encrypted)
}

// Filter returns the next keystream bit without clocking. After a byte has
// been encrypted this is the bit that masks its parity.
func (s *Session) Filter() byte {
	return s.cs.Filter()
}

// encrypt masks plain with the keystream and computes the masked parity bit
// of every byte. When feed is set the plaintext is shifted into the register,
// otherwise zeros are.
func (s *Session) encrypt(plain []byte, feed bool) Frame {
	out := Frame{Data: make([]byte, len(plain)), Parity: make([]byte, len(plain))}
	for i, p := range plain {
		var in byte
		if feed {
			in = p
		}
		out.Data[i] = s.cs.Byte(in, false) ^ p
		out.Parity[i] = (s.cs.Filter() ^ crypto1.OddParity8(p)) & 0x01
	}
	return out
}
