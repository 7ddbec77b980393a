package mfclassic

import "github.com/barnettlynn/nfctools/pkg/crypto1"

// ValidNonce is the parity oracle. nt is a guessed plaintext tag nonce, ntEnc
// the nonce as received, ks1 = nt ^ ntEnc the keystream that guess implies
// and par the received parity mismatches (see parityMismatches).
//
// The parity bit of byte k is masked with the keystream bit that encrypts the
// first bit of byte k+1, so bits 16, 8 and 0 of ks1 must explain the parity
// of the top three bytes. A wrong guess survives with probability 1/8.
func ValidNonce(nt, ntEnc, ks1 uint32, par [4]byte) bool {
	for k := 0; k < 3; k++ {
		shift := uint(24 - 8*k)
		plain := crypto1.OddParity8(byte(nt >> shift))
		observed := par[k] ^ crypto1.OddParity8(byte(ntEnc>>shift)) ^ byte(ks1>>(shift-8)&1)
		if plain != observed&0x01 {
			return false
		}
	}
	return true
}
