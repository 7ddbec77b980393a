package crypto1

import "math/bits"

// OddParity8 returns the bit that gives b an odd number of set bits.
func OddParity8(b byte) byte {
	return byte(^bits.OnesCount8(b) & 1)
}

// OddParity returns the odd parity bit of every byte in data.
func OddParity(data []byte) []byte {
	par := make([]byte, len(data))
	for i, b := range data {
		par[i] = OddParity8(b)
	}
	return par
}
