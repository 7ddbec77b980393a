package crypto1

// PRNGPeriod is the cycle length of the tag nonce generator.
const PRNGPeriod = 65535

func swapEndian(x uint32) uint32 {
	x = (x>>8)&0x00FF00FF | (x&0x00FF00FF)<<8
	return x>>16 | x<<16
}

// Successor advances the tag nonce generator n steps starting at x.
func Successor(x uint32, n uint32) uint32 {
	x = swapEndian(x)
	for ; n > 0; n-- {
		x = x>>1 | (x>>16^x>>18^x>>19^x>>21)<<31
	}
	return swapEndian(x)
}

// Distance returns the smallest step count d in [from, limit) with
// Successor(a, d) == b. ok is false when no such d exists in the range.
func Distance(a, b uint32, from, limit uint32) (d uint32, ok bool) {
	if from >= limit {
		return 0, false
	}
	x := Successor(a, from)
	for d = from; d < limit; d++ {
		if x == b {
			return d, true
		}
		x = Successor(x, 1)
	}
	return 0, false
}
