/*
Package crypto1 implements the primitives shared by a Mifare Classic reader and
card: the Crypto1 stream cipher, the 16-bit LFSR nonce generator, odd parity
and the ISO 14443-A CRC.

# Cipher State

The 48-bit LFSR is kept as two 24-bit halves. Bits at odd positions of the
register live in Odd, bits at even positions in Even. Every clock the filter
function is applied to Odd, a feedback bit is shifted into Even and the halves
swap roles. Only the low 24 bits of each half are meaningful.

	key bit 47 ... key bit 0
	odd  = bits 47,45,...,1 (after the ^7 byte reversal of the key)
	even = bits 46,44,...,0

# Nonce Generator

Tag nonces are 32-bit words whose bytes are taken MSB first from a 16-bit LFSR
with taps x^16 + x^14 + x^13 + x^11 + 1. Successor works on the byte-swapped
word so one call advances the generator by exactly one bit. Nonces observed on
the air are always on the generator cycle, whose period is 65535.

# Parity

ISO 14443-A transmits an odd parity bit after every byte. During an encrypted
exchange the parity bit is XORed with the keystream bit that will encrypt the
first bit of the next byte, which is the leak the nested attack relies on.
*/
package crypto1
