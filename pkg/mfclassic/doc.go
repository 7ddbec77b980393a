/*
Package mfclassic recovers Mifare Classic sector keys with the nested
authentication attack.

It provides:
  - The three-pass Crypto1 authentication, plain and nested (Authenticate)
  - Nonce distance calibration between two authentications (CalibrateDistance)
  - Weak versus static nonce generator detection (CheckNonceType)
  - Nested attack with the parity oracle (NestedAttack, ValidNonce)
  - Static nonce attack with per-card offset profiles (StaticNestedAttack)
  - Raw nonce collection for an offline hard-nested solver (CollectHardNonces)
  - Key checks and dictionary probes (CheckKey, DiagnoseKeys)
  - A PN53x transceiver over PC/SC (Connect, NewPN53xTransceiver)

Every operation owns its Transceiver and Session while it runs and leaves the
field off on return.

# Authentication

	Reader                                   Card
	60|61 <block> CRC          ------>
	                           <------       Nt          (plain, or encrypted when nested)
	{Nr} {Ar = suc64(Nt)}      ------>                   (8 bytes, raw, host parity)
	                           <------       {At = suc96(Nt)}

The cipher is loaded with the sector key and UID^Nt is shifted in. For a
nested authentication the card sends Nt encrypted under the new key, so the
reader shifts in the ciphertext in encrypted mode and recovers Nt from the
keystream.

# Nested Attack

After a plain authentication with a known key the reader requests a second
authentication to the target sector. The card answers with Nt2 encrypted
under the unknown key. Because the card's nonce generator advances a nearly
constant number of steps between the two requests, Nt2 is one of a handful
of successors of the known Nt1. For each candidate offset the implied
keystream must explain the three parity bits that the card masked with
keystream bits, which rules out about seven in eight wrong guesses.

	Nt1 (plain) --d steps--> Nt2 candidate
	ks = Nt2_enc ^ candidate
	parity(byte k of candidate) == par_k ^ parity(byte k of Nt2_enc) ^ ks bit (16, 8, 0)

Two distinct (Nt, ks) pairs feed an offline key recovery tool.

# Nonce Distance

	Mode   Ceiling  Rounds  Search from
	full   65565    5       101
	fast   1200     17      101
	info   65565    10      2

NXP cards are typically around 840 steps; some clones are around 160.

# Nonce Log

CollectHardNonces writes one line per encrypted nonce:

	<nonce as unsigned decimal>|<parity bits, byte 0 in bit 3>
*/
package mfclassic
