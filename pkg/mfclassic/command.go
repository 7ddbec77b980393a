package mfclassic

import (
	"github.com/barnettlynn/nfctools/pkg/crypto1"
)

// buildShortCommand returns a two-byte command followed by its CRC.
func buildShortCommand(cmd, arg byte) []byte {
	return crypto1.AppendCRC16A([]byte{cmd, arg})
}

// sendShortCommand sends a two-byte command to the card. Plain commands let
// the transceiver append the CRC and accept a reply without one, which is how
// a tag nonce arrives. Encrypted commands are masked under s, CRC included,
// and sent raw with host computed parity.
func sendShortCommand(t Transceiver, s *Session, encrypted bool, cmd, arg byte) (Frame, error) {
	var (
		tx      Frame
		framing Framing
	)
	if encrypted {
		tx = s.encrypt(buildShortCommand(cmd, arg), false)
		framing = FramingRaw
	} else {
		tx = Frame{Data: []byte{cmd, arg}}
		framing = FramingTxCRC
	}

	rx, err := t.Transceive(tx, framing, shortCmdTimeout)
	if err != nil {
		return Frame{}, &TransportError{Op: "transceive", Cause: err}
	}
	return rx, nil
}

// readNonce extracts the 4-byte tag nonce from a reply.
func readNonce(rx Frame) (uint32, bool) {
	if len(rx.Data) < 4 {
		return 0, false
	}
	return bytesToUint32(rx.Data[:4]), true
}

// parityMismatches returns, for each of the first four bytes of rx, whether
// the received parity bit differs from the odd parity of the received byte.
func parityMismatches(rx Frame) [4]byte {
	var par [4]byte
	for j := 0; j < 4 && j < len(rx.Data); j++ {
		var got byte
		if j < len(rx.Parity) {
			got = rx.Parity[j] & 0x01
		}
		if crypto1.OddParity8(rx.Data[j]) != got {
			par[j] = 1
		}
	}
	return par
}
