package mfclassic

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
)

// AuthParams describes one authentication exchange.
type AuthParams struct {
	UID    uint32 // Crypto1 UID of the selected card (DeviceInfo.CUID)
	Target Target
	Key    Key
	// Nested sends the auth command encrypted under the live session and
	// decrypts the tag nonce. The session must hold a completed
	// authentication.
	Nested bool
	// ReaderNonce fixes Nr. When nil, MFCLASSIC_NR (8 hex chars) is used if
	// set, else a random value.
	ReaderNonce *uint32
}

// Authenticate runs one three-pass Mifare Classic authentication and leaves s
// holding the resulting session. It returns the tag nonce in the clear.
//
// The nonce is also returned alongside an AuthError from the "ack" step,
// since the card has revealed it by then. Failures are never retried.
func Authenticate(t Transceiver, s *Session, p AuthParams) (uint32, error) {
	nr, err := readerNonce(p)
	if err != nil {
		return 0, &AuthError{Step: "cmd", Cause: err}
	}

	rx, err := sendShortCommand(t, s, p.Nested, p.Target.KeyType.AuthCommand(), p.Target.Block)
	if err != nil {
		return 0, &AuthError{Step: "cmd", Cause: err}
	}
	nt, ok := readNonce(rx)
	if !ok {
		return 0, &AuthError{Step: "nonce", Cause: ErrNoResponse}
	}

	s.Reset()
	s.Init(p.Key)
	if p.Nested {
		nt = s.NonceWord(nt^p.UID, true) ^ nt
	} else {
		s.NonceWord(nt^p.UID, false)
	}

	// Nr is shifted into the cipher, Ar = suc64(Nt) is only masked.
	tx := s.encrypt(uint32ToBytes(nr), true)
	next := crypto1.Successor(nt, 32)
	ar := make([]byte, 4)
	for i := range ar {
		next = crypto1.Successor(next, 8)
		ar[i] = byte(next)
	}
	arFrame := s.encrypt(ar, false)
	tx.Data = append(tx.Data, arFrame.Data...)
	tx.Parity = append(tx.Parity, arFrame.Parity...)

	rx, err = t.Transceive(tx, FramingRaw, authTimeout)
	if err != nil {
		return nt, &AuthError{Step: "ack", Cause: &TransportError{Op: "transceive", Cause: err}}
	}
	answer, ok := readNonce(rx)
	if !ok {
		return nt, &AuthError{Step: "ack", Cause: ErrNoResponse}
	}
	expected := crypto1.Successor(next, 32) ^ s.NonceWord(0, false)
	if answer != expected {
		return nt, &AuthError{Step: "ack", Cause: ErrAuthMismatch}
	}
	return nt, nil
}

func readerNonce(p AuthParams) (uint32, error) {
	if p.ReaderNonce != nil {
		return *p.ReaderNonce, nil
	}
	if nrHex := os.Getenv("MFCLASSIC_NR"); len(nrHex) == 8 {
		if b, err := hex.DecodeString(nrHex); err == nil {
			return bytesToUint32(b), nil
		}
	}
	b := make([]byte, 4)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return 0, err
	}
	return bytesToUint32(b), nil
}
