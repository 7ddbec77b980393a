package mfclassic

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTag means no card answered selection or the field could not be raised.
	ErrNoTag = errors.New("no tag")
	// ErrNoResponse means the card went silent during an exchange.
	ErrNoResponse = errors.New("no response from card")
	// ErrAuthMismatch means the card's answer did not match the expected
	// value, usually because the key is wrong.
	ErrAuthMismatch = errors.New("authentication answer mismatch")
	// ErrNotVulnerable means the card's nonces could not be predicted.
	ErrNotVulnerable = errors.New("tag is not vulnerable to nested attack")
	// ErrAttemptsExhausted means an attack ran out of its attempt budget.
	ErrAttemptsExhausted = errors.New("attempt budget exhausted")
)

// PN53x status codes returned in the first byte of InCommunicateThru answers.
const (
	PN53xOK            = 0x00 // Success
	PN53xTimeout       = 0x01 // No answer from the target
	PN53xCRCError      = 0x02 // CRC error
	PN53xParityError   = 0x03 // Parity error
	PN53xBitCountError = 0x04 // Erroneous bit count during anticollision
	PN53xFramingError  = 0x05 // Mifare framing error
	PN53xCollision     = 0x06 // Abnormal bit collision
	PN53xBufferSize    = 0x07 // Communication buffer too small
	PN53xRFBuffer      = 0x09 // RF buffer overflow
	PN53xRFTimeout     = 0x0A // RF field not switched on in time
	PN53xRFProtocol    = 0x0B // RF protocol error
	PN53xAuthError     = 0x14 // Mifare authentication error
	PN53xCardGone      = 0x2B // Card disappeared
)

// PN53xError is a non-zero status byte from the reader chip.
type PN53xError struct {
	Cmd    byte // PN53x command code
	Status byte // Status byte, error bits only
}

func (e *PN53xError) Error() string {
	return fmt.Sprintf("pn53x command 0x%02X failed with status 0x%02X (%s)", e.Cmd, e.Status, pn53xDescription(e.Status))
}

// Unwrap maps silence-like statuses onto ErrNoResponse.
func (e *PN53xError) Unwrap() error {
	switch e.Status {
	case PN53xTimeout, PN53xCardGone, PN53xRFTimeout:
		return ErrNoResponse
	}
	return nil
}

func pn53xDescription(status byte) string {
	switch status {
	case PN53xOK:
		return "success"
	case PN53xTimeout:
		return "timeout"
	case PN53xCRCError:
		return "CRC error"
	case PN53xParityError:
		return "parity error"
	case PN53xBitCountError:
		return "bit count error"
	case PN53xFramingError:
		return "framing error"
	case PN53xCollision:
		return "collision"
	case PN53xBufferSize:
		return "buffer too small"
	case PN53xRFBuffer:
		return "RF buffer overflow"
	case PN53xRFTimeout:
		return "RF field timeout"
	case PN53xRFProtocol:
		return "RF protocol error"
	case PN53xAuthError:
		return "authentication error"
	case PN53xCardGone:
		return "card disappeared"
	default:
		return "unknown error"
	}
}

// TransportError is a failure of the radio link itself.
type TransportError struct {
	Op    string // Operation that failed, e.g. "field on" or "transceive"
	Cause error  // Underlying error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AuthError reports the step of an authentication exchange that failed.
type AuthError struct {
	Step  string // "cmd", "nonce" or "ack"
	Cause error  // Underlying error
}

func (e *AuthError) Error() string {
	if e == nil {
		return "auth error"
	}
	return fmt.Sprintf("auth %s failed: %v", e.Step, e.Cause)
}

func (e *AuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ClassifyAuthError extracts the failing step from an AuthError.
func ClassifyAuthError(err error) (step string, ok bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Step, true
	}
	return "", false
}

// IsNoTag reports whether err means the card is absent.
func IsNoTag(err error) bool {
	return errors.Is(err, ErrNoTag)
}

// IsAuthMismatch reports whether err is a cryptographic failure, as opposed to
// a transport one.
func IsAuthMismatch(err error) bool {
	return errors.Is(err, ErrAuthMismatch)
}

// IsTransport reports whether err came from the radio link.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrNoResponse) || errors.Is(err, ErrNoTag)
}
