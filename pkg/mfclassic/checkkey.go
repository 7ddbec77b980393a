package mfclassic

import (
	"log/slog"
)

// KeyCheck is the outcome of CheckKey.
type KeyCheck int

const (
	KeyNoTag KeyCheck = iota
	KeyValid
	KeyInvalid
)

func (k KeyCheck) String() string {
	switch k {
	case KeyValid:
		return "valid"
	case KeyInvalid:
		return "invalid"
	default:
		return "no tag"
	}
}

// CheckKey authenticates once to target with key. The returned error carries
// the cause for KeyNoTag and KeyInvalid and is nil for KeyValid.
func CheckKey(t Transceiver, target Target, key Key) (KeyCheck, error) {
	info, release, err := openField(t)
	defer release()
	if err != nil {
		return KeyNoTag, err
	}

	slog.Debug("checking key", "keyType", target.KeyType.String(), "key", key.String(), "block", target.Block)

	var s Session
	if _, err := Authenticate(t, &s, AuthParams{UID: info.CUID(), Target: target, Key: key}); err != nil {
		return KeyInvalid, err
	}
	return KeyValid, nil
}
