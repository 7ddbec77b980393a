package mfclassic

import (
	"errors"
	"fmt"
	"log/slog"
)

const opFieldOn = "field on"

// openField power-cycles the field and selects a card. The returned release
// func turns the field off and must be called on every path, including when
// err is non-nil.
func openField(t Transceiver) (info *DeviceInfo, release func(), err error) {
	release = func() {
		if err := t.DeactivateField(); err != nil {
			slog.Debug("field off failed", "error", err)
		}
	}

	// Leftover state from the previous attempt is cleared by an explicit off.
	_ = t.DeactivateField()
	if err := t.ActivateField(); err != nil {
		return nil, release, &TransportError{Op: opFieldOn, Cause: err}
	}
	info, err = t.DetectCard(selectTimeout)
	if err != nil {
		return nil, release, fmt.Errorf("%w: %v", ErrNoTag, err)
	}
	return info, release, nil
}

// GetDeviceInfo detects the card in the field and reports its identity.
func GetDeviceInfo(t Transceiver) (*DeviceInfo, error) {
	_ = t.DeactivateField()
	if err := t.ActivateField(); err != nil {
		return nil, &TransportError{Op: opFieldOn, Cause: err}
	}
	defer func() { _ = t.DeactivateField() }()

	info, err := t.DetectCard(detectTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTag, err)
	}
	return info, nil
}

// isFieldFailure reports whether err came from raising the field.
func isFieldFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Op == opFieldOn
}
