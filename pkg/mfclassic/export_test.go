package mfclassic

import "time"

// SetDelayFunc replaces the wait between timed authentications and returns a
// func restoring the previous one.
func SetDelayFunc(f func(time.Duration)) (restore func()) {
	prev := delayFunc
	delayFunc = f
	return func() { delayFunc = prev }
}
