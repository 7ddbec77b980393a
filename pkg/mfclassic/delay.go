package mfclassic

import "time"

// spinThreshold is the longest delay handed to the busy loop alone. Longer
// delays sleep for the bulk and spin for the tail.
const spinThreshold = 2 * time.Millisecond

// delayFunc waits between the two authentications of a timed round. Tests
// replace it to run without wall-clock waits.
var delayFunc = spinDelay

func spinDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	if d > spinThreshold {
		time.Sleep(d - spinThreshold)
	}
	for time.Now().Before(deadline) {
	}
}
