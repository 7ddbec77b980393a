package mfclassic

// KeyProbeResult holds the result of one key probe for diagnostics.
type KeyProbeResult struct {
	Target Target
	Key    Key
	Usage  string   // Label from the dictionary, if any
	Result KeyCheck // Outcome of the probe
	Step   string   // Authentication step where failure occurred
	Err    error    // Underlying error
}

// DiagnoseKeys tries every key on every target and reports each probe.
// Probing stops early when the card leaves the field.
func DiagnoseKeys(t Transceiver, targets []Target, keys []KnownKey) []KeyProbeResult {
	results := make([]KeyProbeResult, 0, len(targets)*len(keys))
	for _, target := range targets {
		for _, k := range keys {
			res, err := CheckKey(t, target, k.Key)
			probe := KeyProbeResult{Target: target, Key: k.Key, Usage: k.Usage, Result: res, Err: err}
			if step, ok := ClassifyAuthError(err); ok {
				probe.Step = step
			}
			results = append(results, probe)
			if res == KeyNoTag {
				return results
			}
		}
	}
	return results
}

// FindKey returns the first key in keys that opens target. ok is false when
// none does; err is set when the card is missing.
func FindKey(t Transceiver, target Target, keys []KnownKey) (found KnownKey, ok bool, err error) {
	for _, k := range keys {
		res, err := CheckKey(t, target, k.Key)
		switch res {
		case KeyValid:
			return k, true, nil
		case KeyNoTag:
			return KnownKey{}, false, err
		}
	}
	return KnownKey{}, false, nil
}
