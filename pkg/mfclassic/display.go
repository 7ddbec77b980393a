package mfclassic

import "fmt"

// PrintDistance prints a calibration result in a human-readable format.
func PrintDistance(est DistanceEstimate) {
	fmt.Printf("  Nonce distance:  avg %d  [min %d, max %d]\n", est.Average, est.Min, est.Max)
	fmt.Printf("    Samples:       %d  %v\n", est.Collected, est.Samples)
	fmt.Printf("    Jitter:        mean %.1f  stddev %.1f\n", est.Mean, est.StdDev)
}

// PrintNestedResult prints the nonces collected by NestedAttack.
func PrintNestedResult(target Target, res NestedResult) {
	fmt.Printf("  Nested %s: %s after %d attempts (UID %08X)\n", target, res.Outcome, res.Attempts, res.UID)
	for i, c := range res.Candidates {
		if c.Raw {
			fmt.Printf("    Nonce #%d: nt1 %08X  enc %08X  (unresolved, delay used)\n", i+1, c.Nt, c.Ks)
			continue
		}
		fmt.Printf("    Nonce #%d: nt %08X  ks %08X  dist %d  par %v\n", i+1, c.Nt, c.Ks, c.Distance, c.Parity)
	}
}

// PrintStaticResult prints the keystreams recovered by StaticNestedAttack.
func PrintStaticResult(target Target, res StaticResult) {
	fmt.Printf("  Static nested %s: %s (UID %08X)\n", target, res.Outcome, res.UID)
	for i := 0; i < res.Collected && i < 2; i++ {
		fmt.Printf("    Nonce #%d: nt %08X  ks %08X\n", i+1, res.TargetNt[i], res.TargetKs[i])
	}
}

// PrintKeyProbes prints DiagnoseKeys results, one line per probe.
func PrintKeyProbes(results []KeyProbeResult) {
	for _, r := range results {
		label := r.Usage
		if label == "" {
			label = "-"
		}
		line := fmt.Sprintf("  %-22s %s  %-8s %s", r.Target, r.Key, r.Result, label)
		if r.Step != "" {
			line += fmt.Sprintf("  (failed at %s)", r.Step)
		}
		fmt.Println(line)
	}
}
