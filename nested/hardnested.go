package main

import (
	"context"
	"fmt"
	"io"

	"github.com/barnettlynn/nfctools/pkg/mfclassic"
)

// hardSummary reports a hard nested collection run.
type hardSummary struct {
	Records         int
	Batches         int
	Unique          int
	StaticEncrypted bool
}

// collectHardNested runs collection batches until unique first bytes have
// been seen or maxBatches is reached. Only nonce records are written to w so
// the file stays readable by the offline solver. progress, if set, receives
// the unique first byte count after each batch.
func collectHardNested(ctx context.Context, t mfclassic.Transceiver, p mfclassic.HardParams, w io.Writer, unique, maxBatches int, progress func(int)) (hardSummary, error) {
	sink := mfclassic.NewNonceLog(w)
	var (
		seen mfclassic.FirstByteSet
		sum  hardSummary
	)
	for sum.Batches < maxBatches && seen.Count() < unique {
		res, err := mfclassic.CollectHardNonces(ctx, t, p, sink, &seen)
		sum.Batches++
		sum.Records = sink.Len()
		sum.Unique = seen.Count()
		if progress != nil {
			progress(sum.Unique)
		}
		if err != nil {
			return sum, fmt.Errorf("hard nested batch %d %s: %w", sum.Batches-1, res.Outcome, err)
		}
		if res.StaticEncrypted {
			sum.StaticEncrypted = true
			return sum, nil
		}
	}
	return sum, nil
}
