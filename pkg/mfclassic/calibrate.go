package mfclassic

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
	"gonum.org/v1/gonum/stat"
)

// CalibrationMode trades search range against the number of rounds.
type CalibrationMode int

const (
	// CalibrateFull searches up to 65565 steps in 5 rounds. Use it when the
	// distance is unknown.
	CalibrateFull CalibrationMode = iota
	// CalibrateFast searches up to 1200 steps in 17 rounds for a precise
	// estimate of a typical NXP distance.
	CalibrateFast
	// CalibrateInfo searches the full range from step 2 in 10 rounds and is
	// used to report the distance spread of unknown clones.
	CalibrateInfo
)

func (m CalibrationMode) String() string {
	switch m {
	case CalibrateFull:
		return "full"
	case CalibrateFast:
		return "fast"
	case CalibrateInfo:
		return "info"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type calibrationPlan struct {
	rounds int
	from   uint32 // first distance tried
	limit  uint32 // search ceiling, exclusive
}

func (m CalibrationMode) plan() calibrationPlan {
	switch m {
	case CalibrateFast:
		return calibrationPlan{rounds: 17, from: 101, limit: 1200}
	case CalibrateInfo:
		return calibrationPlan{rounds: 10, from: 2, limit: 65565}
	default:
		return calibrationPlan{rounds: 5, from: 101, limit: 65565}
	}
}

// notVulnerableAfter is the number of consecutive rounds without a matching
// distance after which the generator is considered unpredictable.
const notVulnerableAfter = 12

// DistanceEstimate is the result of a calibration. Average always lies in
// [Min, Max].
type DistanceEstimate struct {
	Min       uint32
	Max       uint32
	Average   uint32
	Collected int
	Samples   []uint32
	Mean      float64 // mean of all samples, anchor included
	StdDev    float64 // sample standard deviation, zero below two samples
}

// CalibrateParams configures CalibrateDistance.
type CalibrateParams struct {
	Source Target
	Key    Key
	Delay  time.Duration // wait between the two authentications of a round
	Mode   CalibrationMode
}

type roundStatus int

const (
	roundSkipped roundStatus = iota
	roundNoMatch
	roundMatched
)

// CalibrateDistance measures how many generator steps separate the nonces of
// two authentications to the same sector in one field activation.
//
// Each round authenticates plainly, waits Delay, authenticates nested and
// searches for the step count between the two nonces. Rounds whose
// authentication fails are skipped. Twelve consecutive rounds without a match,
// or a run where every completed round missed, return ErrNotVulnerable; a run
// where every round was skipped returns the last round error. A field failure
// returns ErrNoTag.
func CalibrateDistance(ctx context.Context, t Transceiver, p CalibrateParams) (DistanceEstimate, error) {
	plan := p.Mode.plan()
	var (
		stats    distanceStats
		misses   int
		searched int // rounds that reached the distance search
		lastErr  error
	)

	for round := 0; round < plan.rounds; round++ {
		if err := ctx.Err(); err != nil {
			return stats.estimate(), err
		}

		d, status, err := calibrationRound(t, p, plan)
		switch status {
		case roundMatched:
			misses = 0
			searched++
			stats.add(d)
			slog.Debug("calibrating", "round", round, "ntdist", d)
		case roundNoMatch:
			misses++
			searched++
			slog.Debug("calibrating: no distance within ceiling", "round", round, "limit", plan.limit)
			if misses >= notVulnerableAfter {
				slog.Warn("tag isn't vulnerable to nested attack (random numbers are not predictable)")
				return stats.estimate(), ErrNotVulnerable
			}
		default:
			if IsNoTag(err) || isFieldFailure(err) {
				return stats.estimate(), err
			}
			lastErr = err
			slog.Debug("calibrating: round skipped", "round", round, "error", err)
		}
	}

	if stats.n == 0 {
		if searched > 0 {
			slog.Warn("tag isn't vulnerable to nested attack (random numbers are not predictable)")
			return DistanceEstimate{}, ErrNotVulnerable
		}
		if lastErr == nil {
			lastErr = ErrNoResponse
		}
		return DistanceEstimate{}, fmt.Errorf("calibration collected no distance samples: %w", lastErr)
	}

	est := stats.estimate()
	slog.Info("calibration completed",
		"mode", p.Mode.String(),
		"min", est.Min,
		"max", est.Max,
		"avg", est.Average,
		"collected", est.Collected,
		"stddev", est.StdDev)
	return est, nil
}

func calibrationRound(t Transceiver, p CalibrateParams, plan calibrationPlan) (uint32, roundStatus, error) {
	info, release, err := openField(t)
	defer release()
	if err != nil {
		return 0, roundSkipped, err
	}
	uid := info.CUID()

	var s Session
	nt1, err := Authenticate(t, &s, AuthParams{UID: uid, Target: p.Source, Key: p.Key})
	if err != nil {
		return 0, roundSkipped, err
	}

	delayFunc(p.Delay)

	nt2, err := Authenticate(t, &s, AuthParams{UID: uid, Target: p.Source, Key: p.Key, Nested: true})
	if err != nil {
		return 0, roundSkipped, err
	}

	d, ok := crypto1.Distance(nt1, nt2, plan.from, plan.limit)
	if !ok {
		return 0, roundNoMatch, nil
	}
	return d, roundMatched, nil
}

// distanceStats accumulates distance samples. The first sample anchors min
// and max; the average is taken over the remaining ones.
type distanceStats struct {
	n       int
	min     uint32
	max     uint32
	sum     uint64
	samples []uint32
}

func (st *distanceStats) add(d uint32) {
	if st.n == 0 {
		st.min, st.max = d, d
	} else {
		st.sum += uint64(d)
		if d < st.min {
			st.min = d
		}
		if d > st.max {
			st.max = d
		}
	}
	st.n++
	st.samples = append(st.samples, d)
}

func (st *distanceStats) estimate() DistanceEstimate {
	est := DistanceEstimate{Collected: st.n}
	if st.n == 0 {
		return est
	}

	avg := uint64(st.min)
	if st.n > 1 {
		k := uint64(st.n - 1)
		avg = (st.sum + k/2) / k
	}
	if avg < uint64(st.min) {
		avg = uint64(st.min)
	}
	if avg > uint64(st.max) {
		avg = uint64(st.max)
	}

	xs := make([]float64, len(st.samples))
	for i, d := range st.samples {
		xs[i] = float64(d)
	}
	est.Min = st.min
	est.Max = st.max
	est.Average = uint32(avg)
	est.Samples = append([]uint32(nil), st.samples...)
	est.Mean = stat.Mean(xs, nil)
	if len(xs) > 1 {
		est.StdDev = stat.StdDev(xs, nil)
	}
	if math.IsNaN(est.StdDev) {
		est.StdDev = 0
	}
	return est
}
