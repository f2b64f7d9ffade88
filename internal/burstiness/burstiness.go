// Package burstiness detects rapid-fire reconnaissance sessions that a
// flat, decayed cumulative score treats the same as activity spread over
// days. It scores the coefficient of variation of inter-arrival times
// between recon timestamps plus an action-density term.
package burstiness

import (
	"math"
	"sort"
	"time"
)

// DefaultThreshold is the score at or above which a session is considered bursty.
const DefaultThreshold = 6.0

// MaxScore is the ceiling Score ever returns.
const MaxScore = 10.0

// Analyzer computes burstiness scores over a set of recon timestamps for
// one actor. It is stateless; callers supply the timestamps to consider
// (typically the actor's ReconStore activities within a lookback window).
type Analyzer struct{}

// NewAnalyzer returns a ready-to-use Analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Score calculates a burstiness score in [0, MaxScore] from timestamps and
// actionCount. Higher is more suspicious. Fewer than two timestamps cannot
// exhibit burstiness and scores zero.
func (a *Analyzer) Score(timestamps []time.Time, actionCount int) float64 {
	if len(timestamps) < 2 {
		return 0.0
	}

	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	interArrival := make([]float64, 0, len(sorted)-1)
	for i := 0; i < len(sorted)-1; i++ {
		interArrival = append(interArrival, sorted[i+1].Sub(sorted[i]).Seconds())
	}

	allZero := true
	maxInterval := 0.0
	for _, v := range interArrival {
		if v != 0 {
			allZero = false
		}
		if v > maxInterval {
			maxInterval = v
		}
	}
	if allZero {
		return MaxScore
	}

	mean := meanOf(interArrival)
	if mean == 0 {
		return MaxScore
	}

	cv := coefficientOfVariation(interArrival, mean)

	actionDensity := float64(actionCount)
	if maxInterval > 0 {
		actionDensity = float64(actionCount) / (maxInterval / 60.0)
	}

	score := math.Min(MaxScore, cv*2.0+actionDensity*0.5)
	return math.Round(score*100) / 100
}

// IsBurstPattern reports whether the session scores at or above threshold.
// A threshold of 0 uses DefaultThreshold.
func (a *Analyzer) IsBurstPattern(timestamps []time.Time, threshold float64) bool {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return a.Score(timestamps, len(timestamps)) >= threshold
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// coefficientOfVariation returns the sample standard deviation of values
// divided by mean, or 0 if fewer than two values (undefined stdev).
func coefficientOfVariation(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	var sumSquares float64
	for _, v := range values {
		d := v - mean
		sumSquares += d * d
	}
	stdev := math.Sqrt(sumSquares / float64(len(values)-1))
	return stdev / mean
}
