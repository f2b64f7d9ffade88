package recon

import (
	"context"
	"math"
	"time"

	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
)

// DefaultHalfLife is the decay half-life: a recon activity's contribution
// to the cumulative score halves every 48 hours.
const DefaultHalfLife = 48 * time.Hour

const (
	// RiskThresholdHigh is the score at or above which risk is "high".
	RiskThresholdHigh = 10.0
	// RiskThresholdMedium is the score at or above which risk is "medium".
	RiskThresholdMedium = 5.0
)

// baseScores maps a recon action to its base weight. Unlisted actions score 1.0.
var baseScores = map[string]float64{
	"catch_me_up":          5.0,
	"analyze_documents":    4.0,
	"ask_about_this_file":  3.0,
	"summarize_file":       3.0,
	"summarize_long":       2.0,
	"ask_about_context":    2.0,
	"summarize":            1.5,
}

// defaultBaseScore is used for any action not present in baseScores.
const defaultBaseScore = 1.0

// ActionScore returns the base score for a recon action.
func ActionScore(action string) float64 {
	if s, ok := baseScores[action]; ok {
		return s
	}
	return defaultBaseScore
}

// Scorer combines a Store's retained activities for an actor under
// exponential decay into a single cumulative score. It is a pure function
// of the store's contents and the supplied "now"; it holds no state of
// its own.
type Scorer struct {
	store    Store
	halfLife time.Duration
}

// NewScorer returns a Scorer reading from store with the given decay
// half-life. A zero halfLife uses DefaultHalfLife.
func NewScorer(store Store, halfLife time.Duration) *Scorer {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Scorer{store: store, halfLife: halfLife}
}

// Score computes score(actor, now) = Σ base_i · 0.5^((now−t_i)/half_life)
// across all of actor's retained activities, rounded to 2 decimals.
// Activities timestamped after now (negative elapsed time) contribute at
// full weight: negative elapsed hours are treated as zero elapsed.
func (s *Scorer) Score(ctx context.Context, actor string, now time.Time) (float64, error) {
	activities, err := s.store.Activities(ctx, actor)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, a := range activities {
		total += a.BaseScore * s.decayFactor(a.Timestamp, now)
	}
	return round2(total), nil
}

// decayFactor computes 0.5^(elapsed/halfLife), clamping negative elapsed
// durations (future-dated activity relative to now) to zero.
func (s *Scorer) decayFactor(activityTime, now time.Time) float64 {
	elapsed := now.Sub(activityTime)
	if elapsed < 0 {
		elapsed = 0
	}
	exponent := elapsed.Hours() / s.halfLife.Hours()
	return math.Pow(0.5, exponent)
}

// RiskLevel classifies a cumulative score into high/medium/low.
func RiskLevel(score float64) model.Severity {
	switch {
	case score >= RiskThresholdHigh:
		return model.SeverityHigh
	case score >= RiskThresholdMedium:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
