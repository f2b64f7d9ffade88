// Package pipeline wires the detection engine's components into a single
// batch run: fetch from the two ActivitySource streams, translate, detect
// reverts, record recon, correlate, and emit sorted findings.
package pipeline

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/haasonsaas/gemini-exfil-detector/internal/correlator"
	"github.com/haasonsaas/gemini-exfil-detector/internal/filecontext"
	"github.com/haasonsaas/gemini-exfil-detector/internal/ingest"
	"github.com/haasonsaas/gemini-exfil-detector/internal/intent"
	"github.com/haasonsaas/gemini-exfil-detector/internal/logging"
	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
	"github.com/haasonsaas/gemini-exfil-detector/internal/recon"
	"github.com/haasonsaas/gemini-exfil-detector/internal/revert"
	"github.com/haasonsaas/gemini-exfil-detector/internal/xerrors"
)

// BreakerConfig mirrors the teacher's circuit-breaker defaults: three
// half-open probes, a 30s rolling count window, and a 10s open-state
// cooldown after 5 consecutive failures.
func BreakerConfig(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// DefaultFetchRateLimit bounds each ActivitySource to this many List calls
// per second, smoothing bursts across paginated fetches.
const DefaultFetchRateLimit = 5.0

// Metrics summarizes one run for structured logging, the EngineMetrics
// counterpart to a Finding emission.
type Metrics struct {
	ReconEventCount  int
	EgressEventCount int
	FindingCount     int
	HighSeverity     int
	Duration         time.Duration
}

// Driver runs one detection pass: fetch both streams concurrently behind
// circuit breakers, translate, detect reverts, persist recon activity,
// correlate, and return sorted findings.
type Driver struct {
	GeminiSource ingest.Source
	DriveSource  ingest.Source
	Store        recon.Store
	Correlator   *correlator.Correlator

	reconBreaker  *gobreaker.CircuitBreaker[[]model.ReconEvent]
	egressBreaker *gobreaker.CircuitBreaker[[]model.EgressEvent]
	reconLimiter  *rate.Limiter
	egressLimiter *rate.Limiter
}

// New builds a Driver and its component graph from already-constructed
// collaborators. Callers assemble the Store/Correlator themselves (see
// cmd/exfil-detector) so tests can substitute fakes at every boundary.
func New(geminiSource, driveSource ingest.Source, store recon.Store, fileEnricher *filecontext.Enricher, classifier *intent.Classifier, canaryDocIDs []string, windowMinutes int, loc *time.Location) *Driver {
	scorer := recon.NewScorer(store, 0)
	c := correlator.New(scorer, store, fileEnricher, classifier, canaryDocIDs, windowMinutes, loc)

	d := &Driver{
		GeminiSource: geminiSource,
		DriveSource:  driveSource,
		Store:        store,
		Correlator:   c,
	}
	d.reconBreaker = gobreaker.NewCircuitBreaker[[]model.ReconEvent](BreakerConfig("gemini-recon-fetch"))
	d.egressBreaker = gobreaker.NewCircuitBreaker[[]model.EgressEvent](BreakerConfig("drive-egress-fetch"))
	d.reconLimiter = rate.NewLimiter(rate.Limit(DefaultFetchRateLimit), 1)
	d.egressLimiter = rate.NewLimiter(rate.Limit(DefaultFetchRateLimit), 1)
	return d
}

// Run fetches recon and egress activity in the [start, end) window,
// correlates them, and returns findings sorted by severity then time.
// Transport failures from either fetch are fatal to the run (error
// category (c)); the driver never partially emits.
func (d *Driver) Run(ctx context.Context, start, end time.Time) ([]model.Finding, Metrics, error) {
	runStart := time.Now()
	ctx = logging.ContextWithNewRunID(ctx)
	runLog := logging.Ctx(ctx).With().Str("component", "pipeline").Logger()

	var reconEvents []model.ReconEvent
	var egressEvents []model.EgressEvent

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := d.fetchRecon(gctx, start, end)
		if err != nil {
			return err
		}
		reconEvents = events
		return nil
	})
	g.Go(func() error {
		events, err := d.fetchEgress(gctx, start, end)
		if err != nil {
			return err
		}
		egressEvents = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, Metrics{}, xerrors.Classify(err, xerrors.SeverityTransport)
	}

	for _, r := range reconEvents {
		if err := d.Store.Record(ctx, model.ReconActivity{
			Actor:     r.Actor,
			Timestamp: r.Timestamp,
			App:       r.App,
			Action:    r.Action,
			BaseScore: recon.ActionScore(r.Action),
			DocID:     r.DocID,
		}); err != nil {
			runLog.Warn().Err(err).Str("actor", r.Actor).Msg("failed to record recon activity")
		}
	}

	revert.Detect(egressEvents)

	findings, err := d.Correlator.Correlate(ctx, reconEvents, egressEvents)
	if err != nil {
		return nil, Metrics{}, xerrors.Classify(err, xerrors.SeverityUnexpected)
	}

	metrics := Metrics{
		ReconEventCount:  len(reconEvents),
		EgressEventCount: len(egressEvents),
		FindingCount:     len(findings),
		Duration:         time.Since(runStart),
	}
	for _, f := range findings {
		if f.Severity == model.SeverityHigh {
			metrics.HighSeverity++
		}
	}

	runLog.Info().
		Int("recon_events", metrics.ReconEventCount).
		Int("egress_events", metrics.EgressEventCount).
		Int("findings", metrics.FindingCount).
		Int("high_severity", metrics.HighSeverity).
		Dur("duration", metrics.Duration).
		Msg("detection run complete")

	return findings, metrics, nil
}

func (d *Driver) fetchRecon(ctx context.Context, start, end time.Time) ([]model.ReconEvent, error) {
	if err := d.reconLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for gemini fetch rate limiter: %w", err)
	}
	result, err := d.reconBreaker.Execute(func() ([]model.ReconEvent, error) {
		activities, err := d.GeminiSource.List(ctx, "gemini_in_workspace_apps", start.Format(time.RFC3339), end.Format(time.RFC3339), "feature_utilization", "all")
		if err != nil {
			return nil, fmt.Errorf("fetching gemini activities: %w", err)
		}
		return ingest.ToReconEvents(activities), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Driver) fetchEgress(ctx context.Context, start, end time.Time) ([]model.EgressEvent, error) {
	if err := d.egressLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for drive fetch rate limiter: %w", err)
	}
	result, err := d.egressBreaker.Execute(func() ([]model.EgressEvent, error) {
		activities, err := d.DriveSource.List(ctx, "drive", start.Format(time.RFC3339), end.Format(time.RFC3339), "", "all")
		if err != nil {
			return nil, fmt.Errorf("fetching drive activities: %w", err)
		}
		return ingest.ToEgressEvents(activities), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
