// Package correlator is the hub of the detection engine: it joins recon
// events and egress events per actor inside a sliding window, consults the
// recon scorer and burstiness analyzer, enriches via file context,
// classifies intent, and emits Findings.
package correlator

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/haasonsaas/gemini-exfil-detector/internal/burstiness"
	"github.com/haasonsaas/gemini-exfil-detector/internal/filecontext"
	"github.com/haasonsaas/gemini-exfil-detector/internal/intent"
	"github.com/haasonsaas/gemini-exfil-detector/internal/logging"
	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
	"github.com/haasonsaas/gemini-exfil-detector/internal/recon"
	"github.com/haasonsaas/gemini-exfil-detector/internal/severity"
)

// DefaultWindowMinutes is the matching window when none is configured.
const DefaultWindowMinutes = 30

// DelayedExfilThreshold is the cumulative recon score above which an
// unmatched egress event still raises a "delayed exfil" finding.
const DelayedExfilThreshold = 5.0

var log = logging.WithComponent("correlator")

// Correlator wires together the stateful components a single detection run
// needs. It holds no state of its own beyond these collaborators; actor
// state lives in the Store and the intent Classifier's baselines.
type Correlator struct {
	Scorer        *recon.Scorer
	Store         recon.Store
	Burstiness    *burstiness.Analyzer
	FileEnricher  *filecontext.Enricher
	Intent        *intent.Classifier
	CanaryDocIDs  map[string]struct{}
	WindowMinutes int
	Location      *time.Location
}

// New returns a Correlator. A zero windowMinutes uses DefaultWindowMinutes;
// a nil location uses UTC for Finding timestamp formatting.
func New(scorer *recon.Scorer, store recon.Store, fileEnricher *filecontext.Enricher, classifier *intent.Classifier, canaryDocIDs []string, windowMinutes int, loc *time.Location) *Correlator {
	if windowMinutes <= 0 {
		windowMinutes = DefaultWindowMinutes
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Correlator{
		Scorer:        scorer,
		Store:         store,
		Burstiness:    burstiness.NewAnalyzer(),
		FileEnricher:  fileEnricher,
		Intent:        classifier,
		CanaryDocIDs:  toSet(canaryDocIDs),
		WindowMinutes: windowMinutes,
		Location:      loc,
	}
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

type scoredFinding struct {
	finding  model.Finding
	exfilAt  time.Time
}

// Correlate runs the full matching/enrichment/classification pipeline over
// reconEvents and egressEvents (egress events must already have IsRevert
// set by revert.Detect), returning Findings sorted by (severity rank,
// exfil_time ascending).
func (c *Correlator) Correlate(ctx context.Context, reconEvents []model.ReconEvent, egressEvents []model.EgressEvent) ([]model.Finding, error) {
	reconByActor := make(map[string][]model.ReconEvent)
	for _, r := range reconEvents {
		reconByActor[r.Actor] = append(reconByActor[r.Actor], r)
	}

	if c.Intent != nil {
		c.Intent.BuildBaselinesFromHistory(egressEvents)
	}

	var scored []scoredFinding

	for _, e := range egressEvents {
		reconScore, err := c.Scorer.Score(ctx, e.Actor, e.Timestamp)
		if err != nil {
			return nil, err
		}

		matched := false
		for _, r := range reconByActor[e.Actor] {
			deltaMinutes := e.Timestamp.Sub(r.Timestamp).Minutes()
			if deltaMinutes < 0 || deltaMinutes > float64(c.WindowMinutes) {
				continue
			}
			matched = true

			draft, suppress, err := c.buildFinding(ctx, e, r, deltaMinutes, reconScore)
			if err != nil {
				return nil, err
			}
			if suppress {
				continue
			}
			scored = append(scored, scoredFinding{finding: draft, exfilAt: e.Timestamp})
		}

		if !matched && reconScore > DelayedExfilThreshold {
			scored = append(scored, scoredFinding{
				finding: delayedExfilFinding(e, reconScore, c.Location),
				exfilAt: e.Timestamp,
			})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		ri, rj := scored[i].finding.Severity.Rank(), scored[j].finding.Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return scored[i].exfilAt.Before(scored[j].exfilAt)
	})

	findings := make([]model.Finding, len(scored))
	for i, s := range scored {
		findings[i] = s.finding
	}
	return findings, nil
}

func (c *Correlator) buildFinding(ctx context.Context, e model.EgressEvent, r model.ReconEvent, deltaMinutes, reconScore float64) (model.Finding, bool, error) {
	classification := severity.Classify(e.EventName, e.Visibility)
	burstScore := c.burstinessScore(ctx, e.Actor)
	result := severity.Compute(classification, e.IsRevert, deltaMinutes, reconScore, burstScore)

	sev := result.Severity
	reason := result.Reason
	codes := result.Codes

	if e.DocID != "" {
		if _, isCanary := c.CanaryDocIDs[e.DocID]; isCanary {
			sev = model.SeverityHigh
			reason = "CANARY DOCUMENT ACCESS - " + reason
			codes = append(codes, "canary_doc_access")
		}
	}

	finding := model.Finding{
		Severity:     sev,
		Actor:        e.Actor,
		ExfilEvent:   e.EventName,
		ExfilTime:    e.Timestamp.In(c.Location).Format(time.RFC3339),
		DocID:        e.DocID,
		DocTitle:     e.DocTitle,
		ReconAction:  r.Action,
		ReconTime:    r.Timestamp.In(c.Location).Format(time.RFC3339),
		DeltaMinutes: round2(deltaMinutes),
		Visibility:   e.Visibility,
		Reason:       reason,
		EventIDs:     model.EventIDs{Recon: r.EventID, Exfil: e.EventID},
		ReconScore:   &reconScore,
		ReasonCodes:  codes,
		IPAddress:    e.IPAddress,
	}
	if burstScore != nil {
		finding.BurstinessScore = burstScore
	}

	if e.DocID != "" && c.FileEnricher != nil {
		c.FileEnricher.Enrich(ctx, &finding, e.DocID)
	}

	if c.Intent != nil {
		analysis := c.Intent.Classify(e.Actor, e.EventName, e.DocID, e.Owner, e.Visibility, e.NewValue, e.Timestamp)
		if analysis.ShouldSuppress {
			log.Debug().Str("actor", e.Actor).Strs("reasons", analysis.Reasons).Msg("suppressing finding")
			return model.Finding{}, true, nil
		}
		finding.IntentAnalysis = &analysis
		if analysis.Intent == model.IntentLegitimate {
			finding.Severity = finding.Severity.Demote()
		}
		c.Intent.UpdateBaseline(e.Actor, e.EventName, analysis.DestinationDomain)
	}

	return finding, false, nil
}

func (c *Correlator) burstinessScore(ctx context.Context, actor string) *float64 {
	if c.Burstiness == nil || c.Store == nil {
		return nil
	}
	activities, err := c.Store.Activities(ctx, actor)
	if err != nil || len(activities) < 2 {
		return nil
	}
	timestamps := make([]time.Time, len(activities))
	for i, a := range activities {
		timestamps[i] = a.Timestamp
	}
	score := c.Burstiness.Score(timestamps, len(activities))
	return &score
}

func delayedExfilFinding(e model.EgressEvent, reconScore float64, loc *time.Location) model.Finding {
	return model.Finding{
		Severity:     model.SeverityMedium,
		Actor:        e.Actor,
		ExfilEvent:   e.EventName,
		ExfilTime:    e.Timestamp.In(loc).Format(time.RFC3339),
		DocID:        e.DocID,
		DocTitle:     e.DocTitle,
		ReconAction:  model.ReconActionCumulative,
		ReconTime:    model.ReconTimeNA,
		DeltaMinutes: 0.0,
		Visibility:   e.Visibility,
		Reason:       "Delayed exfil after cumulative recon",
		EventIDs:     model.EventIDs{Recon: model.EventIDNA, Exfil: e.EventID},
		ReconScore:   &reconScore,
		IPAddress:    e.IPAddress,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
