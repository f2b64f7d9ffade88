// Package intent distinguishes malicious exfiltration from legitimate
// sharing workflows by scoring destination-domain reputation, file
// ownership, per-actor historical baselines, and time-of-day.
package intent

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/gemini-exfil-detector/internal/clock"
	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
)

const (
	startConfidence        = 0.5
	malignantThreshold     = 0.7
	suspiciousThreshold    = 0.4
	frequentDownloadCount  = 10
	offHoursStartHour      = 6
	offHoursEndHourExcl    = 20 // "hour > 20" in the source rule, kept as a named boundary here
)

type reputation string

const (
	reputationTrusted reputation = "trusted"
	reputationPartner reputation = "partner"
	reputationUnknown reputation = "unknown"
)

// Classifier holds the reputation lists and per-actor state an
// IntentClassifier accumulates across a run: trusted/partner domains from
// config, a per-actor UserBaseline map, and a domain-reputation cache.
type Classifier struct {
	trustedDomains map[string]struct{}
	partnerDomains map[string]struct{}
	clock          clock.Clock

	mu              sync.Mutex
	baselines       map[string]*model.UserBaseline
	domainRepCache  map[string]reputation
}

// New returns a Classifier. trustedDomains come from
// suppressions.allowed_external_domains, partnerDomains from
// partner_domains, per spec §5 config.
func New(trustedDomains, partnerDomains []string, c clock.Clock) *Classifier {
	return &Classifier{
		trustedDomains: toSet(trustedDomains),
		partnerDomains: toSet(partnerDomains),
		clock:          c,
		baselines:      make(map[string]*model.UserBaseline),
		domainRepCache: make(map[string]reputation),
	}
}

func toSet(domains []string) map[string]struct{} {
	out := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		out[strings.ToLower(d)] = struct{}{}
	}
	return out
}

// Classify scores one egress event's intent. docID and visibility are
// accepted for interface parity with the correlator's call site but do not
// themselves affect the score: destination-domain extraction reads only
// newValue (the substring after the last "@"); visibility alone never
// yields a domain. The returned IntentAnalysis never mutates c's
// baselines — callers must call UpdateBaseline separately once a finding is
// accepted, mirroring the two-step classify/update split of the source.
func (c *Classifier) Classify(actor, exfilEvent, docID, docOwner, visibility, newValue string, timestamp time.Time) model.IntentAnalysis {
	confidence := startConfidence
	var reasons []string
	shouldSuppress := false

	destDomain := extractDestinationDomain(newValue)

	if destDomain != "" {
		switch c.domainReputation(destDomain) {
		case reputationTrusted:
			reasons = append(reasons, "Destination domain "+destDomain+" is trusted")
			confidence -= 0.4
			shouldSuppress = true
		case reputationPartner:
			reasons = append(reasons, "Destination domain "+destDomain+" is a known partner")
			confidence -= 0.2
		case reputationUnknown:
			reasons = append(reasons, "Destination domain "+destDomain+" is unknown/untrusted")
			confidence += 0.3
		}
	}

	if docOwner != "" && actor != "" {
		if normalizeEmail(docOwner) == normalizeEmail(actor) {
			reasons = append(reasons, "User is sharing their own file")
			confidence -= 0.1
		} else {
			reasons = append(reasons, "User is sharing someone else's file")
			confidence += 0.3
		}
	}

	c.mu.Lock()
	baseline := c.getOrCreateBaselineLocked(actor)
	hasDomain := destDomain != "" && baseline.HasDomain(destDomain)
	downloadCount := baseline.TypicalDownloadCount
	c.mu.Unlock()

	if destDomain != "" {
		if hasDomain {
			reasons = append(reasons, "User has historically shared with "+destDomain)
			confidence -= 0.2
		} else {
			reasons = append(reasons, "First-time share with "+destDomain)
			confidence += 0.2
		}
	}

	if isOffHours(timestamp) {
		reasons = append(reasons, "Activity occurred during off-hours")
		confidence += 0.2
	}

	if isDownloadOrExport(exfilEvent) && downloadCount > frequentDownloadCount {
		reasons = append(reasons, "User frequently downloads files (likely legitimate workflow)")
		confidence -= 0.15
	}

	return model.IntentAnalysis{
		Intent:            label(confidence),
		Confidence:        round2(confidence),
		Reasons:           reasons,
		ShouldSuppress:    shouldSuppress,
		DestinationDomain: destDomain,
	}
}

func label(confidence float64) model.IntentLabel {
	switch {
	case confidence >= malignantThreshold:
		return model.IntentMalicious
	case confidence >= suspiciousThreshold:
		return model.IntentSuspicious
	default:
		return model.IntentLegitimate
	}
}

// UpdateBaseline records exfilEvent against actor's baseline: adds
// destDomain to the seen-domains set and bumps the share counter when a
// destination is present, and bumps the download counter for
// download/export events.
func (c *Classifier) UpdateBaseline(actor, exfilEvent, destDomain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	baseline := c.getOrCreateBaselineLocked(actor)

	if destDomain != "" {
		baseline.TypicalShareDomains[destDomain] = struct{}{}
		baseline.TypicalShareCount++
	}
	if isDownloadOrExport(exfilEvent) {
		baseline.TypicalDownloadCount++
	}
	baseline.LastUpdated = c.clock.Now()
}

// BuildBaselinesFromHistory seeds per-actor baselines from prior egress
// history, intended to run once before correlation over a longer lookback
// window than the detection run itself.
func (c *Classifier) BuildBaselinesFromHistory(events []model.EgressEvent) {
	for _, e := range events {
		destDomain := extractDestinationDomain(e.NewValue)
		c.UpdateBaseline(e.Actor, e.EventName, destDomain)
	}
}

func (c *Classifier) getOrCreateBaselineLocked(actor string) *model.UserBaseline {
	if b, ok := c.baselines[actor]; ok {
		return b
	}
	now := c.clock.Now()
	b := &model.UserBaseline{
		Actor:               actor,
		TypicalShareDomains: make(map[string]struct{}),
		FirstSeen:           now,
		LastUpdated:         now,
	}
	c.baselines[actor] = b
	return b
}

func (c *Classifier) domainReputation(domain string) reputation {
	d := strings.ToLower(domain)

	c.mu.Lock()
	defer c.mu.Unlock()
	if rep, ok := c.domainRepCache[d]; ok {
		return rep
	}

	var rep reputation
	switch {
	case setHas(c.trustedDomains, d):
		rep = reputationTrusted
	case setHas(c.partnerDomains, d):
		rep = reputationPartner
	default:
		rep = reputationUnknown
	}
	c.domainRepCache[d] = rep
	return rep
}

func setHas(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

func extractDestinationDomain(newValue string) string {
	if newValue == "" {
		return ""
	}
	idx := strings.LastIndex(newValue, "@")
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(newValue[idx+1:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isDownloadOrExport(eventName string) bool {
	return strings.Contains(eventName, "download") || strings.Contains(eventName, "export")
}

func isOffHours(t time.Time) bool {
	weekday := t.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		return true
	}
	hour := t.Hour()
	return hour < offHoursStartHour || hour > offHoursEndHourExcl
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
