// Package severity computes a Finding's severity, reason string, and
// reason codes from an egress event classification, a time delta, and
// cumulative recon/burstiness scores. It is a pure, total function: the
// same inputs always produce the same output.
package severity

import (
	"strings"

	"github.com/haasonsaas/gemini-exfil-detector/internal/burstiness"
	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
)

const (
	immediateWindowMinutes  = 10.0
	suspiciousWindowMinutes = 30.0
	highRecon              = 10.0
	elevatedRecon          = 5.0
)

// Classification is the one-time categorization of an egress event name and
// visibility, computed once per event and reused by Compute.
type Classification struct {
	ExternalShare bool
	ExportOrDownload bool
	OwnershipTransfer bool
	Shortcut bool
	Publish bool
}

// Classify categorizes eventName/visibility into the five overlapping
// egress-shape flags the base-severity table matches against.
func Classify(eventName, visibility string) Classification {
	name := strings.ToLower(eventName)
	return Classification{
		ExternalShare:     (strings.Contains(name, "change_acl") || strings.Contains(name, "change_visibility")) && model.IsHighRiskVisibility(visibility),
		ExportOrDownload:  strings.Contains(name, "download") || strings.Contains(name, "export"),
		OwnershipTransfer: strings.Contains(name, "transfer_ownership"),
		Shortcut:          strings.Contains(name, "create_shortcut"),
		Publish:           strings.Contains(name, "publish_to_web"),
	}
}

// Result is the outcome of Compute: a severity, its human-readable reason
// (codes' phrases joined by "; " in append order), and the ordered codes
// themselves for Finding.ReasonCodes.
type Result struct {
	Severity model.Severity
	Reason   string
	Codes    []string
}

var reasonPhrases = map[string]string{
	"external_toggle_revert": "Visibility reverted after external exposure",
	"external_share_immediate": "Immediate external share/ownership-transfer/publish following reconnaissance",
	"export_immediate":       "Immediate export/download following reconnaissance",
	"shortcut_immediate":     "Immediate external shortcut creation following reconnaissance",
	"activity_immediate":     "Immediate activity following reconnaissance",
	"suspicious_30min":       "Suspicious activity within 30 minutes of reconnaissance",
	"activity_correlated":    "Activity correlated with prior reconnaissance",
	"high_recon_score":       "Actor has a high cumulative reconnaissance score",
	"elevated_recon_score":   "Actor has an elevated cumulative reconnaissance score",
	"high_burst_recon":       "Reconnaissance session shows a bursty, rapid-fire pattern",
}

// Compute applies the base-severity precedence table, then the recon-score
// and burstiness amplification steps, in that order. deltaMinutes must be
// >= 0 (the correlator only matches forward in time). reconScore and
// burstinessScore are the actor's current ReconScorer/burstiness.Analyzer
// outputs; a burstinessScore of nil skips that step (no timestamp history
// available).
func Compute(c Classification, isRevert bool, deltaMinutes, reconScore float64, burstinessScore *float64) Result {
	var code string
	switch {
	case isRevert:
		code = "external_toggle_revert"
	case deltaMinutes <= immediateWindowMinutes && (c.ExternalShare || c.OwnershipTransfer || c.Publish):
		code = "external_share_immediate"
	case deltaMinutes <= immediateWindowMinutes && c.ExportOrDownload:
		code = "export_immediate"
	case deltaMinutes <= immediateWindowMinutes && c.Shortcut:
		code = "shortcut_immediate"
	case deltaMinutes <= immediateWindowMinutes:
		code = "activity_immediate"
	case deltaMinutes <= suspiciousWindowMinutes && (c.ExternalShare || c.ExportOrDownload || c.OwnershipTransfer):
		code = "suspicious_30min"
	default:
		code = "activity_correlated"
	}

	sev := baseSeverity(code)
	codes := []string{code}

	switch {
	case reconScore >= highRecon:
		codes = append(codes, "high_recon_score")
		sev = sev.Promote()
	case reconScore >= elevatedRecon:
		codes = append(codes, "elevated_recon_score")
	}

	if burstinessScore != nil && *burstinessScore >= burstiness.DefaultThreshold {
		codes = append(codes, "high_burst_recon")
		sev = sev.Promote()
	}

	return Result{
		Severity: sev,
		Reason:   reason(codes),
		Codes:    codes,
	}
}

func baseSeverity(code string) model.Severity {
	switch code {
	case "external_toggle_revert", "external_share_immediate", "export_immediate":
		return model.SeverityHigh
	case "shortcut_immediate", "activity_immediate", "suspicious_30min":
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func reason(codes []string) string {
	phrases := make([]string, 0, len(codes))
	for _, code := range codes {
		if p, ok := reasonPhrases[code]; ok {
			phrases = append(phrases, p)
		}
	}
	return strings.Join(phrases, "; ")
}
