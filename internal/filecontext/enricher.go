// Package filecontext caches and returns per-document sensitivity, labels,
// owner, and prior external-share state, consulting a FileMetadataSource
// on cache miss.
package filecontext

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/haasonsaas/gemini-exfil-detector/internal/logging"
	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
	"github.com/haasonsaas/gemini-exfil-detector/internal/xerrors"
)

// Source is the FileMetadataSource external boundary this component
// consumes. Implementations own authentication and wire-format decoding;
// this package only consumes the typed result.
type Source interface {
	// Get fetches metadata for doc. It must return an error satisfying
	// errors.Is(err, xerrors.ErrFileNotFound) for an unknown id.
	Get(ctx context.Context, doc string) (RawMetadata, error)
}

// Permission is one entry of a document's permission list, as returned by
// the metadata source (type "anyone" for anyone-with-the-link, or an
// email address for a specific grantee).
type Permission struct {
	Type  string
	Email string
}

// RawMetadata is the shape a Source returns before sensitivity and
// external-share state are derived. Labels may have come from either the
// legacy map-shaped `labels` field or the newer `labelInfo.labels[]`
// field; Source implementations are responsible for normalizing both into
// Labels (Open Question in the design notes, resolved here).
type RawMetadata struct {
	DocID       string
	Title       string
	Owner       string
	Labels      []string
	Permissions []Permission
}

var log = logging.WithComponent("filecontext")

// sensitiveTerms are label substrings that mark medium sensitivity absent
// a configured sensitive label (step 3 of the sensitivity algorithm).
var sensitiveTerms = []string{"confidential", "restricted", "internal", "sensitive", "private"}

// financeOwnerTerms mark an owner's local-part as high sensitivity
// (step 2 of the sensitivity algorithm).
var financeOwnerTerms = []string{"exec", "ceo", "cfo", "finance"}

// Enricher caches FileMetadata by doc id for the lifetime of a single run
// (no TTL within a run) and classifies sensitivity from configured labels.
type Enricher struct {
	source          Source
	sensitiveLabels []string

	mu    sync.Mutex
	cache map[string]model.FileMetadata
}

// New returns an Enricher consulting source, classifying high sensitivity
// whenever a file label contains one of sensitiveLabels as a substring.
func New(source Source, sensitiveLabels []string) *Enricher {
	return &Enricher{
		source:          source,
		sensitiveLabels: lower(sensitiveLabels),
		cache:           make(map[string]model.FileMetadata),
	}
}

// Metadata returns doc's cached or freshly-fetched FileMetadata. On a
// metadata-source 404 it returns (zero value, false, nil) — "no
// enrichment", not a failure. On any other source error it also returns
// (zero value, false, nil), logging the error, so the pipeline never fails
// due to file-metadata lookups (error handling categories (d)-(e)).
func (e *Enricher) Metadata(ctx context.Context, doc string) (model.FileMetadata, bool) {
	e.mu.Lock()
	if cached, ok := e.cache[doc]; ok {
		e.mu.Unlock()
		return cached, true
	}
	e.mu.Unlock()

	raw, err := e.source.Get(ctx, doc)
	if err != nil {
		if errors.Is(err, xerrors.ErrFileNotFound) {
			log.Warn().Str("doc_id", doc).Msg("file not found")
		} else {
			log.Error().Err(err).Str("doc_id", doc).Msg("failed to fetch file metadata")
		}
		return model.FileMetadata{}, false
	}

	meta := model.FileMetadata{
		DocID:                  raw.DocID,
		Title:                  raw.Title,
		Owner:                  raw.Owner,
		Labels:                 raw.Labels,
		Sensitivity:            sensitivity(raw.Labels, raw.Owner, e.sensitiveLabels),
		SharedExternallyBefore: sharedExternally(raw.Permissions),
	}

	e.mu.Lock()
	e.cache[doc] = meta
	e.mu.Unlock()
	return meta, true
}

// sensitivity applies the four-step, first-match-wins algorithm.
func sensitivity(labels []string, owner string, configuredSensitive []string) model.Sensitivity {
	lowerLabels := lower(labels)

	for _, sensitive := range configuredSensitive {
		for _, l := range lowerLabels {
			if strings.Contains(l, sensitive) {
				return model.SensitivityHigh
			}
		}
	}

	ownerLower := strings.ToLower(owner)
	for _, term := range financeOwnerTerms {
		if strings.Contains(ownerLower, term) {
			return model.SensitivityHigh
		}
	}

	for _, term := range sensitiveTerms {
		for _, l := range lowerLabels {
			if strings.Contains(l, term) {
				return model.SensitivityMedium
			}
		}
	}

	return model.SensitivityLow
}

// sharedExternally is true if any permission targets "anyone" or carries
// an email with no "@" (non-internal access marker), per the sensitivity
// algorithm's shared_externally_before rule.
func sharedExternally(perms []Permission) bool {
	for _, p := range perms {
		if p.Type == "anyone" || !strings.Contains(p.Email, "@") {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Enrich attaches a FileContext block to finding for doc, promoting
// severity one step if the file is high sensitivity (low->medium,
// medium->high, high stays), appending " (high-sensitivity file)" to the
// reason. A finding with no doc id, or one for which metadata could not be
// resolved, is returned unchanged.
func (e *Enricher) Enrich(ctx context.Context, finding *model.Finding, doc string) {
	if doc == "" {
		return
	}
	meta, ok := e.Metadata(ctx, doc)
	if !ok {
		return
	}

	finding.FileContext = &model.FileContext{
		Sensitivity:            meta.Sensitivity,
		Labels:                 meta.Labels,
		Owner:                  meta.Owner,
		SharedExternallyBefore: meta.SharedExternallyBefore,
	}

	if meta.Sensitivity == model.SensitivityHigh {
		switch finding.Severity {
		case model.SeverityMedium, model.SeverityLow:
			finding.Severity = finding.Severity.Promote()
			finding.Reason += " (high-sensitivity file)"
		}
	}
}
