// Package xerrors provides the engine's sentinel errors and the typed
// Severity used to map any returned error to a CLI exit code without
// string-matching messages.
package xerrors

import "errors"

// ErrConfigInvalid is returned for missing config files or malformed JSON/YAML.
var ErrConfigInvalid = errors.New("invalid or missing configuration")

// ErrAuthFailed is returned when upstream authentication fails.
var ErrAuthFailed = errors.New("upstream authentication failed")

// ErrUpstreamFetch is returned when an activity listing call fails transport-level.
var ErrUpstreamFetch = errors.New("upstream activity fetch failed")

// ErrFileNotFound is returned by a FileMetadataSource for an unknown doc id.
// Components treat this as "no enrichment", not a failure; it is exported
// so FileContextEnricher can recognize it via errors.Is.
var ErrFileNotFound = errors.New("file not found")

// Severity classifies an error for the driver's error-to-exit-code mapping.
// Only categories (a)-(c) from the error handling design ever surface as a
// returned error; (d)-(f) are swallowed at the component boundary with a
// structured log entry instead.
type Severity int

const (
	// SeverityConfig maps to exit code 2: bad input/config.
	SeverityConfig Severity = iota
	// SeverityAuth maps to exit code 3: upstream auth or API error.
	SeverityAuth
	// SeverityTransport also maps to exit code 3.
	SeverityTransport
	// SeverityUnexpected maps to exit code 4.
	SeverityUnexpected
)

// Classified pairs an error with the Severity the driver should use to pick
// an exit code, so component boundaries don't need to know about exit codes.
type Classified struct {
	Err      error
	Severity Severity
}

func (c *Classified) Error() string { return c.Err.Error() }

func (c *Classified) Unwrap() error { return c.Err }

// Classify wraps err with sev. A nil err returns nil.
func Classify(err error, sev Severity) error {
	if err == nil {
		return nil
	}
	return &Classified{Err: err, Severity: sev}
}

// ExitCode maps err to the CLI exit code documented for the driver boundary.
// A nil error always maps to 0; callers decide 0 vs 1 for the success path
// based on whether any high-severity finding was produced.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var c *Classified
	if errors.As(err, &c) {
		switch c.Severity {
		case SeverityConfig:
			return 2
		case SeverityAuth, SeverityTransport:
			return 3
		default:
			return 4
		}
	}
	return 4
}
