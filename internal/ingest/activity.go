// Package ingest defines the ActivitySource boundary this engine consumes
// and translates its raw, loosely-typed activity records into the
// immutable ReconEvent/EgressEvent domain model.
package ingest

import (
	"context"
	"strconv"
)

// Source is the ActivitySource external boundary: authentication and
// paginated fetching against the upstream audit-log API are the
// implementation's responsibility; this package only consumes the
// materialized result.
type Source interface {
	// List returns every raw activity for application between startTime
	// and endTime (endTime zero means "no upper bound"), optionally
	// filtered server-side by eventName, for userKey (commonly "all").
	List(ctx context.Context, application string, startTime, endTime RawTime, eventName, userKey string) ([]RawActivity, error)
}

// RawTime is an alias kept distinct from time.Time at the boundary so
// Source implementations own their own ISO8601 formatting; translation
// converts to time.Time immediately on ingest.
type RawTime = string

// RawActivity mirrors one item of the upstream activities.list response:
// an actor, an opaque id block, and one or more named events each
// carrying a parameter bag.
type RawActivity struct {
	ActorEmail        string
	Time              string // ISO8601, trailing "Z"
	UniqueQualifier   string
	IPAddress         string
	Events            []RawEvent
}

// RawEvent is one event entry of a RawActivity.
type RawEvent struct {
	Name       string
	Parameters []RawParam
}

// RawParam is a single tagged parameter value from the upstream API: at
// most one of String/Int/Bool is meaningful, selected by which field the
// source populated. Modeling the bag this way keeps the untyped JSON shape
// out of the domain records (Design Note: dynamic params bags).
type RawParam struct {
	Name    string
	String  *string
	Int     *int64
	Bool    *bool
}

// Params is a convenience lookup built once per event.
type Params map[string]RawParam

// ParamsOf indexes event's parameters by name for typed lookup.
func ParamsOf(event RawEvent) Params {
	out := make(Params, len(event.Parameters))
	for _, p := range event.Parameters {
		out[p.Name] = p
	}
	return out
}

// String returns the named parameter's string value, or "" if absent.
// Mirrors the source's `value or intValue or boolValue` coalescing by
// falling back to a formatted Int/Bool when String is unset, since the
// egress-event fields this feeds are all ultimately strings.
func (p Params) String(name string) string {
	param, ok := p[name]
	if !ok {
		return ""
	}
	if param.String != nil {
		return *param.String
	}
	if param.Int != nil {
		return strconv.FormatInt(*param.Int, 10)
	}
	if param.Bool != nil {
		return strconv.FormatBool(*param.Bool)
	}
	return ""
}
