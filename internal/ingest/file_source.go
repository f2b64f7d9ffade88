package ingest

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// FileSource is a Source that replays a captured activities.list response
// from a JSON file on disk: a newline-delimited or array-wrapped batch of
// raw activity records in the upstream wire shape. It exists as the
// reference Source implementation for local runs and tests; a production
// deployment wires a real paginated Admin SDK Reports API / Drive API
// client behind the same interface, authentication and pagination being
// explicitly outside the correlation engine's scope.
type FileSource struct {
	Path string
}

// wireActivity mirrors the upstream activities.list JSON shape: actor and
// id are nested objects, and each event parameter is one of
// value/intValue/boolValue.
type wireActivity struct {
	Actor struct {
		Email string `json:"email"`
	} `json:"actor"`
	ID struct {
		Time            string `json:"time"`
		UniqueQualifier string `json:"uniqueQualifier"`
		IPAddress       string `json:"ipAddress"`
	} `json:"id"`
	Events []wireEvent `json:"events"`
}

type wireEvent struct {
	Name       string          `json:"name"`
	Parameters []wireParameter `json:"parameters"`
}

type wireParameter struct {
	Name      string  `json:"name"`
	Value     *string `json:"value"`
	IntValue  *int64  `json:"intValue"`
	BoolValue *bool   `json:"boolValue"`
}

// List ignores application/eventName/userKey server-side filtering (the
// file already represents one captured response) and returns every
// activity in the file; time-range and action/app filtering happen in
// ToReconEvents/ToEgressEvents.
func (f FileSource) List(ctx context.Context, application string, startTime, endTime RawTime, eventName, userKey string) ([]RawActivity, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading activity file %s: %w", f.Path, err)
	}

	var wire []wireActivity
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding activity file %s: %w", f.Path, err)
	}

	activities := make([]RawActivity, len(wire))
	for i, w := range wire {
		activities[i] = RawActivity{
			ActorEmail:      w.Actor.Email,
			Time:            w.ID.Time,
			UniqueQualifier: w.ID.UniqueQualifier,
			IPAddress:       w.ID.IPAddress,
			Events:          make([]RawEvent, len(w.Events)),
		}
		for j, we := range w.Events {
			params := make([]RawParam, len(we.Parameters))
			for k, wp := range we.Parameters {
				params[k] = RawParam{Name: wp.Name, String: wp.Value, Int: wp.IntValue, Bool: wp.BoolValue}
			}
			activities[i].Events[j] = RawEvent{Name: we.Name, Parameters: params}
		}
	}

	return activities, nil
}
