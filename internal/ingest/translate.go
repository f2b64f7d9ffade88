package ingest

import (
	"strings"
	"time"

	"github.com/haasonsaas/gemini-exfil-detector/internal/logging"
	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
)

var log = logging.WithComponent("ingest")

// ReconActions is the set of Gemini feature_utilization action values
// treated as reconnaissance.
var ReconActions = map[string]struct{}{
	"ask_about_this_file":         {},
	"summarize_file":              {},
	"summarize_long":              {},
	"summarize_proactive_short":   {},
	"ask_about_context":           {},
	"summarize":                   {},
	"catch_me_up":                 {},
	"ask_about_unspecified_file":  {},
	"summarize_unspecified_file":  {},
	"analyze_documents":           {},
	"report_unspecified_files":    {},
}

// ReconApps is the set of app surfaces a recon action is honored from.
var ReconApps = map[string]struct{}{
	"docs": {}, "drive": {}, "sheets": {}, "slides": {},
}

// EgressEventPatterns is the set of Drive event-name substrings that mark
// an event as potential egress.
var EgressEventPatterns = []string{
	"download", "export", "copy", "add_to_folder", "change_acl",
	"change_visibility", "deny_access_request", "request_access",
	"create_shortcut", "move", "publish_to_web", "transfer_ownership",
	"untrash",
}

func isInSet(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}

func matchesAnyPattern(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// ToReconEvents translates raw Gemini activities into ReconEvents,
// keeping only action/app_name parameter pairs in ReconActions × ReconApps.
// Activities missing a required field are skipped with a warning rather
// than failing the batch (error category (d)).
func ToReconEvents(activities []RawActivity) []model.ReconEvent {
	var events []model.ReconEvent

	for _, activity := range activities {
		timestamp, err := time.Parse(time.RFC3339, activity.Time)
		if err != nil {
			log.Warn().Str("actor", activity.ActorEmail).Msg("malformed Gemini activity timestamp")
			continue
		}
		if activity.ActorEmail == "" {
			log.Warn().Msg("malformed Gemini activity: missing actor")
			continue
		}

		for _, event := range activity.Events {
			params := ParamsOf(event)
			action := params.String("action")
			appName := params.String("app_name")

			if !isInSet(ReconActions, action) || !isInSet(ReconApps, appName) {
				continue
			}

			events = append(events, model.ReconEvent{
				Actor:     activity.ActorEmail,
				Timestamp: timestamp,
				App:       appName,
				Action:    action,
				EventID:   activity.UniqueQualifier,
			})
		}
	}

	return events
}

// ToEgressEvents translates raw Drive activities into EgressEvents,
// keeping only events whose name matches an EgressEventPatterns
// substring. Activities missing a required field are skipped with a
// warning (error category (d)).
func ToEgressEvents(activities []RawActivity) []model.EgressEvent {
	var events []model.EgressEvent

	for _, activity := range activities {
		timestamp, err := time.Parse(time.RFC3339, activity.Time)
		if err != nil {
			log.Warn().Str("actor", activity.ActorEmail).Msg("malformed Drive activity timestamp")
			continue
		}
		if activity.ActorEmail == "" {
			log.Warn().Msg("malformed Drive activity: missing actor")
			continue
		}

		for _, event := range activity.Events {
			if !matchesAnyPattern(event.Name, EgressEventPatterns) {
				continue
			}

			params := ParamsOf(event)
			docID := params.String("doc_id")
			if docID == "" {
				docID = params.String("target_id")
			}

			events = append(events, model.EgressEvent{
				Actor:               activity.ActorEmail,
				Timestamp:           timestamp,
				EventName:           event.Name,
				DocID:               docID,
				DocTitle:            params.String("doc_title"),
				Visibility:          params.String("visibility"),
				OldVisibility:       params.String("old_visibility"),
				NewValue:            params.String("new_value"),
				OldValue:            params.String("old_value"),
				Owner:               params.String("owner"),
				DestinationFolderID: params.String("destination_folder_id"),
				EventID:             activity.UniqueQualifier,
				IPAddress:           activity.IPAddress,
			})
		}
	}

	return events
}
