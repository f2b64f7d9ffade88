// Package revert flags visibility changes that toggle a document external
// and back within a short window, a pattern consistent with an actor
// covering their tracks after exfiltrating.
package revert

import (
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
)

// Window is the maximum gap between an external-visibility change and the
// revert that follows it for the pair to count as a revert.
const Window = 10 * time.Minute

// Detect mutates events in place, setting IsRevert on both halves of any
// adjacent pair within the same doc_id's visibility-changing group where
// the visibility flips from a high-risk value to a non-high-risk one
// within Window. Detect is idempotent: running it again over
// already-flagged events produces the same flags.
func Detect(events []model.EgressEvent) {
	groups := make(map[string][]int)
	for i, e := range events {
		if e.DocID == "" || !strings.Contains(strings.ToLower(e.EventName), "visibility") {
			continue
		}
		groups[e.DocID] = append(groups[e.DocID], i)
	}

	for _, idxs := range groups {
		sort.Slice(idxs, func(a, b int) bool {
			return events[idxs[a]].Timestamp.Before(events[idxs[b]].Timestamp)
		})

		for i := 0; i < len(idxs)-1; i++ {
			curr := &events[idxs[i]]
			next := &events[idxs[i+1]]

			if next.Timestamp.Sub(curr.Timestamp) > Window {
				continue
			}
			if model.IsHighRiskVisibility(curr.Visibility) && !model.IsHighRiskVisibility(next.Visibility) {
				curr.IsRevert = true
				next.IsRevert = true
			}
		}
	}
}
