// SPDX-License-Identifier: MIT

package tracker

import (
	"github.com/trackdhq/trackd/internal/domain"
)

// Response is what the collector returns to the client after a track
// request.
type Response struct {
	Profile   map[string]any   `json:"profile,omitempty"`
	Source    map[string]any   `json:"source,omitempty"`
	UX        []map[string]any `json:"ux"`
	Response  map[string]any   `json:"response"`
	Debugging map[string]any   `json:"debugging,omitempty"`
}

// buildResponse assembles the track response: the profile view the source
// allows, the source consent descriptor, the workflow UX fragments, the
// merged flow responses and, on debug requests, the write results and
// execution artifacts.
func (t *Tracker) buildResponse(payload *domain.TrackerPayload, source *domain.EventSource, profileLess bool, profile *domain.Profile, collected domain.CollectResult, debugger Debugger, segmentation []SegmentationEntry, ux []map[string]any, flowResponses []map[string]any, consoleLog *domain.ConsoleLog) *Response {
	response := &Response{
		Source:   map[string]any{"consent": source.Consent},
		UX:       ux,
		Response: mergeFlowResponses(flowResponses),
	}
	if response.UX == nil {
		response.UX = []map[string]any{}
	}

	if payload.ReturnProfile() && profileLess {
		t.logger.Warn().Msg("profile requested on a profile less payload, nothing to return")
	}
	if !profileLess && profile != nil {
		response.Profile = profile.View(payload.ReturnProfile())
	}

	if payload.IsDebuggingOn(t.cfg.TrackDebug) {
		response.Debugging = map[string]any{
			"profile":      collected.Profile,
			"session":      collected.Session,
			"events":       collected.Events,
			"execution":    debugger,
			"segmentation": segmentation,
			"logs":         consoleLog.Records(),
		}
	}
	return response
}

// mergeFlowResponses folds the per-flow response fragments into one mapping.
// Later flows win on key conflicts.
func mergeFlowResponses(responses []map[string]any) map[string]any {
	merged := map[string]any{}
	for _, response := range responses {
		for k, v := range response {
			merged[k] = v
		}
	}
	return merged
}
