// SPDX-License-Identifier: MIT

package domain

// NamedEntity is an id/name pair referencing another record.
type NamedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Rule routes events of one type arriving from one source to a workflow.
type Rule struct {
	NamedEntity
	Event      NamedEntity    `json:"event"`
	Flow       NamedEntity    `json:"flow"`
	Source     NamedEntity    `json:"source"`
	Enabled    bool           `json:"enabled"`
	Properties map[string]any `json:"properties,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
}

// ConsentsMet reports whether the profile consents satisfy the rule's
// required consent ids. A rule without the restriction always passes, as
// does a profile that granted no consents at all.
func (r *Rule) ConsentsMet(profileConsents map[string]struct{}) bool {
	if r.Properties == nil || len(profileConsents) == 0 {
		return true
	}
	required, ok := r.Properties["consents"].([]any)
	if !ok || len(required) == 0 {
		return true
	}
	for _, item := range required {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := entry["id"].(string)
		if !ok {
			continue
		}
		if _, granted := profileConsents[id]; !granted {
			return false
		}
	}
	return true
}

// EventTypeMetadata describes one event type: its tag set, an optional JSON
// schema validated at collection time, and an optional property reshape map
// of target property to dotted source path.
type EventTypeMetadata struct {
	Entity
	EventType    string            `json:"event_type"`
	Description  string            `json:"description,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	IndexEnabled bool              `json:"index_enabled"`
	IndexSchema  map[string]any    `json:"index_schema,omitempty"`
	Reshape      map[string]string `json:"reshape,omitempty"`
}

// Segment is a profile membership rule evaluated after workflow execution.
type Segment struct {
	NamedEntity
	EventType string `json:"event_type"`
	Condition string `json:"condition"`
	Enabled   bool   `json:"enabled"`
}
