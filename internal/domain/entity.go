// SPDX-License-Identifier: MIT

// Package domain holds the entities of the event tracking core: profiles,
// sessions, events, sources and the tracker payload envelope.
package domain

import "time"

// Entity is an id-only reference to a stored document.
type Entity struct {
	ID string `json:"id"`
}

// EntityID returns the id of e or the empty string when e is nil. Used for
// log and console records where the referenced entity may be absent.
func EntityID(e *Entity) string {
	if e == nil {
		return ""
	}
	return e.ID
}

// Time is the insert-time block shared by payload and event metadata.
type Time struct {
	Insert time.Time `json:"insert"`
}

// Operation records what should happen to an entity at persistence time.
type Operation struct {
	New    bool     `json:"new"`
	Update bool     `json:"update"`
	Merge  []string `json:"merge,omitempty"`
}

// NeedsUpdate reports whether the entity has pending changes to write.
func (o Operation) NeedsUpdate() bool {
	return o.Update
}

// NeedsMerging reports whether merge keys were set during the pipeline.
func (o Operation) NeedsMerging() bool {
	return len(o.Merge) > 0
}
