// SPDX-License-Identifier: MIT

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VisitBlock keeps the per-profile visit accounting. Last, Second and Third
// form a shift register of the three most recent visit times.
type VisitBlock struct {
	Count  int        `json:"count"`
	Last   *time.Time `json:"last,omitempty"`
	Second *time.Time `json:"second,omitempty"`
	Third  *time.Time `json:"third,omitempty"`
	TZ     string     `json:"tz,omitempty"`
}

// Shift pushes now into the visit shift register.
func (v *VisitBlock) Shift(now time.Time) {
	v.Third = v.Second
	v.Second = v.Last
	v.Last = &now
}

// ProfileTime is the time block of profile metadata.
type ProfileTime struct {
	Insert time.Time  `json:"insert"`
	Visit  VisitBlock `json:"visit"`
}

// ProfileMetadata describes when a profile was created and visited.
type ProfileMetadata struct {
	Time ProfileTime    `json:"time"`
	Aux  map[string]any `json:"aux,omitempty"`
}

// ProfileTraits splits profile attributes into a private part that never
// leaves the system and a public part returned to callers.
type ProfileTraits struct {
	Private map[string]any `json:"private,omitempty"`
	Public  map[string]any `json:"public,omitempty"`
}

// ConsentRevoke marks an optional revocation time of a granted consent.
type ConsentRevoke struct {
	Revoke *time.Time `json:"revoke,omitempty"`
}

// Profile is the long-lived customer record. It is shared state: many
// sessions and events reference one profile, and no single request owns it.
type Profile struct {
	Entity
	IDs       []string                 `json:"ids"`
	Metadata  ProfileMetadata          `json:"metadata"`
	Operation Operation                `json:"operation"`
	Traits    ProfileTraits            `json:"traits"`
	PII       map[string]any           `json:"pii,omitempty"`
	Segments  []string                 `json:"segments,omitempty"`
	Interests map[string]any           `json:"interests,omitempty"`
	Consents  map[string]ConsentRevoke `json:"consents,omitempty"`
	Active    bool                     `json:"active"`
	Aux       map[string]any           `json:"aux,omitempty"`
}

// NewProfile creates an empty profile with a generated id.
func NewProfile() *Profile {
	return NewProfileWithID(uuid.NewString())
}

// NewProfileWithID creates an empty profile with the given id. The id is
// recorded in the identity list so lookups by any historic id keep working.
func NewProfileWithID(id string) *Profile {
	p := &Profile{
		Entity: Entity{ID: id},
		Metadata: ProfileMetadata{
			Time: ProfileTime{Insert: time.Now().UTC()},
		},
		Active: true,
	}
	p.AddIDToIdentityList()
	return p
}

// AddIDToIdentityList appends the profile's own id to its identity list and
// marks the profile for update when the list changed.
func (p *Profile) AddIDToIdentityList() {
	for _, id := range p.IDs {
		if id == p.ID {
			return
		}
	}
	p.IDs = append(p.IDs, p.ID)
	p.Operation.Update = true
}

// ConsentIDs returns the set of consent ids granted on the profile.
func (p *Profile) ConsentIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.Consents))
	for id := range p.Consents {
		ids[id] = struct{}{}
	}
	return ids
}

// Snapshot returns a deep copy of the profile document with the operation
// record stripped. Snapshots taken before and after the pipeline are diffed
// to decide whether destinations must be notified.
func (p *Profile) Snapshot() map[string]any {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	delete(doc, "operation")
	return doc
}

// View renders the profile for a track response. The full view excludes
// private traits, PII and the operation record; the reduced view is the id
// alone.
func (p *Profile) View(full bool) map[string]any {
	if p == nil {
		return nil
	}
	if !full {
		return map[string]any{"id": p.ID}
	}
	doc := p.Snapshot()
	delete(doc, "pii")
	if traits, ok := doc["traits"].(map[string]any); ok {
		delete(traits, "private")
	}
	return doc
}
