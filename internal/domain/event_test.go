// SPDX-License-Identifier: MIT

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnionTagsLowercasesAndDeduplicates(t *testing.T) {
	event := &Event{Tags: []string{"Web", "mobile", " WEB "}}
	event.UnionTags([]string{"Mobile", "checkout"})

	assert.Equal(t, []string{"checkout", "mobile", "web"}, event.Tags)
}

func TestToEventCopiesSessionTiming(t *testing.T) {
	insert := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	session := NewSession("sess-1")
	session.Metadata.Time.Insert = insert
	session.Metadata.Time.Duration = 42

	profile := NewProfileWithID("prof-1")
	ep := EventPayload{Type: "pageview", Properties: map[string]any{"url": "/home"}}

	event := ep.ToEvent(Time{Insert: insert}, Entity{ID: "src-1"}, session, profile, true)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "pageview", event.Type)
	assert.Equal(t, StatusCollected, event.Metadata.Status)
	assert.True(t, event.Metadata.Valid)
	require.NotNil(t, event.Session)
	assert.Equal(t, "sess-1", event.Session.ID)
	assert.Equal(t, insert, event.Session.Start)
	assert.Equal(t, float64(42), event.Session.Duration)
	require.NotNil(t, event.Profile)
	assert.Equal(t, "prof-1", event.Profile.ID)
}

func TestToEventWithoutProfile(t *testing.T) {
	ep := EventPayload{Type: "ping"}
	event := ep.ToEvent(Time{Insert: time.Now()}, Entity{ID: "src-1"}, nil, nil, false)

	assert.Nil(t, event.Session)
	assert.Nil(t, event.Profile)
}

func TestToEventKeepsDeliveredID(t *testing.T) {
	ep := EventPayload{ID: "evt-9", Type: "ping"}
	event := ep.ToEvent(Time{Insert: time.Now()}, Entity{ID: "src-1"}, nil, nil, false)
	assert.Equal(t, "evt-9", event.ID)
}

func TestIsPersistent(t *testing.T) {
	assert.True(t, (&Event{}).IsPersistent())
	assert.True(t, (&Event{Options: map[string]any{"save": true}}).IsPersistent())
	assert.False(t, (&Event{Options: map[string]any{"save": false}}).IsPersistent())
	assert.True(t, (&Event{Options: map[string]any{"save": "no"}}).IsPersistent())
}
