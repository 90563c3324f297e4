// SPDX-License-Identifier: MIT

package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) *TrackerPayload {
	t.Helper()
	var payload TrackerPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	payload.Init()
	return &payload
}

func TestFingerprintStableUnderKeyReordering(t *testing.T) {
	a := decodePayload(t, `{
		"source": {"id": "src-1"},
		"properties": {"alpha": 1, "beta": "two"},
		"context": {"page": "/home", "lang": "en"}
	}`)
	b := decodePayload(t, `{
		"context": {"lang": "en", "page": "/home"},
		"properties": {"beta": "two", "alpha": 1},
		"source": {"id": "src-1"}
	}`)

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
	assert.Len(t, fpA, 40)
}

func TestFingerprintIgnoresEventsAndMetadata(t *testing.T) {
	a := decodePayload(t, `{"source": {"id": "src-1"}, "events": [{"type": "pageview"}]}`)
	b := decodePayload(t, `{"source": {"id": "src-1"}, "events": [{"type": "purchase"}, {"type": "ping"}]}`)
	b.Metadata.Time.Insert = time.Now().Add(time.Hour)

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestFingerprintChangesWithProperties(t *testing.T) {
	a := decodePayload(t, `{"source": {"id": "src-1"}, "properties": {"k": 1}}`)
	b := decodePayload(t, `{"source": {"id": "src-1"}, "properties": {"k": 2}}`)

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fpA, fpB)
}

func TestSetHeadersRedactsCredentials(t *testing.T) {
	payload := decodePayload(t, `{"source": {"id": "src-1"}}`)
	payload.SetHeaders(map[string]string{
		"Authorization": "Bearer secret",
		"Cookie":        "sid=abc",
		"user-agent":    "test-agent",
	})

	headers, ok := payload.Request["headers"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, headers, "Authorization")
	assert.NotContains(t, headers, "Cookie")
	assert.Equal(t, "test-agent", headers["user-agent"])
}

func TestTrimIDs(t *testing.T) {
	payload := decodePayload(t, `{
		"source": {"id": "  src-1 "},
		"session": {"id": " sess-1"},
		"profile": {"id": "prof-1  "}
	}`)
	payload.TrimIDs()

	assert.Equal(t, "src-1", payload.Source.ID)
	assert.Equal(t, "sess-1", payload.Session.ID)
	assert.Equal(t, "prof-1", payload.Profile.ID)
}

func TestApplySourceTransitional(t *testing.T) {
	payload := decodePayload(t, `{"source": {"id": "src-1"}}`)
	payload.ApplySource(&EventSource{Transitional: true, ReturnsProfile: true})

	assert.False(t, payload.IsOn(OptionSaveSession, true))
	assert.False(t, payload.IsOn(OptionSaveEvents, true))
}

func TestApplySourceNoProfileReturn(t *testing.T) {
	payload := decodePayload(t, `{"source": {"id": "src-1"}, "options": {"profile": true}}`)
	payload.ApplySource(&EventSource{ReturnsProfile: false})

	assert.False(t, payload.ReturnProfile())
}

func TestForceSessionGeneratesID(t *testing.T) {
	payload := decodePayload(t, `{"source": {"id": "src-1"}}`)
	require.Nil(t, payload.Session)

	payload.ForceSession()
	require.NotNil(t, payload.Session)
	assert.NotEmpty(t, payload.Session.ID)

	id := payload.Session.ID
	payload.ForceSession()
	assert.Equal(t, id, payload.Session.ID)
}

func TestIsOnDefaults(t *testing.T) {
	payload := decodePayload(t, `{"source": {"id": "src-1"}, "options": {"saveEvents": "yes"}}`)

	// Non-boolean option values fall back to the default.
	assert.True(t, payload.IsOn(OptionSaveEvents, true))
	assert.True(t, payload.IsOn(OptionSaveSession, true))
	assert.False(t, payload.IsOn(OptionDebugger, false))
}

func TestInitAssignsUniqueIDs(t *testing.T) {
	a := decodePayload(t, `{"source": {"id": "src-1"}}`)
	b := decodePayload(t, `{"source": {"id": "src-1"}}`)

	assert.NotEmpty(t, a.GetID())
	assert.NotEqual(t, a.GetID(), b.GetID())
	assert.False(t, a.Metadata.Time.Insert.IsZero())
}

func TestIsDebuggingOnRequiresBothFlags(t *testing.T) {
	payload := decodePayload(t, `{"source": {"id": "src-1"}, "options": {"debugger": true}}`)
	assert.True(t, payload.IsDebuggingOn(true))
	assert.False(t, payload.IsDebuggingOn(false))

	plain := decodePayload(t, `{"source": {"id": "src-1"}}`)
	assert.False(t, plain.IsDebuggingOn(true))
}
