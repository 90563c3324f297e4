// SPDX-License-Identifier: MIT

package dot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResolvesScopedPaths(t *testing.T) {
	a := New()
	require.NoError(t, a.Bind("profile", map[string]any{
		"traits": map[string]any{"public": map[string]any{"plan": "pro"}},
	}))

	value, err := a.Get("profile@traits.public.plan")
	require.NoError(t, err)
	assert.Equal(t, "pro", value)
}

func TestGetDefaultsToEventScope(t *testing.T) {
	a := New()
	require.NoError(t, a.Bind("event", map[string]any{"properties": map[string]any{"url": "/home"}}))

	value, err := a.Get("properties.url")
	require.NoError(t, err)
	assert.Equal(t, "/home", value)
}

func TestGetUnboundScope(t *testing.T) {
	a := New()
	_, err := a.Get("session@id")
	assert.Error(t, err)
}

func TestGetMissingKey(t *testing.T) {
	a := New()
	require.NoError(t, a.Bind("event", map[string]any{"properties": map[string]any{}}))
	_, err := a.Get("properties.absent")
	assert.Error(t, err)
}

func TestBindFlattensStructsThroughJSON(t *testing.T) {
	a := New()
	type payload struct {
		Context map[string]any `json:"context"`
	}
	require.NoError(t, a.Bind("payload", payload{Context: map[string]any{"ip": "1.2.3.4"}}))

	value, err := a.Get("payload@context.ip")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", value)
}

func TestBindNilUnbinds(t *testing.T) {
	a := New()
	require.NoError(t, a.Bind("event", map[string]any{"id": "evt-1"}))
	require.NoError(t, a.Bind("event", nil))
	_, err := a.Get("id")
	assert.Error(t, err)
}

func TestSetPathCreatesIntermediateMappings(t *testing.T) {
	doc := map[string]any{}
	SetPath(doc, "a.b.c", 7)

	assert.Equal(t, map[string]any{"a": map[string]any{"b": map[string]any{"c": 7}}}, doc)
}
