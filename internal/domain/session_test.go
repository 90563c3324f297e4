// SPDX-License-Identifier: MIT

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeContextOverwritesExistingKeys(t *testing.T) {
	session := NewSession("sess-1")
	session.Context = map[string]any{"page": "/old", "lang": "en"}

	session.MergeContext(
		map[string]any{"page": "/new"},
		map[string]any{"campaign": "spring"},
	)

	assert.Equal(t, "/new", session.Context["page"])
	assert.Equal(t, "en", session.Context["lang"])
	assert.Equal(t, "spring", session.Properties["campaign"])
}

func TestMergeContextAllocatesMaps(t *testing.T) {
	session := NewSession("sess-1")
	session.MergeContext(map[string]any{"a": 1}, nil)

	assert.Equal(t, 1, session.Context["a"])
	assert.Nil(t, session.Properties)
}

func TestContextTimeZone(t *testing.T) {
	session := NewSession("sess-1")
	_, ok := session.ContextTimeZone()
	assert.False(t, ok)

	session.Context = map[string]any{"time": map[string]any{"tz": "Europe/Vienna"}}
	tz, ok := session.ContextTimeZone()
	assert.True(t, ok)
	assert.Equal(t, "Europe/Vienna", tz)
}
