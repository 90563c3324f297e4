// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9200", cfg.Elastic.Host)
	assert.Equal(t, 12*time.Second, cfg.Elastic.QueryTimeout)
	assert.Equal(t, "trackd", cfg.InstancePrefix)
	assert.False(t, cfg.Production)
	assert.Equal(t, []string{"rest"}, cfg.AllowedBridges)
	assert.Equal(t, 10, cfg.SyncProfileTracksMaxRepeats)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ELASTIC_HOST", "http://search:9200")
	t.Setenv("SYNC_PROFILE_TRACKS_WAIT", "250ms")
	t.Setenv("ALLOWED_BRIDGES", "rest, webhook")
	t.Setenv("PRODUCTION", "yes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://search:9200", cfg.Elastic.Host)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncProfileTracksWait)
	assert.Equal(t, []string{"rest", "webhook"}, cfg.AllowedBridges)
	assert.True(t, cfg.Production)
}

func TestLoadRejectsInvalidRepeats(t *testing.T) {
	t.Setenv("SYNC_PROFILE_TRACKS_MAX_REPEATS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestParseDurationBareSeconds(t *testing.T) {
	t.Setenv("SESSION_CACHE_TTL", "30")
	assert.Equal(t, 30*time.Second, ParseDuration("SESSION_CACHE_TTL", time.Second))
}

func TestParseIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	assert.Equal(t, 3, ParseInt("REDIS_DB", 3))
}

func TestParseBoolYesNo(t *testing.T) {
	t.Setenv("TRACK_DEBUG", "yes")
	assert.True(t, ParseBool("TRACK_DEBUG", false))
	t.Setenv("TRACK_DEBUG", "no")
	assert.False(t, ParseBool("TRACK_DEBUG", true))
}
