// SPDX-License-Identifier: MIT

// Package config loads trackd configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Elastic holds document-store connection settings.
type Elastic struct {
	Host         string
	QueryTimeout time.Duration
}

// Redis holds cache and lock store connection settings.
type Redis struct {
	Host     string
	Password string
	DB       int
}

// CacheTTL holds the per-namespace TTLs of the memory cache.
type CacheTTL struct {
	Session  time.Duration
	Source   time.Duration
	EventTag time.Duration
	Flow     time.Duration
	Segment  time.Duration
	Rule     time.Duration
}

// Config is the complete runtime configuration of the trackd daemon.
type Config struct {
	Elastic Elastic
	Redis   Redis
	Cache   CacheTTL

	// TrackDebug enables the debugging section of track responses and the
	// persistence of workflow call traces.
	TrackDebug bool

	// SyncProfileTracksWait is how long a request waits between lock probes
	// when profile synchronization is enabled for the source.
	SyncProfileTracksWait time.Duration

	// SyncProfileTracksMaxRepeats bounds the number of lock probes before the
	// request is rejected as transiently failed.
	SyncProfileTracksMaxRepeats int

	// InstancePrefix prefixes every index, alias and template name.
	InstancePrefix string

	// Production selects the production alias set; staging otherwise.
	Production bool

	// AllowedBridges is the allow-list of source kinds the track endpoint
	// accepts.
	AllowedBridges []string

	ListenAddr string
	LogLevel   string
}

// Load reads the configuration from environment variables, applying the
// documented defaults.
func Load() (Config, error) {
	cfg := Config{
		Elastic: Elastic{
			Host:         ParseString("ELASTIC_HOST", "http://localhost:9200"),
			QueryTimeout: ParseDuration("ELASTIC_QUERY_TIMEOUT", 12*time.Second),
		},
		Redis: Redis{
			Host:     ParseString("REDIS_HOST", "localhost:6379"),
			Password: ParseString("REDIS_PASSWORD", ""),
			DB:       ParseInt("REDIS_DB", 0),
		},
		Cache: CacheTTL{
			Session:  ParseDuration("SESSION_CACHE_TTL", 2*time.Second),
			Source:   ParseDuration("SOURCE_CACHE_TTL", 2*time.Second),
			EventTag: ParseDuration("EVENT_TAG_CACHE_TTL", 2*time.Second),
			Flow:     ParseDuration("FLOW_CACHE_TTL", 2*time.Second),
			Segment:  ParseDuration("SEGMENT_CACHE_TTL", 2*time.Second),
			Rule:     ParseDuration("RULE_CACHE_TTL", 2*time.Second),
		},
		TrackDebug:                  ParseBool("TRACK_DEBUG", false),
		SyncProfileTracksWait:       ParseDuration("SYNC_PROFILE_TRACKS_WAIT", time.Second),
		SyncProfileTracksMaxRepeats: ParseInt("SYNC_PROFILE_TRACKS_MAX_REPEATS", 10),
		AllowedBridges:              splitList(ParseString("ALLOWED_BRIDGES", "rest")),
		InstancePrefix:              ParseString("INSTANCE_PREFIX", "trackd"),
		Production:                  ParseBool("PRODUCTION", false),
		ListenAddr:                  ParseString("LISTEN_ADDR", ":8686"),
		LogLevel:                    ParseString("LOG_LEVEL", "info"),
	}

	if strings.TrimSpace(cfg.Elastic.Host) == "" {
		return Config{}, fmt.Errorf("ELASTIC_HOST must not be empty")
	}
	if strings.TrimSpace(cfg.Redis.Host) == "" {
		return Config{}, fmt.Errorf("REDIS_HOST must not be empty")
	}
	if cfg.SyncProfileTracksMaxRepeats < 1 {
		return Config{}, fmt.Errorf("SYNC_PROFILE_TRACKS_MAX_REPEATS must be positive, got %d", cfg.SyncProfileTracksMaxRepeats)
	}
	return cfg, nil
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
