// SPDX-License-Identifier: MIT

// Package tracker implements the event tracking core: it takes a decoded
// TrackerPayload, resolves the session and profile it belongs to, runs the
// workflow and segmentation engines over its events and persists the
// resulting entity streams, returning a synchronous response to the caller.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/trackdhq/trackd/internal/cache"
	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/log"
	"github.com/trackdhq/trackd/internal/store"
	"github.com/trackdhq/trackd/internal/synchronizer"
)

// Config carries the tracker settings resolved at startup.
type Config struct {
	// TrackDebug enables debug artifacts for requests that also set the
	// debugger option.
	TrackDebug bool

	// Per-namespace cache TTLs.
	SessionTTL  time.Duration
	SourceTTL   time.Duration
	EventTagTTL time.Duration
	FlowTTL     time.Duration
	SegmentTTL  time.Duration
	RuleTTL     time.Duration
}

// Tracker drives tracker payloads through the staged pipeline. The external
// engines are injected at startup; deployments without them run the no-op
// implementations.
type Tracker struct {
	store      *store.Store
	cache      cache.Cache
	sync       *synchronizer.ProfileTracks
	rules      RulesEngine
	segmenter  Segmenter
	merger     ProfileMerger
	dispatcher DestinationDispatcher
	cfg        Config
	logger     zerolog.Logger
}

// New builds a tracker. sync may be nil when no lock store is configured;
// sources requesting profile synchronization then run unserialized.
func New(st *store.Store, c cache.Cache, sync *synchronizer.ProfileTracks, cfg Config) *Tracker {
	return &Tracker{
		store:      st,
		cache:      c,
		sync:       sync,
		rules:      NopRulesEngine{},
		segmenter:  NopSegmenter{},
		merger:     NopProfileMerger{},
		dispatcher: NopDispatcher{},
		cfg:        cfg,
		logger:     log.WithComponent("tracker"),
	}
}

// WithEngines replaces the no-op external engines. Nil arguments keep the
// current implementation.
func (t *Tracker) WithEngines(rules RulesEngine, segmenter Segmenter, merger ProfileMerger, dispatcher DestinationDispatcher) *Tracker {
	if rules != nil {
		t.rules = rules
	}
	if segmenter != nil {
		t.segmenter = segmenter
	}
	if merger != nil {
		t.merger = merger
	}
	if dispatcher != nil {
		t.dispatcher = dispatcher
	}
	return t
}

// Options qualify one track request.
type Options struct {
	// ClientIP is the caller address stamped into the session context.
	ClientIP string

	// ProfileLess collects events without creating or updating a profile.
	ProfileLess bool

	// AllowedBridges is the endpoint's allow-list of source kinds.
	AllowedBridges []string

	// InternalSource is the trusted loopback source; when set, its id must
	// match the payload's source id.
	InternalSource *domain.EventSource

	// RunAsync detaches the pipeline and answers immediately after
	// resolution.
	RunAsync bool

	// StaticProfileID trusts the payload's profile id for this request and
	// creates the profile with that exact id on a miss.
	StaticProfileID bool
}

// Track ingests one tracker payload: source validation, optional profile
// synchronization, session/profile resolution and the pipeline. The returned
// response is what the collector hands back to the client.
func (t *Tracker) Track(ctx context.Context, payload *domain.TrackerPayload, opts Options) (*Response, error) {
	payload.TrimIDs()

	source, err := t.validateSource(ctx, payload, opts)
	if err != nil {
		return nil, err
	}

	var response *Response
	run := func() error {
		var err error
		response, err = t.resolveAndRun(ctx, payload, source, opts)
		return err
	}

	if source.SynchronizeProfiles && t.sync != nil {
		err = t.sync.WithLock(ctx, domain.EntityID(payload.Profile), run)
		if errors.Is(err, synchronizer.ErrLockTimeout) || errors.Is(err, synchronizer.ErrLockUnavailable) {
			return nil, &TransientError{Err: err}
		}
	} else {
		err = run()
	}
	if err != nil {
		return nil, err
	}
	return response, nil
}

// validateSource resolves the payload's source reference into a full source
// configuration and authorizes the request against it.
func (t *Tracker) validateSource(ctx context.Context, payload *domain.TrackerPayload, opts Options) (*domain.EventSource, error) {
	if opts.InternalSource != nil {
		if opts.InternalSource.ID != payload.Source.ID {
			return nil, ErrUnauthorized
		}
		return opts.InternalSource, nil
	}

	source, err := t.loadSource(ctx, payload.Source.ID)
	if err != nil {
		return nil, err
	}
	if source == nil || !source.Enabled || !source.AllowsBridge(opts.AllowedBridges) {
		return nil, ErrUnauthorized
	}
	return source, nil
}

// resolveAndRun is step one of the track process: propagate source options,
// resolve the session and profile and hand over to the pipeline. With
// RunAsync the pipeline detaches; its errors then only reach the console log
// and the process log.
func (t *Tracker) resolveAndRun(ctx context.Context, payload *domain.TrackerPayload, source *domain.EventSource, opts Options) (*Response, error) {
	payload.ApplySource(source)
	payload.ForceSession()

	session, err := t.loadOrRecoverSession(ctx, payload.Session.ID)
	if err != nil {
		return nil, err
	}

	var profile *domain.Profile
	if opts.StaticProfileID {
		profile, session, err = t.resolveStatic(ctx, payload, session, opts.ProfileLess)
	} else {
		profile, session, err = t.resolveDynamic(ctx, payload, session, opts.ProfileLess)
	}
	if err != nil {
		return nil, err
	}
	t.stampClientIP(session, source, opts.ClientIP)

	if opts.RunAsync {
		detached := context.WithoutCancel(ctx)
		go func() {
			if _, err := t.runPipeline(detached, payload, source, opts.ProfileLess, profile, session); err != nil {
				t.logger.Error().Err(err).Str("payload_id", payload.GetID()).Msg("detached pipeline failed")
			}
		}()
		response := &Response{
			UX:       []map[string]any{},
			Response: map[string]any{},
		}
		if profile != nil {
			response.Profile = map[string]any{"id": profile.ID}
		}
		return response, nil
	}

	return t.runPipeline(ctx, payload, source, opts.ProfileLess, profile, session)
}

// stampClientIP records the caller address and the source channel on the
// session context.
func (t *Tracker) stampClientIP(session *domain.Session, source *domain.EventSource, ip string) {
	if session == nil {
		return
	}
	if ip != "" {
		if session.Context == nil {
			session.Context = map[string]any{}
		}
		session.Context["ip"] = ip
	}
	if source.Channel != "" {
		session.Metadata.Channel = source.Channel
	}
}
