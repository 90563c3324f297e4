// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/trackdhq/trackd/internal/cache"
	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
)

// loadOrRecoverSession fetches the session by id through the session cache.
// A duplicated session id is repaired by the session corrector: the
// duplicates collapse to the newest document and a fresh session with the
// original id takes their place. When all duplicates pointed at one profile
// that binding survives.
func (t *Tracker) loadOrRecoverSession(ctx context.Context, id string) (*domain.Session, error) {
	session, err := cache.Through(ctx, t.cache, cache.NamespaceSession, id, t.cfg.SessionTTL,
		func(ctx context.Context) (*domain.Session, error) {
			return t.store.Sessions.Load(ctx, id)
		})
	if err == nil {
		return session, nil
	}

	var duplicated *storage.DuplicatedRecordError
	if !errors.As(err, &duplicated) {
		return nil, err
	}
	t.logger.Error().Err(err).Str("session_id", id).Msg("duplicated session, correcting")

	profileIDs, err := t.store.Sessions.Correct(ctx, id)
	if err != nil {
		return nil, err
	}
	t.cache.Delete(ctx, cache.NamespaceSession, id)

	session = domain.NewSession(id)
	session.Operation.New = true
	if len(profileIDs) == 1 {
		session.Profile = &domain.Entity{ID: profileIDs[0]}
	}
	return session, nil
}

// resolveDynamic materializes the (profile, session) pair for the payload.
// The session may have been loaded or may be absent; the profile reference
// may be present, absent or forged. Resolution creates what is missing and
// rebinds the session when the profile it pointed at was merged away.
func (t *Tracker) resolveDynamic(ctx context.Context, payload *domain.TrackerPayload, session *domain.Session, profileLess bool) (*domain.Profile, *domain.Session, error) {
	isNewProfile := false
	isNewSession := false
	var profile *domain.Profile

	if session == nil {
		session = domain.NewSession(payload.Session.ID)
		isNewSession = true
		t.logger.Debug().Str("session_id", session.ID).Msg("new session created")

		if !profileLess {
			if payload.Profile == nil {
				profile = domain.NewProfile()
				isNewProfile = true
			} else {
				// An id was delivered; a miss means no such profile was
				// ever stored and one is created under the delivered id.
				loaded, err := t.store.Profiles.LoadMerged(ctx, payload.Profile.ID)
				if err != nil {
					return nil, nil, err
				}
				if loaded == nil {
					profile = domain.NewProfileWithID(payload.Profile.ID)
					isNewProfile = true
				} else {
					profile = loaded
				}
			}
			session.Profile = &domain.Entity{ID: profile.ID}
		}
	} else if !profileLess {
		if session.Profile != nil {
			loaded, err := t.store.Profiles.LoadMerged(ctx, session.Profile.ID)
			if err != nil {
				return nil, nil, err
			}
			profile = loaded
			if profile != nil && session.Profile.ID != profile.ID {
				// The profile the session pointed at was merged elsewhere.
				// Rebind and force a session write so later requests read
				// the canonical id.
				session.Profile.ID = profile.ID
				session.Metadata.Time.Timestamp = float64(time.Now().UTC().UnixNano()) / 1e9
				isNewSession = true
			}
		}
		if profile == nil {
			// Session without a profile, or the binding loads nothing.
			profile = domain.NewProfile()
			isNewProfile = true
			session.Profile = &domain.Entity{ID: profile.ID}
			isNewSession = true
		}
	}

	session.MergeContext(payload.Context, payload.Properties)
	session.Operation.New = isNewSession
	if !profileLess && profile != nil {
		profile.Operation.New = isNewProfile
	}
	return profile, session, nil
}

// resolveStatic trusts the payload's profile id: the profile is loaded
// through merges and, on a miss, created with that exact id. The session is
// created only when none was loaded.
func (t *Tracker) resolveStatic(ctx context.Context, payload *domain.TrackerPayload, session *domain.Session, profileLess bool) (*domain.Profile, *domain.Session, error) {
	var profile *domain.Profile

	if !profileLess {
		if payload.Profile == nil || payload.Profile.ID == "" {
			return nil, nil, ErrInvalidArgument
		}
		loaded, err := t.store.Profiles.LoadMerged(ctx, payload.Profile.ID)
		if err != nil {
			return nil, nil, err
		}
		if loaded == nil {
			profile = domain.NewProfileWithID(payload.Profile.ID)
			profile.Operation.New = true
		} else {
			profile = loaded
		}

		if session == nil {
			session = domain.NewSession(payload.Session.ID)
			session.Profile = &domain.Entity{ID: profile.ID}
			session.Operation.New = true
		}
	}

	if session != nil {
		session.MergeContext(payload.Context, payload.Properties)
	}
	return profile, session, nil
}
