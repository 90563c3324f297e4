// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trackdhq/trackd/internal/cache"
	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/metrics"
	"github.com/trackdhq/trackd/internal/storage"
)

// persist fans out the entity writes. The profile and the session write
// start together; the events write starts only after the session write (and
// its refresh, when the session is new) completed, so a persisted event
// never references a session a concurrent reader cannot find.
func (t *Tracker) persist(ctx context.Context, consoleLog *domain.ConsoleLog, session *domain.Session, events []*domain.Event, payload *domain.TrackerPayload, profile *domain.Profile) (domain.CollectResult, error) {
	var result domain.CollectResult

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		saved, err := t.saveProfile(ctx, profile)
		result.Profile = saved
		return err
	})
	group.Go(func() error {
		saved, err := t.saveSession(ctx, payload, session)
		result.Session = saved
		if err != nil {
			return err
		}
		savedEvents, err := t.saveEvents(ctx, payload, consoleLog, events)
		result.Events = savedEvents
		return err
	})

	if err := group.Wait(); err != nil {
		return result, err
	}
	metrics.TrackEventsPersistedTotal.Add(float64(result.Events.Saved))
	return result, nil
}

// saveProfile writes the profile when it is new or carries pending changes.
func (t *Tracker) saveProfile(ctx context.Context, profile *domain.Profile) (domain.BulkResult, error) {
	if profile == nil || (!profile.Operation.New && !profile.Operation.NeedsUpdate()) {
		return domain.BulkResult{}, nil
	}
	profile.Operation.New = false
	result, err := t.store.Profiles.Save(ctx, profile)
	if err != nil {
		return result, fieldTypeConflict("could not save profile", err)
	}
	return result, nil
}

// saveSession writes the session unless the saveSession option suppresses
// it. A new-session insert is followed by an index refresh: until the
// document is readable a concurrent request would miss the session and fork
// a duplicate profile.
func (t *Tracker) saveSession(ctx context.Context, payload *domain.TrackerPayload, session *domain.Session) (domain.BulkResult, error) {
	persist := payload.IsOn(domain.OptionSaveSession, true)
	result, err := t.store.Sessions.Save(ctx, session, persist)
	if err != nil {
		return result, fieldTypeConflict("could not save session", err)
	}
	if persist && session != nil && session.Operation.New {
		if err := t.store.Sessions.Refresh(ctx); err != nil {
			return result, fieldTypeConflict("could not refresh sessions", err)
		}
		t.cache.Delete(ctx, cache.NamespaceSession, session.ID)
	}
	return result, nil
}

// saveEvents finalizes and writes the event stream: process time, session
// reference reconciliation, status reconciliation against the console log
// and tag enrichment from the cached event type metadata.
func (t *Tracker) saveEvents(ctx context.Context, payload *domain.TrackerPayload, consoleLog *domain.ConsoleLog, events []*domain.Event) (domain.SaveResult, error) {
	persistEvents := payload.IsOn(domain.OptionSaveEvents, true)
	persistSession := payload.IsOn(domain.OptionSaveSession, true)
	journal := consoleLog.IndexedEventJournal()
	now := time.Now().UTC()

	for _, event := range events {
		event.Metadata.Time.ProcessTime = now.Sub(event.Metadata.Time.Insert).Seconds()

		// A suppressed session write leaves events pointing at a session id
		// that may never exist; drop the reference unless the session is
		// already stored.
		if !persistSession && event.Session != nil {
			exists, err := t.store.Sessions.Exists(ctx, event.Session.ID)
			if err != nil || !exists {
				event.Session = nil
			}
		}

		if entry, ok := journal[event.ID]; ok {
			switch {
			case entry.IsError():
				event.Metadata.Error = true
				continue
			case entry.IsWarning():
				event.Metadata.Warning = true
				continue
			}
		}
		event.Metadata.Status = domain.StatusProcessed
	}

	if !persistEvents {
		return domain.SaveResult{}, nil
	}

	persistent := make([]*domain.Event, 0, len(events))
	for _, event := range events {
		if !event.IsPersistent() {
			continue
		}
		meta, err := t.loadEventTypeMetadata(ctx, event.Type)
		if err != nil {
			t.logger.Error().Err(err).Str("event_type", event.Type).Msg("could not load tags for event type")
		} else if meta != nil {
			event.UnionTags(meta.Tags)
		}
		persistent = append(persistent, event)
	}

	result, err := t.store.Events.SaveAll(ctx, persistent)
	if err != nil {
		return result, fieldTypeConflict("could not save events", err)
	}
	return result, nil
}

// fieldTypeConflict wraps a storage failure for the caller, carrying the
// per-row details the backend reported.
func fieldTypeConflict(message string, err error) error {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		return &FieldTypeConflictError{Message: message, Rows: storageErr.Rows, Err: err}
	}
	return &FieldTypeConflictError{Message: message, Err: err}
}
