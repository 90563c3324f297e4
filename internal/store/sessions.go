// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
)

// Sessions reads and writes the session index.
type Sessions struct {
	driver storage.Driver
	res    storage.Resolver
}

func (s *Sessions) alias() string {
	return s.res.Alias(storage.IndexSession)
}

// Load returns the session by id or nil when missing. Two documents sharing
// the id surface as DuplicatedRecordError; the caller recovers through
// Correct.
func (s *Sessions) Load(ctx context.Context, id string) (*domain.Session, error) {
	records, err := s.driver.Search(ctx, s.alias(), map[string]any{
		"size":  2,
		"query": map[string]any{"ids": map[string]any{"values": []string{id}}},
	})
	if err != nil {
		return nil, err
	}
	if records.Total > 1 {
		return nil, &storage.DuplicatedRecordError{Index: s.alias(), ID: id, Total: records.Total}
	}
	hit := records.First()
	if hit == nil {
		return nil, nil
	}
	var session domain.Session
	if err := hit.Decode(&session); err != nil {
		return nil, err
	}
	// A loaded session is an existing one until resolution says otherwise.
	session.Operation = domain.Operation{}
	return &session, nil
}

// Save upserts the session, stripping the operation record. When persist is
// false the write is skipped and an empty result returned.
func (s *Sessions) Save(ctx context.Context, session *domain.Session, persist bool) (domain.BulkResult, error) {
	if !persist || session == nil {
		return domain.BulkResult{}, nil
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return domain.BulkResult{}, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.BulkResult{}, err
	}
	delete(doc, "operation")
	return s.driver.Upsert(ctx, s.alias(), []storage.Doc{{ID: session.ID, Source: doc}})
}

// Exists reports whether a session document with the id is stored.
func (s *Sessions) Exists(ctx context.Context, id string) (bool, error) {
	return s.driver.Exists(ctx, s.alias(), id)
}

// Refresh makes pending session writes readable. Run after a new-session
// insert to close the read-after-write window in which a concurrent request
// would fork a duplicate profile.
func (s *Sessions) Refresh(ctx context.Context) error {
	return s.driver.Refresh(ctx, s.alias())
}

// Correct repairs a duplicated session id: every document but the newest is
// deleted, and the distinct profile ids the duplicates referenced are
// returned so the caller can rebind a fresh session.
func (s *Sessions) Correct(ctx context.Context, id string) ([]string, error) {
	records, err := s.driver.Search(ctx, s.alias(), map[string]any{
		"query": map[string]any{"ids": map[string]any{"values": []string{id}}},
		"sort":  []any{map[string]any{"metadata.time.insert": "desc"}},
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var profileIDs []string
	for i, hit := range records.Hits {
		var session domain.Session
		if err := hit.Decode(&session); err != nil {
			return nil, err
		}
		if session.Profile != nil && session.Profile.ID != "" {
			if _, ok := seen[session.Profile.ID]; !ok {
				seen[session.Profile.ID] = struct{}{}
				profileIDs = append(profileIDs, session.Profile.ID)
			}
		}
		if i > 0 {
			if err := s.driver.Delete(ctx, hit.Index, hit.ID); err != nil {
				return nil, err
			}
		}
	}
	return profileIDs, nil
}
