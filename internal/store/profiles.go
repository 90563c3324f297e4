// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
)

// Profiles reads and writes the profile index.
type Profiles struct {
	driver storage.Driver
	res    storage.Resolver
}

func (s *Profiles) alias() string {
	return s.res.Alias(storage.IndexProfile)
}

// LoadMerged returns the canonical profile for the id, following merges: the
// lookup matches the current id or any historic id in the identity list. A
// duplicated profile is repaired in place by keeping the newest document.
// Returns nil when no profile exists.
func (s *Profiles) LoadMerged(ctx context.Context, id string) (*domain.Profile, error) {
	query := map[string]any{
		"size": 2,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"ids": id}},
					map[string]any{"term": map[string]any{"id": id}},
				},
				"minimum_should_match": 1,
			},
		},
	}
	records, err := s.driver.Search(ctx, s.alias(), query)
	if err != nil {
		return nil, err
	}
	if records.Total > 1 {
		return s.Deduplicate(ctx, id)
	}
	hit := records.First()
	if hit == nil {
		return nil, nil
	}
	var profile domain.Profile
	if err := hit.Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Deduplicate keeps the newest of the documents sharing the id and deletes
// the rest, returning the survivor.
func (s *Profiles) Deduplicate(ctx context.Context, id string) (*domain.Profile, error) {
	records, err := s.driver.Search(ctx, s.alias(), map[string]any{
		"query": map[string]any{"ids": map[string]any{"values": []string{id}}},
		"sort":  []any{map[string]any{"metadata.time.insert": "desc"}},
	})
	if err != nil {
		return nil, err
	}
	hit := records.First()
	if hit == nil {
		return nil, nil
	}
	var profile domain.Profile
	if err := hit.Decode(&profile); err != nil {
		return nil, err
	}
	for _, duplicate := range records.Hits[1:] {
		if err := s.driver.Delete(ctx, duplicate.Index, duplicate.ID); err != nil {
			return nil, err
		}
	}
	return &profile, nil
}

// Save upserts the profile, stripping the operation record.
func (s *Profiles) Save(ctx context.Context, profile *domain.Profile) (domain.BulkResult, error) {
	doc := profile.Snapshot()
	return s.driver.Upsert(ctx, s.alias(), []storage.Doc{{ID: profile.ID, Source: doc}})
}

// Refresh makes pending profile writes readable.
func (s *Profiles) Refresh(ctx context.Context) error {
	return s.driver.Refresh(ctx, s.alias())
}
