// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"time"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
)

// Events writes the event stream.
type Events struct {
	driver storage.Driver
	res    storage.Resolver
}

// SaveAll bulk-writes the events into the current monthly partition and
// returns the save result annotated with the written types.
func (s *Events) SaveAll(ctx context.Context, events []*domain.Event) (domain.SaveResult, error) {
	docs := make([]storage.Doc, 0, len(events))
	for _, event := range events {
		docs = append(docs, storage.Doc{ID: event.ID, Source: event})
	}
	index := s.res.WriteIndex(storage.IndexEvent, time.Now().UTC())
	bulk, err := s.driver.Upsert(ctx, index, docs)
	result := domain.SaveResult{BulkResult: bulk}
	for _, event := range events {
		result.Types = append(result.Types, event.Type)
	}
	return result, err
}
