// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
)

// ConsoleLogs writes the console-log stream.
type ConsoleLogs struct {
	driver storage.Driver
	res    storage.Resolver
}

// SaveAll appends the records to the current monthly partition.
func (s *ConsoleLogs) SaveAll(ctx context.Context, records []domain.Console) (domain.BulkResult, error) {
	docs := make([]storage.Doc, 0, len(records))
	for _, record := range records {
		docs = append(docs, storage.Doc{ID: uuid.NewString(), Source: record})
	}
	index := s.res.WriteIndex(storage.IndexConsoleLog, time.Now().UTC())
	return s.driver.Upsert(ctx, index, docs)
}

// DebugInfo writes workflow call traces for debug-enabled requests.
type DebugInfo struct {
	driver storage.Driver
	res    storage.Resolver
}

// Save stores one debug artifact.
func (s *DebugInfo) Save(ctx context.Context, info any) (domain.BulkResult, error) {
	index := s.res.WriteIndex(storage.IndexDebugInfo, time.Now().UTC())
	return s.driver.Upsert(ctx, index, []storage.Doc{{ID: uuid.NewString(), Source: info}})
}
