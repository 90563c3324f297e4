// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"encoding/json"

	"github.com/trackdhq/trackd/internal/domain"
)

// Doc is one document of a bulk write.
type Doc struct {
	ID     string
	Source any
}

// Hit is one search result with the concrete index it came from.
type Hit struct {
	ID     string
	Index  string
	Source json.RawMessage
}

// Records is a page of search hits.
type Records struct {
	Total int
	Hits  []Hit
}

// First returns the first hit or nil.
func (r Records) First() *Hit {
	if len(r.Hits) == 0 {
		return nil
	}
	return &r.Hits[0]
}

// Decode unmarshals the hit source into v.
func (h *Hit) Decode(v any) error {
	return json.Unmarshal(h.Source, v)
}

// Driver is the document index contract the core depends on. Implementations
// must be safe for concurrent use; every call is a suspension point bounded
// by the context deadline.
type Driver interface {
	// Health returns cluster health details or an error when unreachable.
	Health(ctx context.Context) (map[string]any, error)

	// Load returns the document by id, or nil when missing.
	Load(ctx context.Context, index, id string) (json.RawMessage, error)

	// Exists reports whether a document with the id exists.
	Exists(ctx context.Context, index, id string) (bool, error)

	// Search runs the query against the index or alias.
	Search(ctx context.Context, index string, query map[string]any) (Records, error)

	// Upsert bulk-writes the documents.
	Upsert(ctx context.Context, index string, docs []Doc) (domain.BulkResult, error)

	// Delete removes one document from a concrete index.
	Delete(ctx context.Context, index, id string) error

	// Refresh makes pending writes visible to searches.
	Refresh(ctx context.Context, index string) error

	// Schema operations used by the installer.
	IndexExists(ctx context.Context, name string) (bool, error)
	TemplateExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, body map[string]any) error
	PutTemplate(ctx context.Context, name string, body map[string]any) error
	PutAlias(ctx context.Context, index, alias string) error
}
