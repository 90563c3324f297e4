// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/rs/zerolog"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/log"
)

// OpenSearchDriver talks to an Elasticsearch-compatible document store
// through the OpenSearch client.
type OpenSearchDriver struct {
	client  *opensearch.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewOpenSearchDriver connects to the store at host. Comma-separated hosts
// are supported. queryTimeout bounds every driver call.
func NewOpenSearchDriver(host string, queryTimeout time.Duration) (*OpenSearchDriver, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: strings.Split(host, ","),
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}
	return &OpenSearchDriver{
		client:  client,
		timeout: queryTimeout,
		logger:  log.WithComponent("storage"),
	}, nil
}

func (d *OpenSearchDriver) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// decodeResponse reads the body and fails on error responses.
func decodeResponse(res *opensearchapi.Response, op string, v any) error {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	if res.IsError() {
		return &StorageError{Op: op, Err: fmt.Errorf("status %d: %s", res.StatusCode, string(body))}
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

// Health returns cluster health details.
func (d *OpenSearchDriver) Health(ctx context.Context) (map[string]any, error) {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	res, err := opensearchapi.ClusterHealthRequest{}.Do(ctx, d.client)
	if err != nil {
		return nil, &StorageError{Op: "health", Err: err}
	}
	var health map[string]any
	if err := decodeResponse(res, "health", &health); err != nil {
		return nil, err
	}
	return health, nil
}

// Load returns the document source by id, or nil when missing.
func (d *OpenSearchDriver) Load(ctx context.Context, index, id string) (json.RawMessage, error) {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	res, err := opensearchapi.GetRequest{Index: index, DocumentID: id}.Do(ctx, d.client)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	if res.StatusCode == 404 {
		res.Body.Close()
		return nil, nil
	}
	var doc struct {
		Source json.RawMessage `json:"_source"`
	}
	if err := decodeResponse(res, "load", &doc); err != nil {
		return nil, err
	}
	return doc.Source, nil
}

// Exists reports whether a document with the id exists.
func (d *OpenSearchDriver) Exists(ctx context.Context, index, id string) (bool, error) {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	res, err := opensearchapi.ExistsRequest{Index: index, DocumentID: id}.Do(ctx, d.client)
	if err != nil {
		return false, &StorageError{Op: "exists", Err: err}
	}
	defer res.Body.Close()
	return res.StatusCode == 200, nil
}

// Search runs the query against the index or alias. A missing index yields
// an empty result rather than an error, matching read-before-first-write.
func (d *OpenSearchDriver) Search(ctx context.Context, index string, query map[string]any) (Records, error) {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	body, err := json.Marshal(query)
	if err != nil {
		return Records{}, &StorageError{Op: "search", Err: err}
	}
	res, err := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, d.client)
	if err != nil {
		return Records{}, &StorageError{Op: "search", Err: err}
	}
	if res.StatusCode == 404 {
		res.Body.Close()
		return Records{}, nil
	}
	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Index  string          `json:"_index"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decodeResponse(res, "search", &parsed); err != nil {
		return Records{}, err
	}
	records := Records{Total: parsed.Hits.Total.Value}
	for _, h := range parsed.Hits.Hits {
		records.Hits = append(records.Hits, Hit{ID: h.ID, Index: h.Index, Source: h.Source})
	}
	return records, nil
}

// Upsert bulk-writes the documents into the index.
func (d *OpenSearchDriver) Upsert(ctx context.Context, index string, docs []Doc) (domain.BulkResult, error) {
	if len(docs) == 0 {
		return domain.BulkResult{}, nil
	}
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{"index": map[string]any{"_index": index, "_id": doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return domain.BulkResult{}, &StorageError{Op: "upsert", Err: err}
		}
		if err := enc.Encode(doc.Source); err != nil {
			return domain.BulkResult{}, &StorageError{Op: "upsert", Err: err}
		}
	}

	res, err := opensearchapi.BulkRequest{Body: &buf}.Do(ctx, d.client)
	if err != nil {
		return domain.BulkResult{}, &StorageError{Op: "upsert", Err: err}
	}
	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string          `json:"_id"`
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := decodeResponse(res, "upsert", &parsed); err != nil {
		return domain.BulkResult{}, err
	}

	result := domain.BulkResult{}
	for _, item := range parsed.Items {
		for _, op := range item {
			if op.Status >= 400 {
				result.Errors = append(result.Errors, string(op.Error))
				continue
			}
			result.Saved++
			result.IDs = append(result.IDs, op.ID)
		}
	}
	if parsed.Errors {
		return result, &StorageError{Op: "upsert", Err: fmt.Errorf("bulk write returned %d row errors", len(result.Errors)), Rows: result.Errors}
	}
	return result, nil
}

// Delete removes one document from a concrete index.
func (d *OpenSearchDriver) Delete(ctx context.Context, index, id string) error {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	res, err := opensearchapi.DeleteRequest{Index: index, DocumentID: id}.Do(ctx, d.client)
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	if res.StatusCode == 404 {
		res.Body.Close()
		return nil
	}
	return decodeResponse(res, "delete", nil)
}

// Refresh makes pending writes visible to searches.
func (d *OpenSearchDriver) Refresh(ctx context.Context, index string) error {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	res, err := opensearchapi.IndicesRefreshRequest{Index: []string{index}}.Do(ctx, d.client)
	if err != nil {
		return &StorageError{Op: "refresh", Err: err}
	}
	return decodeResponse(res, "refresh", nil)
}

// IndexExists reports whether the concrete index or alias exists.
func (d *OpenSearchDriver) IndexExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	res, err := opensearchapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, d.client)
	if err != nil {
		return false, &StorageError{Op: "index exists", Err: err}
	}
	defer res.Body.Close()
	return res.StatusCode == 200, nil
}

// TemplateExists reports whether the index template exists.
func (d *OpenSearchDriver) TemplateExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	res, err := opensearchapi.IndicesExistsTemplateRequest{Name: []string{name}}.Do(ctx, d.client)
	if err != nil {
		return false, &StorageError{Op: "template exists", Err: err}
	}
	defer res.Body.Close()
	return res.StatusCode == 200, nil
}

// CreateIndex creates a concrete index with the given body.
func (d *OpenSearchDriver) CreateIndex(ctx context.Context, name string, body map[string]any) error {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return &StorageError{Op: "create index", Err: err}
	}
	res, err := opensearchapi.IndicesCreateRequest{Index: name, Body: bytes.NewReader(raw)}.Do(ctx, d.client)
	if err != nil {
		return &StorageError{Op: "create index", Err: err}
	}
	return decodeResponse(res, "create index", nil)
}

// PutTemplate installs an index template.
func (d *OpenSearchDriver) PutTemplate(ctx context.Context, name string, body map[string]any) error {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return &StorageError{Op: "put template", Err: err}
	}
	res, err := opensearchapi.IndicesPutTemplateRequest{Name: name, Body: bytes.NewReader(raw)}.Do(ctx, d.client)
	if err != nil {
		return &StorageError{Op: "put template", Err: err}
	}
	return decodeResponse(res, "put template", nil)
}

// PutAlias points an alias at a concrete index.
func (d *OpenSearchDriver) PutAlias(ctx context.Context, index, alias string) error {
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	res, err := opensearchapi.IndicesPutAliasRequest{Index: []string{index}, Name: alias}.Do(ctx, d.client)
	if err != nil {
		return &StorageError{Op: "put alias", Err: err}
	}
	return decodeResponse(res, "put alias", nil)
}
