// SPDX-License-Identifier: MIT

// Package storagetest provides an in-memory storage.Driver for tests. It
// understands the query shapes the stores issue: id lookups, the profile
// id/ids should-query, filtered rule lookups and term matches, plus sorting
// by insert time.
package storagetest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
)

type entry struct {
	index string
	id    string
	doc   map[string]any
}

// Driver is an in-memory implementation of storage.Driver.
type Driver struct {
	mu        sync.Mutex
	entries   []entry
	aliases   map[string][]string
	templates map[string]map[string]any
	created   map[string]map[string]any
	refreshes map[string]int

	// HealthErr, when set, makes Health fail.
	HealthErr error
	// UpsertErr fails writes to the given index or alias.
	UpsertErr map[string]error
}

// New returns an empty driver.
func New() *Driver {
	return &Driver{
		aliases:   map[string][]string{},
		templates: map[string]map[string]any{},
		created:   map[string]map[string]any{},
		refreshes: map[string]int{},
	}
}

// Put stores a document under the index, replacing any document with the
// same id in the same index.
func (d *Driver) Put(index, id string, doc any) {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.index == index && e.id == id {
			d.entries[i].doc = m
			return
		}
	}
	d.entries = append(d.entries, entry{index: index, id: id, doc: m})
}

// AddAlias registers concrete indices under an alias.
func (d *Driver) AddAlias(alias string, indices ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aliases[alias] = append(d.aliases[alias], indices...)
}

// Refreshes returns how often Refresh ran for the index.
func (d *Driver) Refreshes(index string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshes[index]
}

// Count returns the number of documents reachable through the index, its
// alias members or its partitions.
func (d *Driver) Count(index string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.collect(index))
}

// Docs returns every document reachable through the index.
func (d *Driver) Docs(index string) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	var docs []map[string]any
	for _, e := range d.collect(index) {
		docs = append(docs, e.doc)
	}
	return docs
}

// Get returns a stored document and whether it exists.
func (d *Driver) Get(index, id string) (map[string]any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.collect(index) {
		if e.id == id {
			return e.doc, true
		}
	}
	return nil, false
}

// collect resolves the index name to entries: exact match, alias members and
// time partitions. A partition suffix starts with a digit, which keeps
// "...-event" from matching "...-event-tag".
func (d *Driver) collect(index string) []entry {
	members := map[string]struct{}{index: {}}
	for _, m := range d.aliases[index] {
		members[m] = struct{}{}
	}
	var out []entry
	for _, e := range d.entries {
		if _, ok := members[e.index]; ok || isPartitionOf(e.index, index) {
			out = append(out, e)
		}
	}
	return out
}

func isPartitionOf(name, index string) bool {
	rest, found := strings.CutPrefix(name, index+"-")
	return found && rest != "" && rest[0] >= '0' && rest[0] <= '9'
}

func (d *Driver) Health(context.Context) (map[string]any, error) {
	if d.HealthErr != nil {
		return nil, d.HealthErr
	}
	return map[string]any{"status": "green"}, nil
}

func (d *Driver) Load(_ context.Context, index, id string) (json.RawMessage, error) {
	doc, ok := d.Get(index, id)
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (d *Driver) Exists(_ context.Context, index, id string) (bool, error) {
	_, ok := d.Get(index, id)
	return ok, nil
}

func (d *Driver) Search(_ context.Context, index string, query map[string]any) (storage.Records, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []entry
	for _, e := range d.collect(index) {
		if matchQuery(query["query"], e.doc) {
			matched = append(matched, e)
		}
	}

	if wantsInsertSortDesc(query) {
		sort.SliceStable(matched, func(i, j int) bool {
			return insertTime(matched[i].doc) > insertTime(matched[j].doc)
		})
	}

	total := len(matched)
	if size, ok := query["size"].(int); ok && size < len(matched) {
		matched = matched[:size]
	}

	records := storage.Records{Total: total}
	for _, e := range matched {
		raw, err := json.Marshal(e.doc)
		if err != nil {
			return storage.Records{}, err
		}
		records.Hits = append(records.Hits, storage.Hit{ID: e.id, Index: e.index, Source: raw})
	}
	return records, nil
}

func (d *Driver) Upsert(_ context.Context, index string, docs []storage.Doc) (domain.BulkResult, error) {
	if err := d.UpsertErr[index]; err != nil {
		return domain.BulkResult{}, err
	}
	result := domain.BulkResult{}
	for _, doc := range docs {
		d.Put(index, doc.ID, doc.Source)
		result.Saved++
		result.IDs = append(result.IDs, doc.ID)
	}
	return result, nil
}

func (d *Driver) Delete(_ context.Context, index, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.index == index && e.id == id {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (d *Driver) Refresh(_ context.Context, index string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshes[index]++
	return nil
}

func (d *Driver) IndexExists(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.created[name]; ok {
		return true, nil
	}
	_, ok := d.aliases[name]
	return ok, nil
}

func (d *Driver) TemplateExists(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.templates[name]
	return ok, nil
}

func (d *Driver) CreateIndex(_ context.Context, name string, body map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created[name] = body
	return nil
}

func (d *Driver) PutTemplate(_ context.Context, name string, body map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.templates[name] = body
	return nil
}

func (d *Driver) PutAlias(_ context.Context, index, alias string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aliases[alias] = append(d.aliases[alias], index)
	return nil
}

// matchQuery interprets the query subset the stores use.
func matchQuery(query any, doc map[string]any) bool {
	q, ok := query.(map[string]any)
	if !ok || len(q) == 0 {
		return true
	}
	for kind, body := range q {
		switch kind {
		case "ids":
			if !matchIDs(body, doc) {
				return false
			}
		case "term":
			if !matchTerm(body, doc) {
				return false
			}
		case "terms":
			if !matchTerms(body, doc) {
				return false
			}
		case "bool":
			if !matchBool(body, doc) {
				return false
			}
		case "match_all":
		default:
			return false
		}
	}
	return true
}

func matchIDs(body any, doc map[string]any) bool {
	b, ok := body.(map[string]any)
	if !ok {
		return false
	}
	values := toStrings(b["values"])
	id, _ := doc["id"].(string)
	for _, v := range values {
		if v == id {
			return true
		}
	}
	return false
}

func matchTerm(body any, doc map[string]any) bool {
	b, ok := body.(map[string]any)
	if !ok {
		return false
	}
	for field, want := range b {
		if !fieldEquals(doc, field, want) {
			return false
		}
	}
	return true
}

func matchTerms(body any, doc map[string]any) bool {
	b, ok := body.(map[string]any)
	if !ok {
		return false
	}
	for field, wants := range b {
		matched := false
		for _, want := range toStrings(wants) {
			if fieldEquals(doc, field, want) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func matchBool(body any, doc map[string]any) bool {
	b, ok := body.(map[string]any)
	if !ok {
		return false
	}
	if filters, ok := b["filter"].([]any); ok {
		for _, filter := range filters {
			if !matchQuery(filter, doc) {
				return false
			}
		}
	}
	if shoulds, ok := b["should"].([]any); ok {
		matched := false
		for _, should := range shoulds {
			if matchQuery(should, doc) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// fieldEquals resolves a dotted field against the document and compares. A
// list field matches when any element equals the value.
func fieldEquals(doc map[string]any, field string, want any) bool {
	var current any = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = m[part]
		if !ok {
			return false
		}
	}
	if list, ok := current.([]any); ok {
		for _, item := range list {
			if item == want {
				return true
			}
		}
		return false
	}
	return current == want
}

func toStrings(v any) []string {
	switch values := v.(type) {
	case []string:
		return values
	case []any:
		out := make([]string, 0, len(values))
		for _, item := range values {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func wantsInsertSortDesc(query map[string]any) bool {
	sorts, ok := query["sort"].([]any)
	if !ok {
		return false
	}
	for _, s := range sorts {
		if m, ok := s.(map[string]any); ok {
			if _, ok := m["metadata.time.insert"]; ok {
				return true
			}
		}
	}
	return false
}

func insertTime(doc map[string]any) string {
	meta, ok := doc["metadata"].(map[string]any)
	if !ok {
		return ""
	}
	t, ok := meta["time"].(map[string]any)
	if !ok {
		return ""
	}
	insert, _ := t["insert"].(string)
	return insert
}
