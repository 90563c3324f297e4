// SPDX-License-Identifier: MIT

// Package storage defines the document index catalog and the driver used to
// read and write it. The concrete backend is an Elasticsearch-compatible
// store reached through the OpenSearch client.
package storage

import (
	"fmt"
	"time"
)

// Index is one logical index of the catalog. Partitioned indices are
// time-partitioned streams written through a monthly index behind a template;
// static indices are written directly behind an alias.
type Index struct {
	Name        string
	Partitioned bool
}

// The index catalog. Entity streams (event, console-log, debug-info) are
// partitioned; configuration and identity indices are static.
var (
	IndexProfile    = Index{Name: "profile"}
	IndexSession    = Index{Name: "session"}
	IndexEvent      = Index{Name: "event", Partitioned: true}
	IndexConsoleLog = Index{Name: "console-log", Partitioned: true}
	IndexDebugInfo  = Index{Name: "debug-info", Partitioned: true}
	IndexRule       = Index{Name: "rule"}
	IndexSegment    = Index{Name: "segment"}
	IndexFlow       = Index{Name: "flow"}
	IndexSource     = Index{Name: "source"}
	IndexEventTag   = Index{Name: "event-tag"}
)

// Catalog lists every index the schema installer manages.
func Catalog() []Index {
	return []Index{
		IndexProfile, IndexSession, IndexEvent, IndexConsoleLog,
		IndexDebugInfo, IndexRule, IndexSegment, IndexFlow,
		IndexSource, IndexEventTag,
	}
}

// Resolver maps logical indices to concrete names. The server context
// (production vs staging) selects between two alias sets, so both contexts
// can share one cluster.
type Resolver struct {
	Prefix     string
	Production bool
}

func (r Resolver) context() string {
	if r.Production {
		return "prod"
	}
	return "stage"
}

// Alias returns the read alias of the index, e.g. "trackd-prod-event".
func (r Resolver) Alias(idx Index) string {
	return fmt.Sprintf("%s-%s-%s", r.Prefix, r.context(), idx.Name)
}

// WriteIndex returns the concrete index writes go to. Partitioned streams
// write to a monthly partition; static indices write through the alias.
func (r Resolver) WriteIndex(idx Index, now time.Time) string {
	if !idx.Partitioned {
		return r.Alias(idx)
	}
	return fmt.Sprintf("%s-%s", r.Alias(idx), now.UTC().Format("2006-01"))
}

// Pattern returns the index pattern matching every partition of the stream.
func (r Resolver) Pattern(idx Index) string {
	return r.Alias(idx) + "-*"
}

// Template returns the index template name of a partitioned stream and
// whether the index has one.
func (r Resolver) Template(idx Index) (string, bool) {
	if !idx.Partitioned {
		return "", false
	}
	return r.Alias(idx) + "-template", true
}
