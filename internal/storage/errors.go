// SPDX-License-Identifier: MIT

package storage

import "fmt"

// DuplicatedRecordError reports that more than one document shares an id that
// must be unique. Callers recover locally: the session corrector for
// sessions, deduplication for profiles.
type DuplicatedRecordError struct {
	Index string
	ID    string
	Total int
}

func (e *DuplicatedRecordError) Error() string {
	return fmt.Sprintf("id %q duplicated in index %q: %d documents", e.ID, e.Index, e.Total)
}

// StorageError wraps a failed driver operation with the per-row details the
// backend returned, if any.
type StorageError struct {
	Op   string
	Err  error
	Rows []string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
