// SPDX-License-Identifier: MIT

package domain

// BulkResult summarizes one bulk index write.
type BulkResult struct {
	Saved  int      `json:"saved"`
	IDs    []string `json:"ids,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// SaveResult is the events write result plus the types that were written.
type SaveResult struct {
	BulkResult
	Types []string `json:"types,omitempty"`
}

// CollectResult is the outcome of the persistence coordinator: one write
// result per entity stream.
type CollectResult struct {
	Profile BulkResult `json:"profile"`
	Session BulkResult `json:"session"`
	Events  SaveResult `json:"events"`
}
