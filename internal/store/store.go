// SPDX-License-Identifier: MIT

// Package store exposes typed, per-index access on top of the storage
// driver. Each store owns one logical index of the catalog.
package store

import (
	"github.com/trackdhq/trackd/internal/storage"
)

// Store bundles the per-index stores over one driver and name resolver.
type Store struct {
	Profiles    *Profiles
	Sessions    *Sessions
	Events      *Events
	Sources     *Sources
	Rules       *Rules
	Flows       *Flows
	Segments    *Segments
	EventTypes  *EventTypes
	ConsoleLogs *ConsoleLogs
	DebugInfo   *DebugInfo
}

// New builds the store set.
func New(driver storage.Driver, res storage.Resolver) *Store {
	return &Store{
		Profiles:    &Profiles{driver: driver, res: res},
		Sessions:    &Sessions{driver: driver, res: res},
		Events:      &Events{driver: driver, res: res},
		Sources:     &Sources{driver: driver, res: res},
		Rules:       &Rules{driver: driver, res: res},
		Flows:       &Flows{driver: driver, res: res},
		Segments:    &Segments{driver: driver, res: res},
		EventTypes:  &EventTypes{driver: driver, res: res},
		ConsoleLogs: &ConsoleLogs{driver: driver, res: res},
		DebugInfo:   &DebugInfo{driver: driver, res: res},
	}
}
