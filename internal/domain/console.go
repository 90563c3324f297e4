// SPDX-License-Identifier: MIT

package domain

import (
	"sync"
	"time"
)

// Console severities.
const (
	ConsoleError   = "error"
	ConsoleWarning = "warning"
	ConsoleInfo    = "info"
)

// Console is one structured diagnostic record produced while a payload moves
// through the pipeline. The collected log is flushed to its own index after
// persistence.
type Console struct {
	Time      time.Time `json:"time"`
	EventID   string    `json:"event_id,omitempty"`
	ProfileID string    `json:"profile_id,omitempty"`
	FlowID    string    `json:"flow_id,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Origin    string    `json:"origin"`
	Class     string    `json:"class"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Traceback string    `json:"traceback,omitempty"`
}

// ConsoleLog accumulates per-request diagnostic records. Safe for concurrent
// use: late pipeline stages append from the persistence task group while the
// request goroutine is still recording.
type ConsoleLog struct {
	mu      sync.Mutex
	records []Console
}

// Append adds a record, stamping the time if unset.
func (l *ConsoleLog) Append(c Console) {
	if c.Time.IsZero() {
		c.Time = time.Now().UTC()
	}
	l.mu.Lock()
	l.records = append(l.records, c)
	l.mu.Unlock()
}

// Records returns a snapshot of the collected records.
func (l *ConsoleLog) Records() []Console {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Console(nil), l.records...)
}

// Len returns the number of collected records.
func (l *ConsoleLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// EventJournal summarizes record severities per event id. Used by the
// persistence coordinator to reconcile event statuses.
type EventJournal struct {
	hasError   bool
	hasWarning bool
}

// IsError reports whether any error record was tagged to the event.
func (j EventJournal) IsError() bool { return j.hasError }

// IsWarning reports whether any warning record was tagged to the event.
func (j EventJournal) IsWarning() bool { return j.hasWarning }

// IndexedEventJournal groups the log by event id.
func (l *ConsoleLog) IndexedEventJournal() map[string]EventJournal {
	l.mu.Lock()
	defer l.mu.Unlock()
	journal := make(map[string]EventJournal)
	for _, c := range l.records {
		if c.EventID == "" {
			continue
		}
		j := journal[c.EventID]
		switch c.Type {
		case ConsoleError:
			j.hasError = true
		case ConsoleWarning:
			j.hasWarning = true
		}
		journal[c.EventID] = j
	}
	return journal
}
