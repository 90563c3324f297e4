// SPDX-License-Identifier: MIT

package domain

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLogStampsTime(t *testing.T) {
	var consoleLog ConsoleLog
	consoleLog.Append(Console{Type: ConsoleInfo, Message: "hello"})

	records := consoleLog.Records()
	assert.Len(t, records, 1)
	assert.False(t, records[0].Time.IsZero())
}

func TestConsoleLogConcurrentAppends(t *testing.T) {
	var consoleLog ConsoleLog

	const writers = 32
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			defer wg.Done()
			consoleLog.Append(Console{
				EventID: fmt.Sprintf("evt-%d", n),
				Type:    ConsoleInfo,
				Message: "trace",
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, writers, consoleLog.Len())
	assert.Len(t, consoleLog.Records(), writers)
	assert.Len(t, consoleLog.IndexedEventJournal(), writers)
}

func TestIndexedEventJournal(t *testing.T) {
	var consoleLog ConsoleLog
	consoleLog.Append(Console{EventID: "evt-1", Type: ConsoleError})
	consoleLog.Append(Console{EventID: "evt-2", Type: ConsoleWarning})
	consoleLog.Append(Console{EventID: "evt-3", Type: ConsoleInfo})
	consoleLog.Append(Console{Type: ConsoleError}) // no event id, not indexed

	journal := consoleLog.IndexedEventJournal()
	assert.Len(t, journal, 3)
	assert.True(t, journal["evt-1"].IsError())
	assert.False(t, journal["evt-1"].IsWarning())
	assert.True(t, journal["evt-2"].IsWarning())
	assert.False(t, journal["evt-3"].IsError())
	assert.False(t, journal["evt-3"].IsWarning())
}

func TestRuleConsentsMet(t *testing.T) {
	rule := &Rule{Properties: map[string]any{
		"consents": []any{map[string]any{"id": "marketing"}},
	}}

	assert.True(t, rule.ConsentsMet(nil), "no consents granted means no restriction")
	assert.True(t, rule.ConsentsMet(map[string]struct{}{"marketing": {}}))
	assert.False(t, rule.ConsentsMet(map[string]struct{}{"analytics": {}}))

	unrestricted := &Rule{}
	assert.True(t, unrestricted.ConsentsMet(map[string]struct{}{"analytics": {}}))
}
