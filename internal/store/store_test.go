// SPDX-License-Identifier: MIT

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
	"github.com/trackdhq/trackd/internal/storage/storagetest"
	"github.com/trackdhq/trackd/internal/store"
)

func newTestStore() (*store.Store, *storagetest.Driver) {
	driver := storagetest.New()
	res := storage.Resolver{Prefix: "trackd"}
	return store.New(driver, res), driver
}

func TestProfilesLoadMergedByCurrentID(t *testing.T) {
	stores, driver := newTestStore()
	driver.Put("trackd-stage-profile", "prof-1", domain.NewProfileWithID("prof-1"))

	profile, err := stores.Profiles.LoadMerged(context.Background(), "prof-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "prof-1", profile.ID)
}

func TestProfilesLoadMergedByHistoricID(t *testing.T) {
	stores, driver := newTestStore()
	merged := domain.NewProfileWithID("prof-new")
	merged.IDs = append(merged.IDs, "prof-old")
	driver.Put("trackd-stage-profile", "prof-new", merged)

	profile, err := stores.Profiles.LoadMerged(context.Background(), "prof-old")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "prof-new", profile.ID)
}

func TestProfilesLoadMergedMiss(t *testing.T) {
	stores, _ := newTestStore()
	profile, err := stores.Profiles.LoadMerged(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestProfilesDeduplicateKeepsNewest(t *testing.T) {
	stores, driver := newTestStore()

	older := domain.NewProfileWithID("prof-1")
	older.Metadata.Time.Insert = time.Now().Add(-time.Hour)
	newer := domain.NewProfileWithID("prof-1")
	newer.Traits.Public = map[string]any{"plan": "pro"}

	driver.Put("trackd-stage-profile-000001", "prof-1", older)
	driver.Put("trackd-stage-profile-000002", "prof-1", newer)
	driver.AddAlias("trackd-stage-profile", "trackd-stage-profile-000001", "trackd-stage-profile-000002")

	profile, err := stores.Profiles.LoadMerged(context.Background(), "prof-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "pro", profile.Traits.Public["plan"])
	assert.Equal(t, 1, driver.Count("trackd-stage-profile"))
}

func TestProfilesSaveStripsOperation(t *testing.T) {
	stores, driver := newTestStore()
	profile := domain.NewProfileWithID("prof-1")
	profile.Operation.Update = true

	_, err := stores.Profiles.Save(context.Background(), profile)
	require.NoError(t, err)

	doc, ok := driver.Get("trackd-stage-profile", "prof-1")
	require.True(t, ok)
	assert.NotContains(t, doc, "operation")
}

func TestSessionsLoadMissingIsNil(t *testing.T) {
	stores, _ := newTestStore()
	session, err := stores.Sessions.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionsLoadDuplicated(t *testing.T) {
	stores, driver := newTestStore()
	driver.Put("trackd-stage-session-000001", "sess-1", domain.NewSession("sess-1"))
	driver.Put("trackd-stage-session-000002", "sess-1", domain.NewSession("sess-1"))
	driver.AddAlias("trackd-stage-session", "trackd-stage-session-000001", "trackd-stage-session-000002")

	_, err := stores.Sessions.Load(context.Background(), "sess-1")
	var duplicated *storage.DuplicatedRecordError
	require.ErrorAs(t, err, &duplicated)
	assert.Equal(t, 2, duplicated.Total)
}

func TestSessionsCorrectKeepsNewestAndReturnsProfiles(t *testing.T) {
	stores, driver := newTestStore()

	older := domain.NewSession("sess-1")
	older.Metadata.Time.Insert = time.Now().Add(-time.Hour)
	older.Profile = &domain.Entity{ID: "prof-7"}
	newer := domain.NewSession("sess-1")
	newer.Profile = &domain.Entity{ID: "prof-7"}

	driver.Put("trackd-stage-session-000001", "sess-1", older)
	driver.Put("trackd-stage-session-000002", "sess-1", newer)
	driver.AddAlias("trackd-stage-session", "trackd-stage-session-000001", "trackd-stage-session-000002")

	profileIDs, err := stores.Sessions.Correct(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"prof-7"}, profileIDs)
	assert.Equal(t, 1, driver.Count("trackd-stage-session"))
}

func TestSessionsSaveSkippedWhenNotPersisted(t *testing.T) {
	stores, driver := newTestStore()
	result, err := stores.Sessions.Save(context.Background(), domain.NewSession("sess-1"), false)
	require.NoError(t, err)
	assert.Zero(t, result.Saved)
	assert.Equal(t, 0, driver.Count("trackd-stage-session"))
}

func TestEventsSaveAllPartitionsByMonth(t *testing.T) {
	stores, driver := newTestStore()
	event := &domain.Event{Entity: domain.Entity{ID: "evt-1"}, Type: "pageview"}

	result, err := stores.Events.SaveAll(context.Background(), []*domain.Event{event})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, []string{"pageview"}, result.Types)

	partition := storage.Resolver{Prefix: "trackd"}.WriteIndex(storage.IndexEvent, time.Now().UTC())
	_, ok := driver.Get(partition, "evt-1")
	assert.True(t, ok)
}

func TestRulesLoadEnabledFiltersBySourceAndType(t *testing.T) {
	stores, driver := newTestStore()
	driver.Put("trackd-stage-rule", "rule-1", domain.Rule{
		NamedEntity: domain.NamedEntity{ID: "rule-1", Name: "on pageview"},
		Event:       domain.NamedEntity{ID: "pageview"},
		Source:      domain.NamedEntity{ID: "src-1"},
		Enabled:     true,
	})
	driver.Put("trackd-stage-rule", "rule-2", domain.Rule{
		NamedEntity: domain.NamedEntity{ID: "rule-2"},
		Event:       domain.NamedEntity{ID: "pageview"},
		Source:      domain.NamedEntity{ID: "src-other"},
		Enabled:     true,
	})
	driver.Put("trackd-stage-rule", "rule-3", domain.Rule{
		NamedEntity: domain.NamedEntity{ID: "rule-3"},
		Event:       domain.NamedEntity{ID: "pageview"},
		Source:      domain.NamedEntity{ID: "src-1"},
		Enabled:     false,
	})

	rules, err := stores.Rules.LoadEnabled(context.Background(), "src-1", []string{"pageview"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "rule-1", rules[0].ID)
}

func TestEventTypesLoadMiss(t *testing.T) {
	stores, _ := newTestStore()
	meta, err := stores.EventTypes.Load(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, meta)
}
