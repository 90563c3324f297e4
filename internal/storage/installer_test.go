// SPDX-License-Identifier: MIT

package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdhq/trackd/internal/storage"
	"github.com/trackdhq/trackd/internal/storage/storagetest"
)

func TestInstallerInstallsBothContexts(t *testing.T) {
	driver := storagetest.New()
	installer := storage.NewInstaller(driver, "trackd")
	ctx := context.Background()

	missing, err := installer.Missing(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, missing)

	require.NoError(t, installer.Install(ctx))

	missing, err = installer.Missing(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	// Static indices exist behind their alias in both contexts.
	for _, alias := range []string{"trackd-stage-profile", "trackd-prod-profile", "trackd-stage-session"} {
		exists, err := driver.IndexExists(ctx, alias)
		require.NoError(t, err)
		assert.True(t, exists, alias)
	}
	// Partitioned streams get templates, not indices.
	exists, err := driver.TemplateExists(ctx, "trackd-stage-event-template")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInstallIsIdempotent(t *testing.T) {
	driver := storagetest.New()
	installer := storage.NewInstaller(driver, "trackd")
	ctx := context.Background()

	require.NoError(t, installer.Install(ctx))
	require.NoError(t, installer.Install(ctx))

	missing, err := installer.Missing(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestWaitForConnectionGivesUp(t *testing.T) {
	driver := storagetest.New()
	driver.HealthErr = errors.New("connection refused")

	err := storage.WaitForConnection(context.Background(), driver, 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestWaitForConnectionSucceeds(t *testing.T) {
	driver := storagetest.New()
	require.NoError(t, storage.WaitForConnection(context.Background(), driver, 1, time.Millisecond))
}

func TestWaitForSchemaInstallsAndSucceeds(t *testing.T) {
	driver := storagetest.New()
	installer := storage.NewInstaller(driver, "trackd")

	require.NoError(t, storage.WaitForSchema(context.Background(), installer, 2, time.Millisecond))
}
