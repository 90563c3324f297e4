// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/trackdhq/trackd/internal/log"
)

// Installer creates the catalog's indices, aliases and templates for both
// server contexts and reports schema completeness.
type Installer struct {
	driver Driver
	prefix string
}

// NewInstaller returns an installer over the driver. prefix is the instance
// prefix shared by every index name.
func NewInstaller(driver Driver, prefix string) *Installer {
	return &Installer{driver: driver, prefix: prefix}
}

func (i *Installer) resolvers() []Resolver {
	return []Resolver{
		{Prefix: i.prefix, Production: false},
		{Prefix: i.prefix, Production: true},
	}
}

func defaultIndexBody() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		"mappings": map[string]any{
			"dynamic": true,
		},
	}
}

// Missing returns the catalog pieces that do not exist yet, across both
// server contexts. An empty result means the schema is complete.
func (i *Installer) Missing(ctx context.Context) ([]string, error) {
	var missing []string
	for _, r := range i.resolvers() {
		for _, idx := range Catalog() {
			if template, ok := r.Template(idx); ok {
				exists, err := i.driver.TemplateExists(ctx, template)
				if err != nil {
					return nil, err
				}
				if !exists {
					missing = append(missing, template)
				}
				continue
			}
			exists, err := i.driver.IndexExists(ctx, r.Alias(idx))
			if err != nil {
				return nil, err
			}
			if !exists {
				missing = append(missing, r.Alias(idx))
			}
		}
	}
	return missing, nil
}

// Install creates every missing piece of the schema. Static indices are
// created together with their alias; partitioned streams get a template so
// monthly partitions materialize on first write, already carrying the read
// alias.
func (i *Installer) Install(ctx context.Context) error {
	logger := log.WithComponent("installer")
	for _, r := range i.resolvers() {
		for _, idx := range Catalog() {
			if template, ok := r.Template(idx); ok {
				exists, err := i.driver.TemplateExists(ctx, template)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				body := defaultIndexBody()
				body["index_patterns"] = []string{r.Pattern(idx)}
				body["aliases"] = map[string]any{r.Alias(idx): map[string]any{}}
				if err := i.driver.PutTemplate(ctx, template, body); err != nil {
					return fmt.Errorf("install template %s: %w", template, err)
				}
				logger.Info().Str("template", template).Msg("created index template")
				continue
			}

			alias := r.Alias(idx)
			exists, err := i.driver.IndexExists(ctx, alias)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			concrete := alias + "-000001"
			if err := i.driver.CreateIndex(ctx, concrete, defaultIndexBody()); err != nil {
				return fmt.Errorf("install index %s: %w", concrete, err)
			}
			if err := i.driver.PutAlias(ctx, concrete, alias); err != nil {
				return fmt.Errorf("install alias %s: %w", alias, err)
			}
			logger.Info().Str("index", concrete).Str("alias", alias).Msg("created index")
		}
	}
	return nil
}

// WaitForConnection polls storage health until it answers or the tries are
// exhausted. Returns an error when the store never became reachable; the
// daemon exits on that.
func WaitForConnection(ctx context.Context, driver Driver, tries int, wait time.Duration) error {
	logger := log.WithComponent("bootstrap")
	for attempt := 1; ; attempt++ {
		health, err := driver.Health(ctx)
		if err == nil {
			logger.Info().Interface("health", health).Msg("connected to storage")
			return nil
		}
		if attempt >= tries {
			return fmt.Errorf("storage unreachable after %d tries: %w", tries, err)
		}
		logger.Error().Err(err).Int("tries_left", tries-attempt).Msg("could not connect to storage, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// WaitForSchema polls schema completeness, installing missing pieces on each
// round, until the schema is complete or the tries are exhausted.
func WaitForSchema(ctx context.Context, installer *Installer, tries int, wait time.Duration) error {
	logger := log.WithComponent("bootstrap")
	for attempt := 1; ; attempt++ {
		if err := installer.Install(ctx); err != nil {
			logger.Error().Err(err).Msg("schema install attempt failed")
		}
		missing, err := installer.Missing(ctx)
		if err == nil && len(missing) == 0 {
			logger.Info().Msg("schema complete")
			return nil
		}
		if attempt >= tries {
			return fmt.Errorf("schema incomplete after %d tries, missing %v", tries, missing)
		}
		logger.Warn().Strs("missing", missing).Int("tries_left", tries-attempt).Msg("schema not installed, waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
