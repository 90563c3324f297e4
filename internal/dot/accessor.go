// SPDX-License-Identifier: MIT

// Package dot implements the dotted-path accessor used by event reshaping.
// Paths take the form "scope@key.subkey", where the scope is one of the
// documents bound to the accessor: profile, session, payload, event, flow or
// memory.
package dot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Accessor binds named scopes and resolves dotted paths against them.
type Accessor struct {
	scopes map[string]map[string]any
}

// New returns an accessor with no scopes bound.
func New() *Accessor {
	return &Accessor{scopes: make(map[string]map[string]any)}
}

// Bind attaches a document under the scope name. Structs are flattened
// through their JSON form; nil documents unbind the scope.
func (a *Accessor) Bind(scope string, doc any) error {
	if doc == nil {
		delete(a.scopes, scope)
		return nil
	}
	if m, ok := doc.(map[string]any); ok {
		a.scopes[scope] = m
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("bind scope %q: %w", scope, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("bind scope %q: %w", scope, err)
	}
	a.scopes[scope] = m
	return nil
}

// Get resolves a "scope@a.b.c" path. A bare path without a scope marker
// resolves against the event scope.
func (a *Accessor) Get(path string) (any, error) {
	scope := "event"
	rest := path
	if at := strings.Index(path, "@"); at >= 0 {
		scope = path[:at]
		rest = path[at+1:]
	}
	doc, ok := a.scopes[scope]
	if !ok {
		return nil, fmt.Errorf("scope %q is not bound", scope)
	}
	return getPath(doc, rest)
}

func getPath(doc map[string]any, path string) (any, error) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q does not resolve to a mapping", path)
		}
		current, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("key %q not found in path %q", part, path)
		}
	}
	return current, nil
}

// SetPath writes a value into a mapping at a dotted path, creating
// intermediate mappings as needed.
func SetPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
