// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package capability decides which host functions a scripted plugin may call.
//
// Grants are gobwas/glob patterns with '.' as the segment separator:
//   - '*' matches a single segment ("host.*" matches "host.publish")
//   - '**' matches any number of segments ("**" matches everything)
package capability

import (
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Capabilities guarding the host API exposed to scripted plugins.
const (
	HostPublish     = "host.publish"
	HostReportError = "host.report_error"
	HostOptions     = "host.options"

	// AllHost grants every host capability.
	AllHost = "host.**"
)

// CodeCapabilityDenied is the oops code for denied host calls.
const CodeCapabilityDenied = "CAPABILITY_DENIED"

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks plugin capabilities at runtime. The zero value is ready
// to use and it is safe for concurrent use.
type Enforcer struct {
	mu     sync.RWMutex
	grants map[string][]compiledGrant
}

// NewEnforcer creates a capability enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

// SetGrants replaces the grants of plugin. Either every pattern compiles
// and the grants are replaced, or an error is returned and nothing changes.
func (e *Enforcer) SetGrants(plugin string, patterns []string) error {
	if plugin == "" {
		return oops.In("capability").Errorf("plugin name cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.In("capability").With("plugin", plugin).With("index", i).
				Errorf("empty capability pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.In("capability").With("plugin", plugin).With("pattern", pattern).
				Wrapf(err, "invalid capability pattern")
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[plugin] = compiled
	return nil
}

// RemoveGrants forgets plugin. Unknown plugins are ignored.
func (e *Enforcer) RemoveGrants(plugin string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, plugin)
}

// Grants returns a copy of the patterns granted to plugin, or nil if the
// plugin is unknown.
func (e *Enforcer) Grants(plugin string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[plugin]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Check reports whether plugin holds capability. Unknown plugins and empty
// capabilities are denied.
func (e *Enforcer) Check(plugin, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, grant := range e.grants[plugin] {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}

// Require is Check returning an error suitable for surfacing to the plugin.
func (e *Enforcer) Require(plugin, capability string) error {
	if e.Check(plugin, capability) {
		return nil
	}
	return oops.In("capability").
		Code(CodeCapabilityDenied).
		With("plugin", plugin).
		With("capability", capability).
		Hint("add the capability to the plugin manifest").
		Errorf("capability denied: %s", capability)
}
