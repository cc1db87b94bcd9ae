// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package resolver turns plugin names from configuration into loaded
// plugin values.
package resolver

import "strings"

// ModulePrefix is prepended to bare plugin names.
const ModulePrefix = "stockclerk-plugin"

// ModuleID maps a configured plugin name to the module identifier it is
// loaded by:
//
//	@scope/name  -> @scope/stockclerk-plugin-name
//	@scope       -> @scope/stockclerk-plugin
//	./x ../x /x  -> unchanged
//	name         -> stockclerk-plugin-name
func ModuleID(name string) string {
	if strings.HasPrefix(name, "@") {
		scope, rest, found := strings.Cut(name, "/")
		if !found {
			return scope + "/" + ModulePrefix
		}
		return scope + "/" + ModulePrefix + "-" + rest
	}
	if IsPath(name) {
		return name
	}
	return ModulePrefix + "-" + name
}

// IsPath reports whether id names a filesystem path rather than a module.
func IsPath(id string) bool {
	return strings.HasPrefix(id, "./") ||
		strings.HasPrefix(id, "../") ||
		strings.HasPrefix(id, "/")
}
