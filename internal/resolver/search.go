// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package resolver

import "path/filepath"

// PluginsDirName is the per-project directory modules are looked up in.
const PluginsDirName = "plugins"

// SearchPaths lists where filesystem modules are looked up.
type SearchPaths struct {
	// Extra directories searched after the working directory and its
	// parents, in order.
	Extra []string
}

// Candidates returns the paths id may live at, in lookup order. Path
// identifiers resolve against workingDir; module identifiers are looked
// up in <dir>/plugins for workingDir and each parent, then in Extra.
func (s SearchPaths) Candidates(id, workingDir string) []string {
	if filepath.IsAbs(id) {
		return []string{filepath.Clean(id)}
	}
	if IsPath(id) {
		return []string{filepath.Join(workingDir, id)}
	}

	rel := filepath.FromSlash(id)
	var out []string
	dir := filepath.Clean(workingDir)
	for {
		out = append(out, filepath.Join(dir, PluginsDirName, rel))
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	for _, extra := range s.Extra {
		if extra == "" {
			continue
		}
		out = append(out, filepath.Join(extra, rel))
	}
	return out
}
