// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stockclerk/stockclerk/internal/plugin"
	"github.com/stockclerk/stockclerk/internal/plugin/capability"
	"github.com/stockclerk/stockclerk/internal/plugin/goplugin"
	pluginlua "github.com/stockclerk/stockclerk/internal/plugin/lua"
	pluginpkg "github.com/stockclerk/stockclerk/pkg/plugin"
)

// DirLoader loads filesystem modules: a directory holding a plugin.yaml
// manifest, a Lua script, or an executable speaking the binary plugin
// protocol.
type DirLoader[T any] struct {
	// Search decides where module identifiers are looked up.
	Search SearchPaths
	// Lua runs scripted modules. Required for Lua modules.
	Lua *pluginlua.Runtime
	// Binary runs executable modules. Required for binary modules.
	Binary *goplugin.Runtime
	// HostVersion is checked against manifest requires constraints.
	HostVersion string
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	mu        sync.Mutex
	instances map[string]int
}

var _ ModuleLoader[any] = (*DirLoader[any])(nil)

// Load implements ModuleLoader. Failures are returned unwrapped; Resolver
// attaches the module context.
func (d *DirLoader[T]) Load(ctx context.Context, id, workingDir string) (pluginpkg.Plugin, error) {
	for _, candidate := range d.Search.Candidates(id, workingDir) {
		p, found, err := d.loadCandidate(ctx, candidate)
		if !found {
			continue
		}
		if err != nil {
			return nil, err
		}
		d.logger().DebugContext(ctx, "module loaded from filesystem", "module", id, "path", candidate)
		return p, nil
	}
	return nil, NotFound(id)
}

func (d *DirLoader[T]) loadCandidate(ctx context.Context, path string) (pluginpkg.Plugin, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, true, err
		}
		if strings.HasSuffix(path, ".lua") {
			return nil, false, nil
		}
		script := path + ".lua"
		if _, err := os.Stat(script); err != nil {
			return nil, false, nil
		}
		p, err := d.openScript(ctx, script)
		return p, true, err
	}

	switch {
	case info.IsDir():
		p, err := d.loadDir(ctx, path)
		return p, true, err
	case strings.HasSuffix(path, ".lua"):
		p, err := d.openScript(ctx, path)
		return p, true, err
	case info.Mode().Perm()&0o111 != 0:
		p, err := d.launch(ctx, goplugin.Module{Name: moduleName(path), Path: path})
		return p, true, err
	default:
		return nil, true, fmt.Errorf("%s is neither a plugin directory, a Lua script nor an executable", path)
	}
}

func (d *DirLoader[T]) loadDir(ctx context.Context, dir string) (pluginpkg.Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, plugin.ManifestFile)) // #nosec G304 -- dir comes from the module search path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s has no %s", dir, plugin.ManifestFile)
		}
		return nil, err
	}
	m, err := plugin.LoadManifest(data)
	if err != nil {
		return nil, err
	}
	if err := m.CheckHostVersion(d.HostVersion); err != nil {
		return nil, err
	}

	switch m.Type {
	case plugin.TypeLua:
		return d.open(ctx, pluginlua.Module{
			Name:   d.instanceName(m.Name),
			Path:   filepath.Join(dir, m.LuaPlugin.Entry),
			Grants: m.Capabilities,
		})
	case plugin.TypeBinary:
		return d.launch(ctx, goplugin.Module{
			Name: m.Name,
			Path: filepath.Join(dir, m.BinaryPlugin.Executable),
			Args: m.BinaryPlugin.Args,
		})
	default:
		return nil, fmt.Errorf("unsupported plugin type %q", m.Type)
	}
}

// openScript opens a bare script. Bare scripts have no manifest, so they
// get the whole host API.
func (d *DirLoader[T]) openScript(ctx context.Context, path string) (pluginpkg.Plugin, error) {
	return d.open(ctx, pluginlua.Module{
		Name:   d.instanceName(moduleName(path)),
		Path:   path,
		Grants: []string{capability.AllHost},
	})
}

func (d *DirLoader[T]) open(ctx context.Context, mod pluginlua.Module) (pluginpkg.Plugin, error) {
	if d.Lua == nil {
		return nil, fmt.Errorf("no Lua runtime configured for %s", mod.Path)
	}
	return pluginlua.Open[T](ctx, d.Lua, mod)
}

func (d *DirLoader[T]) launch(ctx context.Context, mod goplugin.Module) (pluginpkg.Plugin, error) {
	if d.Binary == nil {
		return nil, fmt.Errorf("no binary plugin runtime configured for %s", mod.Path)
	}
	mod.Name = d.instanceName(mod.Name)
	return goplugin.Launch[T](ctx, d.Binary, mod)
}

// instanceName keeps runtime names unique when a module is loaded twice.
func (d *DirLoader[T]) instanceName(name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instances == nil {
		d.instances = make(map[string]int)
	}
	d.instances[name]++
	if n := d.instances[name]; n > 1 {
		return fmt.Sprintf("%s#%d", name, n)
	}
	return name
}

func (d *DirLoader[T]) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func moduleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".lua")
}
