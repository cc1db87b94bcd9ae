// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package config loads pipeline configuration from Lua, JSON or YAML files.
package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"

	"github.com/stockclerk/stockclerk/internal/schema"
)

// Error codes for configuration failures.
const (
	CodeInvalid    = "CONFIG_INVALID"
	CodeReadFailed = "CONFIG_READ_FAILED"
)

// Filenames are the conventional config files, in discovery priority.
// The extensionless name holds JSON.
var Filenames = []string{
	".stockclerkrc",
	".stockclerkrc.lua",
	".stockclerkrc.json",
	".stockclerkrc.yaml",
	".stockclerkrc.yml",
}

// Config is a pipeline configuration.
type Config struct {
	// Options are handed to every plugin through the host.
	Options map[string]any `json:"options,omitempty" jsonschema:"description=Options shared with every plugin"`
	// Plugins are loaded in order. Order is pipeline order.
	Plugins []string `json:"plugins,omitempty" jsonschema:"description=Plugin names or paths in pipeline order"`
}

// Format is a config file format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatLua  Format = "lua"
)

// FormatOf picks the format from the file extension: Lua for .lua, YAML
// for .yaml and .yml, JSON otherwise.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return FormatLua
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and validates the config file at path.
func Load(ctx context.Context, path string) (*Config, error) {
	errb := oops.In("config").With("path", path)

	k := koanf.New(".")
	var err error
	switch FormatOf(path) {
	case FormatLua:
		err = k.Load(&luaProvider{ctx: ctx, path: path}, nil)
	case FormatYAML:
		err = k.Load(file.Provider(path), yaml.Parser())
	default:
		err = k.Load(file.Provider(path), json.Parser())
	}
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, errb.Code(CodeReadFailed).Hint("check the config file exists and is readable").Wrap(err)
		}
		return nil, errb.Code(CodeInvalid).Wrapf(err, "parse config")
	}

	if err := configSchema.Validate(k.Raw()); err != nil {
		return nil, errb.Code(CodeInvalid).Hint(schema.Message(err)).Wrap(err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, errb.Code(CodeInvalid).Wrapf(err, "decode config")
	}
	for i, name := range cfg.Plugins {
		if strings.TrimSpace(name) == "" {
			return nil, errb.Code(CodeInvalid).With("index", i).Errorf("plugins[%d] is empty", i)
		}
	}
	if cfg.Options == nil {
		cfg.Options = map[string]any{}
	}
	return &cfg, nil
}

// Discover returns the first conventional config file present in dir.
// found is false when there is none.
func Discover(dir string) (path string, found bool, err error) {
	for _, name := range Filenames {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, true, nil
		case err == nil, errors.Is(err, fs.ErrNotExist):
			continue
		default:
			return "", false, oops.In("config").
				Code(CodeReadFailed).
				With("path", candidate).
				Wrapf(err, "probe config file")
		}
	}
	return "", false, nil
}
