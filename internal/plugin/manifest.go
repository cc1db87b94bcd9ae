// Package plugin describes filesystem plugin modules: their plugin.yaml
// manifest and its schema.
package plugin

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest filename inside a plugin directory.
const ManifestFile = "plugin.yaml"

// CodeManifestInvalid is the oops code for unusable manifests.
const CodeManifestInvalid = "MANIFEST_INVALID"

// Type identifies the plugin runtime.
type Type string

// Plugin types supported by the system.
const (
	TypeLua    Type = "lua"
	TypeBinary Type = "binary"
)

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string        `yaml:"name" json:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version      string        `yaml:"version" json:"version"`
	Type         Type          `yaml:"type" json:"type" jsonschema:"enum=lua,enum=binary"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Requires     string        `yaml:"requires,omitempty" json:"requires,omitempty" jsonschema:"description=semver constraint on the stockclerk version"`
	Capabilities []string      `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	LuaPlugin    *LuaConfig    `yaml:"lua-plugin,omitempty" json:"lua-plugin,omitempty"`
	BinaryPlugin *BinaryConfig `yaml:"binary-plugin,omitempty" json:"binary-plugin,omitempty"`
}

// LuaConfig holds Lua-specific configuration.
type LuaConfig struct {
	Entry string `yaml:"entry" json:"entry"`
}

// BinaryConfig holds binary plugin configuration.
type BinaryConfig struct {
	Executable string   `yaml:"executable" json:"executable"`
	Args       []string `yaml:"args,omitempty" json:"args,omitempty"`
}

const maxNameLength = 64

// Must start with a lowercase letter and not end with a hyphen.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, manifestError().Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, manifestError().Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return manifestError().With("name", m.Name).
			Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return manifestError().With("name", m.Name).
			Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return manifestError().With("name", m.Name).Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return manifestError().With("name", m.Name).With("version", m.Version).
			Wrapf(err, "version must be semver")
	}
	if m.Requires != "" {
		if _, err := semver.NewConstraint(m.Requires); err != nil {
			return manifestError().With("name", m.Name).With("requires", m.Requires).
				Wrapf(err, "invalid requires constraint")
		}
	}

	switch m.Type {
	case TypeLua:
		if m.LuaPlugin == nil || m.LuaPlugin.Entry == "" {
			return manifestError().With("name", m.Name).Errorf("lua-plugin.entry is required when type is lua")
		}
	case TypeBinary:
		if m.BinaryPlugin == nil || m.BinaryPlugin.Executable == "" {
			return manifestError().With("name", m.Name).Errorf("binary-plugin.executable is required when type is binary")
		}
	default:
		return manifestError().With("name", m.Name).Errorf("type must be 'lua' or 'binary', got %q", m.Type)
	}

	return nil
}

// CheckHostVersion reports whether hostVersion satisfies the manifest's
// requires constraint. Non-semver host versions (development builds) and
// manifests without a constraint always pass.
func (m *Manifest) CheckHostVersion(hostVersion string) error {
	if m.Requires == "" {
		return nil
	}
	v, err := semver.NewVersion(hostVersion)
	if err != nil {
		return nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return manifestError().With("requires", m.Requires).Wrapf(err, "invalid requires constraint")
	}
	if ok, errs := c.Validate(v); !ok {
		builder := manifestError().
			With("name", m.Name).
			With("requires", m.Requires).
			With("host_version", hostVersion).
			Hint("upgrade stockclerk or pin an older plugin version")
		if len(errs) > 0 {
			return builder.Wrapf(errs[0], "plugin %s requires stockclerk %s", m.Name, m.Requires)
		}
		return builder.Errorf("plugin %s requires stockclerk %s", m.Name, m.Requires)
	}
	return nil
}

func manifestError() oops.OopsErrorBuilder {
	return oops.In("manifest").Code(CodeManifestInvalid)
}
