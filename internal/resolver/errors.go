// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package resolver

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes for resolution failures.
const (
	CodeNotFound   = "PLUGIN_NOT_FOUND"
	CodeLoadFailed = "PLUGIN_LOAD_FAILED"
)

// ErrModuleNotFound is returned when no loader knows a module.
var ErrModuleNotFound = errors.New("plugin module not found")

// NotFound reports that id could not be found. Loaders return it so a
// Chain can move on to the next loader.
func NotFound(id string) error {
	return oops.In("resolver").
		Code(CodeNotFound).
		With("module", id).
		Wrapf(ErrModuleNotFound, "module %s", id)
}

// LoadFailed reports that id was found but could not be loaded. When the
// cause already carries a code, that more specific code is kept.
func LoadFailed(id string, cause error) error {
	return oops.In("resolver").
		Code(CodeLoadFailed).
		With("module", id).
		Wrapf(cause, "load module %s", id)
}
