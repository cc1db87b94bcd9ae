// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package host

import (
	"fmt"

	"github.com/samber/oops"
)

// Error codes for host failures.
const (
	CodeLifecycleFailed = "PLUGIN_LIFECYCLE_FAILED"
	CodePluginPanic     = "PLUGIN_PANIC"
)

// ErrLifecycle wraps a Load, Start or Stop failure with the plugin it came from.
func ErrLifecycle(plugin, hook string, cause error) error {
	return oops.In("host").
		Code(CodeLifecycleFailed).
		With("plugin", plugin).
		With("hook", hook).
		Wrapf(cause, "plugin %s: %s", plugin, hook)
}

// panicError converts a recovered panic value into an error. Panics with an
// error value keep that error in the chain.
func panicError(plugin, hook string, recovered any) error {
	builder := oops.In("host").
		Code(CodePluginPanic).
		With("plugin", plugin).
		With("hook", hook)
	if err, ok := recovered.(error); ok {
		return builder.Wrapf(err, "plugin %s panicked in %s", plugin, hook)
	}
	return builder.Errorf("plugin %s panicked in %s: %s", plugin, hook, fmt.Sprint(recovered))
}
