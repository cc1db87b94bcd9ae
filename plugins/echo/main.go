// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Command echo is an example binary plugin. It stamps statuses that have no
// source with options.echo.source and logs what it sees on stderr, which
// the host forwards to its own log.
//
// Build it into a plugins directory next to a config file:
//
//	go build -o plugins/stockclerk-plugin-echo ./plugins/echo
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stockclerk/stockclerk/pkg/plugin"
	"github.com/stockclerk/stockclerk/pkg/pluginsdk"
)

const defaultSource = "echo"

// Echo implements the Load and HandleMessage hooks.
type Echo struct {
	source string
}

// Load reads echo.source from the host options.
func (e *Echo) Load(_ context.Context, host pluginsdk.Host) error {
	e.source = plugin.OptionString(host.Options(), "echo.source", defaultSource)
	return nil
}

// HandleMessage fills in missing sources.
func (e *Echo) HandleMessage(_ context.Context, msg pluginsdk.Message) (pluginsdk.Message, error) {
	source := e.source
	if source == "" {
		source = defaultSource
	}
	out := msg.Clone()
	for i := range out {
		if out[i].Source == "" {
			out[i].Source = source
		}
	}
	fmt.Fprintf(os.Stderr, "echo: %d statuses\n", len(out))
	return out, nil
}

func main() {
	pluginsdk.Serve(&pluginsdk.ServeConfig{Plugin: &Echo{}})
}
