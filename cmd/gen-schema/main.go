// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Command gen-schema writes the JSON Schemas for pipeline config files and
// plugin manifests.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stockclerk/stockclerk/internal/config"
	"github.com/stockclerk/stockclerk/internal/plugin"
)

type target struct {
	file     string
	generate func() ([]byte, error)
}

var targets = []target{
	{file: "config.schema.json", generate: config.GenerateSchema},
	{file: "plugin.schema.json", generate: plugin.GenerateSchema},
}

func main() {
	outDir := "schemas"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := generate(outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func generate(outDir string) error {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	for _, t := range targets {
		schema, err := t.generate()
		if err != nil {
			return fmt.Errorf("generating %s: %w", t.file, err)
		}
		outPath := filepath.Join(outDir, t.file)
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
	return nil
}
