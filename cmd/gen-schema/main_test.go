// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schemas")
	require.NoError(t, generate(dir))

	for _, name := range []string{"config.schema.json", "plugin.schema.json"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc), name)
		assert.Contains(t, doc, "$id", name)
		assert.Contains(t, doc, "properties", name)
	}
}
