// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package plugin

import (
	"encoding/json"
	"strings"

	"github.com/samber/oops"
)

// Option looks key up in opts. An exact key wins; otherwise a dotted key
// ("redis.addr") walks nested maps.
func Option(opts map[string]any, key string) (any, bool) {
	if v, ok := opts[key]; ok {
		return v, true
	}

	parts := strings.Split(key, ".")
	var current any = opts
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// OptionString returns the string option at key, or fallback.
func OptionString(opts map[string]any, key, fallback string) string {
	if v, ok := Option(opts, key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// OptionBool returns the boolean option at key, or fallback.
func OptionBool(opts map[string]any, key string, fallback bool) bool {
	if v, ok := Option(opts, key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// DecodeOptions decodes the option subtree at key into dst, which should be
// a pointer to a struct with json tags. A missing key leaves dst untouched.
func DecodeOptions(opts map[string]any, key string, dst any) error {
	v, ok := Option(opts, key)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return oops.In("options").With("key", key).Wrapf(err, "encode options")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return oops.In("options").With("key", key).Wrapf(err, "decode options")
	}
	return nil
}
