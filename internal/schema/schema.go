// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package schema generates JSON Schemas from Go types and validates decoded
// documents against them.
package schema

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Document describes a schema generated from a Go type.
type Document struct {
	ID          string
	Title       string
	Description string
	// Type is a pointer to a zero value of the described struct.
	Type any
}

// Validator lazily compiles a Document and validates decoded values
// against it. It is safe for concurrent use.
type Validator struct {
	doc Document

	once     sync.Once
	compiled *jschema.Schema
	err      error
}

// NewValidator creates a validator for doc.
func NewValidator(doc Document) *Validator {
	return &Validator{doc: doc}
}

// Generate returns the indented JSON Schema for the document.
func (v *Validator) Generate() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(v.doc.Type)
	s.ID = jsonschema.ID(v.doc.ID)
	s.Title = v.doc.Title
	s.Description = v.doc.Description

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, oops.In("schema").With("schema", v.doc.ID).Wrapf(err, "marshal schema")
	}
	return data, nil
}

// Validate checks a value decoded from JSON or YAML (maps, slices and
// scalars) against the schema.
func (v *Validator) Validate(value any) error {
	compiled, err := v.compile()
	if err != nil {
		return err
	}
	if err := compiled.Validate(Normalize(value)); err != nil {
		return oops.In("schema").With("schema", v.doc.ID).Wrapf(err, "schema validation failed")
	}
	return nil
}

func (v *Validator) compile() (*jschema.Schema, error) {
	v.once.Do(func() {
		raw, err := v.Generate()
		if err != nil {
			v.err = err
			return
		}

		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			v.err = oops.In("schema").Wrapf(err, "parse generated schema")
			return
		}

		c := jschema.NewCompiler()
		if err := c.AddResource("schema.json", doc); err != nil {
			v.err = oops.In("schema").Wrapf(err, "add schema resource")
			return
		}
		v.compiled, v.err = c.Compile("schema.json")
		if v.err != nil {
			v.err = oops.In("schema").Wrapf(v.err, "compile schema")
		}
	})
	return v.compiled, v.err
}

// Normalize converts decoded YAML/Lua values into the JSON-compatible
// shapes the validator accepts.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[toKey(k)] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case nil, string, bool, float64, int, int64, json.Number:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return val
		}
		return out
	}
}

func toKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	b, _ := json.Marshal(k)
	return strings.Trim(string(b), `"`)
}

// Message extracts the readable part of a validation error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.Index(msg, "schema validation failed: "); i >= 0 {
		msg = msg[i+len("schema validation failed: "):]
	}
	return msg
}
