package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var jsonSchemaSeq atomic.Uint64

// FromJSONSchema compiles a JSON Schema document (draft 2020-12 unless the
// document says otherwise) into a Refinement. When the document describes an
// object with properties, the refinement's base is a Struct over those
// properties so strict mode can detect undeclared fields.
func FromJSONSchema(label string, doc any) (Schema, error) {
	native, err := Normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	url := fmt.Sprintf("apiguard://schema/%d.json", jsonSchemaSeq.Add(1))
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, native); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}

	if label == "" {
		label = "JSONSchema"
	}
	return Refine(jsonSchemaBase(native), label, func(v any) error {
		verr := compiled.Validate(v)
		if verr == nil {
			return nil
		}
		var ve *jsonschema.ValidationError
		if !errors.As(verr, &ve) {
			return verr
		}
		return jsonSchemaIssues(label, v, ve)
	}), nil
}

// FromJSONSchemaBytes is FromJSONSchema for a serialized document.
func FromJSONSchemaBytes(label string, raw []byte) (Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: parse JSON Schema: %w", err)
	}
	return FromJSONSchema(label, doc)
}

func jsonSchemaBase(doc any) Schema {
	obj, ok := doc.(map[string]any)
	if !ok {
		return Unknown()
	}
	props, ok := obj["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return Unknown()
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]Prop, 0, len(names))
	for _, name := range names {
		fields = append(fields, Optional(name, Unknown()))
	}
	return Object(fields...)
}

func jsonSchemaIssues(label string, root any, ve *jsonschema.ValidationError) Errors {
	var errs Errors
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			errs = append(errs, Issue{
				Path:     strings.Join(e.InstanceLocation, "."),
				Expected: label,
				Actual:   valueAt(root, e.InstanceLocation),
				Reason:   lastLine(e.Error()),
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return errs
}

func valueAt(root any, location []string) any {
	cur := root
	for _, key := range location {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[key]
		case []any:
			var idx int
			if _, err := fmt.Sscanf(key, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimPrefix(strings.TrimSpace(s), "- ")
}
