// Package schema describes the expected shape of JSON-like values.
//
// A Schema is one of a closed set of variants: Primitive, Struct, Array,
// Record, Union, Intersection, Literal and Refinement. Every variant decodes
// an arbitrary value into either a decoded value or a non-empty Errors list,
// and struct-like variants report the exact set of field names they declare.
//
//	pet := schema.Object(
//	    schema.Field("id", schema.Integer()),
//	    schema.Field("name", schema.String()),
//	    schema.Optional("tag", schema.Nullable(schema.String())),
//	)
//	v, err := pet.Decode(map[string]any{"id": 1, "name": "Rex"})
//
// Decoding never panics and never mutates its input. Values are expected in
// the shape produced by encoding/json (map[string]any, []any, float64, string,
// bool, nil); other Go values are normalised through encoding/json first.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies a schema variant.
type Kind int

const (
	KindPrimitive Kind = iota
	KindStruct
	KindArray
	KindRecord
	KindUnion
	KindIntersection
	KindLiteral
	KindRefinement
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	case KindRecord:
		return "record"
	case KindUnion:
		return "union"
	case KindIntersection:
		return "intersection"
	case KindLiteral:
		return "literal"
	case KindRefinement:
		return "refinement"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Schema is the closed set of shape descriptions. Implementations live in
// this package only.
type Schema interface {
	// Kind reports the variant.
	Kind() Kind
	// Name is a compact, human-readable rendering used in error messages.
	Name() string
	// Decode checks v against the schema. On failure the error is Errors.
	Decode(v any) (any, error)
	// DeclaredFields returns the field names a struct-like schema recognises.
	// ok is false for schemas that are not struct-like.
	DeclaredFields() (fields []string, ok bool)

	decodeAt(v any, path string) (any, Errors)
}

// Issue is one structured decode failure.
type Issue struct {
	// Path is the dotted location of the value, "" for the root.
	Path string
	// Expected is the Name of the schema that rejected the value.
	Expected string
	// Actual is the rejected value. A missing field is reported as Undefined.
	Actual any
	// Reason optionally refines the failure (refinements, JSON Schema keywords).
	Reason string
}

// Message renders the issue the way validation logs print it.
func (i Issue) Message() string {
	var b strings.Builder
	b.WriteString("Expecting ")
	b.WriteString(i.Expected)
	if i.Path != "" {
		b.WriteString(" at ")
		b.WriteString(i.Path)
	}
	b.WriteString(" but instead got: ")
	b.WriteString(Stringify(i.Actual))
	if i.Reason != "" {
		b.WriteString(" (")
		b.WriteString(i.Reason)
		b.WriteString(")")
	}
	return b.String()
}

// Errors is the non-empty list of issues a failed decode produces.
type Errors []Issue

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, issue := range e {
		msgs = append(msgs, issue.Message())
	}
	return strings.Join(msgs, "; ")
}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined marks a required field that was absent from its object.
var Undefined any = undefined{}

// Stringify renders v as compact JSON, falling back to fmt for values
// encoding/json rejects.
func Stringify(v any) string {
	if _, ok := v.(undefined); ok {
		return "undefined"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// StringifyIndent renders v as two-space indented JSON.
func StringifyIndent(v any) string {
	if _, ok := v.(undefined); ok {
		return "undefined"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func decode(s Schema, v any) (any, error) {
	native, err := Normalize(v)
	if err != nil {
		return nil, Errors{{Expected: s.Name(), Actual: fmt.Sprintf("%T", v), Reason: err.Error()}}
	}
	out, errs := s.decodeAt(native, "")
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func fail(s Schema, v any, path string) Errors {
	return Errors{{Path: path, Expected: s.Name(), Actual: v}}
}
