package schema

import (
	"github.com/invopop/jsonschema"
)

// FromType reflects the Go type T (through its json and jsonschema struct
// tags) into a Schema. Fields without omitempty are required.
//
//	type Pet struct {
//	    ID   int    `json:"id"`
//	    Name string `json:"name"`
//	    Tag  string `json:"tag,omitempty"`
//	}
//	petSchema := schema.FromType[Pet]()
func FromType[T any]() Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	return FromReflected(r.Reflect(new(T)))
}

// FromReflected converts an invopop JSON Schema into a Schema. Unsupported
// keywords are ignored; a nil or empty schema accepts anything.
func FromReflected(s *jsonschema.Schema) Schema {
	if s == nil {
		return Unknown()
	}
	if s.Const != nil {
		return LiteralOf(s.Const)
	}
	if len(s.Enum) > 0 {
		return Enum(s.Enum...)
	}
	if len(s.AllOf) > 0 {
		return AllOf(convertAll(s.AllOf)...)
	}
	if len(s.AnyOf) > 0 {
		return OneOf(convertAll(s.AnyOf)...)
	}
	if len(s.OneOf) > 0 {
		return OneOf(convertAll(s.OneOf)...)
	}

	switch s.Type {
	case "string":
		return String()
	case "number":
		return Number()
	case "integer":
		return Integer()
	case "boolean":
		return Boolean()
	case "null":
		return Null()
	case "array":
		return ArrayOf(FromReflected(s.Items))
	case "object":
		if s.Properties == nil || s.Properties.Len() == 0 {
			if s.AdditionalProperties != nil {
				return RecordOf(FromReflected(s.AdditionalProperties))
			}
			return RecordOf(Unknown())
		}
		required := make(map[string]struct{}, len(s.Required))
		for _, name := range s.Required {
			required[name] = struct{}{}
		}
		props := make([]Prop, 0, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			child := FromReflected(el.Value)
			if _, ok := required[el.Key]; ok {
				props = append(props, Field(el.Key, child))
			} else {
				props = append(props, Optional(el.Key, child))
			}
		}
		return Object(props...)
	default:
		return Unknown()
	}
}

func convertAll(list []*jsonschema.Schema) []Schema {
	out := make([]Schema, 0, len(list))
	for _, s := range list {
		out = append(out, FromReflected(s))
	}
	return out
}
