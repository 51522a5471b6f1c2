package schema

import "strings"

// Prop is one named member of a Struct.
type Prop struct {
	Name     string
	Schema   Schema
	Optional bool
}

// Field declares a required property.
func Field(name string, s Schema) Prop { return Prop{Name: name, Schema: s} }

// Optional declares a property that may be absent. A present null value is
// still checked against s.
func Optional(name string, s Schema) Prop { return Prop{Name: name, Schema: s, Optional: true} }

// Struct matches objects carrying the declared properties. Undeclared keys
// are kept by Decode and dropped by Exact.
type Struct struct {
	Props []Prop
}

// Object builds a Struct from its properties, in declaration order.
func Object(props ...Prop) *Struct {
	return &Struct{Props: props}
}

// Partial builds a Struct whose properties are all optional.
func Partial(props ...Prop) *Struct {
	out := make([]Prop, len(props))
	for i, p := range props {
		p.Optional = true
		out[i] = p
	}
	return &Struct{Props: out}
}

func (s *Struct) Kind() Kind                { return KindStruct }
func (s *Struct) Decode(v any) (any, error) { return decode(s, v) }

func (s *Struct) Name() string {
	parts := make([]string, 0, len(s.Props))
	for _, p := range s.Props {
		key := p.Name
		if p.Optional {
			key += "?"
		}
		parts = append(parts, key+": "+p.Schema.Name())
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func (s *Struct) DeclaredFields() ([]string, bool) {
	fields := make([]string, 0, len(s.Props))
	for _, p := range s.Props {
		fields = append(fields, p.Name)
	}
	return fields, true
}

func (s *Struct) decodeAt(v any, path string) (any, Errors) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fail(s, v, path)
	}

	out := make(map[string]any, len(obj))
	for k, val := range obj {
		out[k] = val
	}

	var errs Errors
	for _, p := range s.Props {
		val, present := obj[p.Name]
		if !present {
			if p.Optional {
				continue
			}
			val = Undefined
		}
		decoded, perrs := p.Schema.decodeAt(val, joinPath(path, p.Name))
		if len(perrs) > 0 {
			errs = append(errs, perrs...)
			continue
		}
		if present {
			out[p.Name] = decoded
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}
