package schema

import (
	"reflect"
	"strconv"
	"strings"
)

// Array matches a list whose every element matches Items.
type Array struct {
	Items Schema
}

func ArrayOf(items Schema) *Array { return &Array{Items: items} }

func (a *Array) Kind() Kind                       { return KindArray }
func (a *Array) Name() string                     { return "Array<" + a.Items.Name() + ">" }
func (a *Array) Decode(v any) (any, error)        { return decode(a, v) }
func (a *Array) DeclaredFields() ([]string, bool) { return nil, false }

func (a *Array) decodeAt(v any, path string) (any, Errors) {
	list, ok := v.([]any)
	if !ok {
		return nil, fail(a, v, path)
	}
	out := make([]any, len(list))
	var errs Errors
	for i, item := range list {
		decoded, ierrs := a.Items.decodeAt(item, joinPath(path, strconv.Itoa(i)))
		if len(ierrs) > 0 {
			errs = append(errs, ierrs...)
			continue
		}
		out[i] = decoded
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// Record matches an object with arbitrary keys whose values match Values.
type Record struct {
	Values Schema
}

func RecordOf(values Schema) *Record { return &Record{Values: values} }

func (r *Record) Kind() Kind                       { return KindRecord }
func (r *Record) Name() string                     { return "{ [K in string]: " + r.Values.Name() + " }" }
func (r *Record) Decode(v any) (any, error)        { return decode(r, v) }
func (r *Record) DeclaredFields() ([]string, bool) { return nil, false }

func (r *Record) decodeAt(v any, path string) (any, Errors) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fail(r, v, path)
	}
	out := make(map[string]any, len(obj))
	var errs Errors
	for k, val := range obj {
		decoded, verrs := r.Values.decodeAt(val, joinPath(path, k))
		if len(verrs) > 0 {
			errs = append(errs, verrs...)
			continue
		}
		out[k] = decoded
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// Union matches a value accepted by at least one member. The first matching
// member decodes the value.
type Union struct {
	Members []Schema
}

func OneOf(members ...Schema) *Union { return &Union{Members: members} }

// Nullable accepts s or null.
func Nullable(s Schema) *Union { return OneOf(s, Null()) }

func (u *Union) Kind() Kind                       { return KindUnion }
func (u *Union) Decode(v any) (any, error)        { return decode(u, v) }
func (u *Union) DeclaredFields() ([]string, bool) { return nil, false }

func (u *Union) Name() string {
	if len(u.Members) == 0 {
		return "never"
	}
	names := make([]string, len(u.Members))
	for i, m := range u.Members {
		names[i] = m.Name()
	}
	return "(" + strings.Join(names, " | ") + ")"
}

func (u *Union) decodeAt(v any, path string) (any, Errors) {
	if len(u.Members) == 0 {
		return nil, fail(u, v, path)
	}
	var errs Errors
	for _, m := range u.Members {
		decoded, merrs := m.decodeAt(v, path)
		if len(merrs) == 0 {
			return decoded, nil
		}
		errs = append(errs, merrs...)
	}
	return nil, errs
}

// Intersection matches a value accepted by every member. Object outputs of
// the members are merged.
type Intersection struct {
	Members []Schema
}

func AllOf(members ...Schema) *Intersection { return &Intersection{Members: members} }

func (in *Intersection) Kind() Kind                { return KindIntersection }
func (in *Intersection) Decode(v any) (any, error) { return decode(in, v) }

func (in *Intersection) Name() string {
	names := make([]string, len(in.Members))
	for i, m := range in.Members {
		names[i] = m.Name()
	}
	return "(" + strings.Join(names, " & ") + ")"
}

// DeclaredFields is the union of the members' fields when every member is
// struct-like.
func (in *Intersection) DeclaredFields() ([]string, bool) {
	if len(in.Members) == 0 {
		return nil, false
	}
	seen := make(map[string]struct{})
	var fields []string
	for _, m := range in.Members {
		mf, ok := m.DeclaredFields()
		if !ok {
			return nil, false
		}
		for _, f := range mf {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			fields = append(fields, f)
		}
	}
	return fields, true
}

func (in *Intersection) decodeAt(v any, path string) (any, Errors) {
	var errs Errors
	outputs := make([]any, 0, len(in.Members))
	for _, m := range in.Members {
		decoded, merrs := m.decodeAt(v, path)
		if len(merrs) > 0 {
			errs = append(errs, merrs...)
			continue
		}
		outputs = append(outputs, decoded)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return mergeAll(v, outputs), nil
}

func mergeAll(input any, outputs []any) any {
	if len(outputs) == 0 {
		return input
	}
	if _, ok := input.(map[string]any); !ok {
		return outputs[0]
	}
	merged := make(map[string]any)
	for _, o := range outputs {
		obj, ok := o.(map[string]any)
		if !ok {
			return outputs[0]
		}
		for k, val := range obj {
			merged[k] = val
		}
	}
	return merged
}

// Literal matches exactly one scalar value.
type Literal struct {
	Value any
}

func LiteralOf(v any) *Literal { return &Literal{Value: v} }

// Enum accepts any of the given scalar values.
func Enum(values ...any) *Union {
	members := make([]Schema, len(values))
	for i, v := range values {
		members[i] = LiteralOf(v)
	}
	return OneOf(members...)
}

func (l *Literal) Kind() Kind                       { return KindLiteral }
func (l *Literal) Name() string                     { return Stringify(l.Value) }
func (l *Literal) Decode(v any) (any, error)        { return decode(l, v) }
func (l *Literal) DeclaredFields() ([]string, bool) { return nil, false }

func (l *Literal) decodeAt(v any, path string) (any, Errors) {
	if !literalEqual(l.Value, v) {
		return nil, fail(l, v, path)
	}
	return v, nil
}

func literalEqual(want, got any) bool {
	if wf, ok := toFloat(want); ok {
		gf, gok := toFloat(got)
		return gok && wf == gf
	}
	if want == nil || got == nil {
		return want == nil && got == nil
	}
	if !reflect.TypeOf(want).Comparable() || !reflect.TypeOf(got).Comparable() {
		return false
	}
	return want == got
}

// Check reports why a decoded value is unacceptable, or nil.
type Check func(v any) error

// Refinement narrows Base with a predicate.
type Refinement struct {
	Base  Schema
	Label string
	Check Check
}

// Refine wraps base with a named predicate.
func Refine(base Schema, label string, check Check) *Refinement {
	return &Refinement{Base: base, Label: label, Check: check}
}

func (r *Refinement) Kind() Kind                { return KindRefinement }
func (r *Refinement) Decode(v any) (any, error) { return decode(r, v) }

func (r *Refinement) Name() string {
	if r.Label != "" {
		return r.Label
	}
	return r.Base.Name()
}

// DeclaredFields delegates to the base schema.
func (r *Refinement) DeclaredFields() ([]string, bool) { return r.Base.DeclaredFields() }

func (r *Refinement) decodeAt(v any, path string) (any, Errors) {
	decoded, errs := r.Base.decodeAt(v, path)
	if len(errs) > 0 {
		return nil, errs
	}
	if r.Check == nil {
		return decoded, nil
	}
	if err := r.Check(decoded); err != nil {
		if nested, ok := err.(Errors); ok {
			return nil, prefixed(nested, path)
		}
		return nil, Errors{{Path: path, Expected: r.Name(), Actual: v, Reason: err.Error()}}
	}
	return decoded, nil
}

func prefixed(errs Errors, path string) Errors {
	if path == "" {
		return errs
	}
	out := make(Errors, len(errs))
	for i, e := range errs {
		if e.Path == "" {
			e.Path = path
		} else {
			e.Path = joinPath(path, e.Path)
		}
		out[i] = e
	}
	return out
}
