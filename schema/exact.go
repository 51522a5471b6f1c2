package schema

import (
	"encoding/json"
	"fmt"
	"math"
)

// Exact decodes v against s restricted to the fields s declares: keys the
// schema does not recognise are dropped from the top-level object. For
// schemas that are not struct-like Exact behaves like Decode.
func Exact(s Schema, v any) (any, error) {
	out, err := s.Decode(v)
	if err != nil {
		return nil, err
	}
	fields, ok := s.DeclaredFields()
	if !ok {
		return out, nil
	}
	obj, isObj := out.(map[string]any)
	if !isObj {
		return out, nil
	}
	filtered := make(map[string]any, len(fields))
	for _, f := range fields {
		if val, present := obj[f]; present {
			filtered[f] = val
		}
	}
	return filtered, nil
}

// AddedFields returns the entries of original whose keys are absent from
// filtered. Both values are expected to be objects; anything else yields nil.
func AddedFields(filtered, original any) map[string]any {
	orig, ok := original.(map[string]any)
	if !ok {
		return nil
	}
	kept, _ := filtered.(map[string]any)
	var diff map[string]any
	for k, v := range orig {
		if _, present := kept[k]; present {
			continue
		}
		if diff == nil {
			diff = make(map[string]any)
		}
		diff[k] = v
	}
	return diff
}

// Normalize converts v into the shapes produced by encoding/json. Values
// already in that form are returned unchanged, without copying.
func Normalize(v any) (any, error) {
	if isNative(v) {
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

func isNative(v any) bool {
	switch t := v.(type) {
	case nil, bool, string, json.Number, undefined:
		return true
	case map[string]any:
		for _, val := range t {
			if !isNative(val) {
				return false
			}
		}
		return true
	case []any:
		for _, val := range t {
			if !isNative(val) {
				return false
			}
		}
		return true
	}
	if _, ok := toFloat(v); ok {
		return true
	}
	// NaN is not a JSON number; leave it for the primitives to reject.
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}
