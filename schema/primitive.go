package schema

import (
	"encoding/json"
	"math"
)

// PrimitiveType enumerates the scalar shapes a Primitive accepts.
type PrimitiveType string

const (
	TypeString  PrimitiveType = "string"
	TypeNumber  PrimitiveType = "number"
	TypeInteger PrimitiveType = "integer"
	TypeBoolean PrimitiveType = "boolean"
	TypeNull    PrimitiveType = "null"
	TypeUnknown PrimitiveType = "unknown"
)

// Primitive matches a single scalar JSON type, or anything for TypeUnknown.
type Primitive struct {
	Type PrimitiveType
}

func String() *Primitive  { return &Primitive{Type: TypeString} }
func Number() *Primitive  { return &Primitive{Type: TypeNumber} }
func Integer() *Primitive { return &Primitive{Type: TypeInteger} }
func Boolean() *Primitive { return &Primitive{Type: TypeBoolean} }
func Null() *Primitive    { return &Primitive{Type: TypeNull} }

// Unknown accepts every value, including an absent field.
func Unknown() *Primitive { return &Primitive{Type: TypeUnknown} }

func (p *Primitive) Kind() Kind                { return KindPrimitive }
func (p *Primitive) Name() string              { return string(p.Type) }
func (p *Primitive) Decode(v any) (any, error) { return decode(p, v) }
func (p *Primitive) DeclaredFields() ([]string, bool) {
	return nil, false
}

func (p *Primitive) decodeAt(v any, path string) (any, Errors) {
	ok := false
	switch p.Type {
	case TypeUnknown:
		ok = true
	case TypeString:
		_, ok = v.(string)
	case TypeBoolean:
		_, ok = v.(bool)
	case TypeNull:
		ok = v == nil
	case TypeNumber:
		_, ok = toFloat(v)
	case TypeInteger:
		if f, isNum := toFloat(v); isNum {
			ok = f == math.Trunc(f) && !math.IsInf(f, 0)
		}
	}
	if !ok {
		return nil, fail(p, v, path)
	}
	return v, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
