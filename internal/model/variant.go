package model

import (
	"github.com/roach88/duelsync/internal/ir"
)

// UndefinedVariant is the tag reported for values that carry no recognizable
// variant. It is never an error: the cache stays usable when the indexer
// delivers a shape this client doesn't know yet.
const UndefinedVariant = "Undefined"

// Variant is a decoded tagged-union ("custom enum") value.
type Variant struct {
	Name  string
	Value ir.Value
}

// IsUndefined reports whether the variant fell back to the sentinel.
func (v Variant) IsUndefined() bool {
	return v.Name == UndefinedVariant
}

// DecodeVariant decodes an enum field. Accepted shapes:
//
//	"Resolved"
//	{"Resolved": <payload>}
//	{"variant": {"Resolved": <payload>}}
//
// Anything else decodes to UndefinedVariant.
func DecodeVariant(raw ir.Value) Variant {
	v, _ := ParseVariant(raw)
	return v
}

// ParseVariant is DecodeVariant that also reports whether raw had a
// decodable shape. An empty tag is treated as undefined but well-shaped.
func ParseVariant(raw ir.Value) (Variant, bool) {
	undefined := Variant{Name: UndefinedVariant, Value: ir.Null{}}

	switch val := raw.(type) {
	case ir.String:
		if val == "" {
			return undefined, true
		}
		return Variant{Name: string(val), Value: ir.Null{}}, true
	case ir.Object:
		if inner, ok := val["variant"].(ir.Object); ok && len(val) == 1 {
			return ParseVariant(inner)
		}
		if len(val) != 1 {
			return undefined, false
		}
		for tag, payload := range val {
			if tag == "" {
				return undefined, false
			}
			return Variant{Name: tag, Value: normalizePayload(payload)}, true
		}
	}
	return undefined, false
}

// normalizePayload maps empty payloads ({} or null or "()") to Null.
func normalizePayload(v ir.Value) ir.Value {
	switch val := v.(type) {
	case nil:
		return ir.Null{}
	case ir.Object:
		if len(val) == 0 {
			return ir.Null{}
		}
	case ir.String:
		if val == "" || val == "()" {
			return ir.Null{}
		}
	}
	return v
}
