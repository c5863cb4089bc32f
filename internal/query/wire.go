package query

import (
	"fmt"

	"github.com/roach88/duelsync/internal/ir"
)

// Value renders the query in its wire shape:
//
//	{"entityModels": [...], "clause": ClauseTree|null, "limit": n, "includeHashedKeys": bool}
func (q Query) Value() (ir.Object, error) {
	clause, err := clauseValue(q.Clause)
	if err != nil {
		return nil, err
	}
	models := ir.Strings(q.EntityModels...)
	return ir.Object{
		"entityModels":      models,
		"clause":            clause,
		"limit":             ir.Int(q.Limit),
		"includeHashedKeys": ir.Bool(q.IncludeHashedKeys),
	}, nil
}

// MarshalJSON implements json.Marshaler using the wire shape.
func (q Query) MarshalJSON() ([]byte, error) {
	v, err := q.Value()
	if err != nil {
		return nil, err
	}
	return v.MarshalJSON()
}

// Canonical returns the RFC 8785 bytes of the wire shape. Identical builder
// state always yields identical bytes.
func (q Query) Canonical() ([]byte, error) {
	v, err := q.Value()
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(v)
}

// Hash identifies the query's parameters. Two queries with the same hash
// describe the same subscription.
func (q Query) Hash() (string, error) {
	canonical, err := q.Canonical()
	if err != nil {
		return "", fmt.Errorf("hash query: %w", err)
	}
	return ir.HashCanonical(canonical), nil
}

func clauseValue(c Clause) (ir.Value, error) {
	switch cl := c.(type) {
	case nil:
		return ir.Null{}, nil
	case KeysClause:
		keys := make(ir.Array, len(cl.Keys))
		for i, k := range cl.Keys {
			if k == nil {
				keys[i] = ir.Null{}
				continue
			}
			keys[i] = k
		}
		return ir.Object{
			"keys":    keys,
			"models":  ir.Strings(cl.Models...),
			"pattern": ir.String(cl.Pattern),
		}, nil
	case MemberClause:
		value := cl.Value
		if value == nil {
			value = ir.Null{}
		}
		return ir.Object{
			"model": ir.String(cl.Model),
			"field": ir.String(cl.Field),
			"op":    ir.String(cl.Op),
			"value": value,
		}, nil
	case CompositeClause:
		children := make(ir.Array, len(cl.Clauses))
		for i, child := range cl.Clauses {
			v, err := clauseValue(child)
			if err != nil {
				return nil, fmt.Errorf("children[%d]: %w", i, err)
			}
			children[i] = v
		}
		return ir.Object{
			"op":       ir.String(cl.Op),
			"children": children,
		}, nil
	default:
		return nil, fmt.Errorf("unknown clause type %T", c)
	}
}

// Parse decodes a query from its JSON wire shape.
func Parse(data []byte) (Query, error) {
	v, err := ir.Decode(data)
	if err != nil {
		return Query{}, fmt.Errorf("parse query: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return Query{}, fmt.Errorf("parse query: expected object, got %T", v)
	}
	return FromValue(obj)
}

// FromValue is the inverse of Query.Value.
func FromValue(obj ir.Object) (Query, error) {
	var q Query

	if raw, ok := obj["entityModels"]; ok {
		models, err := stringList(raw)
		if err != nil {
			return Query{}, fmt.Errorf("entityModels: %w", err)
		}
		q.EntityModels = models
	}

	if raw, ok := obj["clause"]; ok {
		c, err := clauseFromValue(raw)
		if err != nil {
			return Query{}, fmt.Errorf("clause: %w", err)
		}
		q.Clause = c
	}

	if raw, ok := obj["limit"]; ok {
		n, ok := ir.AsInt64(raw)
		if !ok {
			return Query{}, fmt.Errorf("limit: not an integer")
		}
		q.Limit = int(n)
	}

	if raw, ok := obj["includeHashedKeys"]; ok {
		b, ok := ir.AsBool(raw)
		if !ok {
			return Query{}, fmt.Errorf("includeHashedKeys: not a bool")
		}
		q.IncludeHashedKeys = b
	}

	return q, nil
}

func clauseFromValue(v ir.Value) (Clause, error) {
	if _, isNull := v.(ir.Null); isNull {
		return nil, nil
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}

	if rawChildren, ok := obj["children"]; ok {
		children, ok := rawChildren.(ir.Array)
		if !ok {
			return nil, fmt.Errorf("children: expected array")
		}
		op, _ := ir.AsString(obj["op"])
		comp := CompositeClause{Op: LogicalOp(op), Clauses: make([]Clause, 0, len(children))}
		for i, child := range children {
			c, err := clauseFromValue(child)
			if err != nil {
				return nil, fmt.Errorf("children[%d]: %w", i, err)
			}
			if c != nil {
				comp.Clauses = append(comp.Clauses, c)
			}
		}
		return comp, nil
	}

	if rawKeys, ok := obj["keys"]; ok {
		keys, ok := rawKeys.(ir.Array)
		if !ok {
			return nil, fmt.Errorf("keys: expected array")
		}
		kc := KeysClause{Keys: make([]ir.Value, len(keys))}
		for i, k := range keys {
			if _, isNull := k.(ir.Null); isNull {
				continue
			}
			kc.Keys[i] = k
		}
		if rawModels, ok := obj["models"]; ok {
			models, err := stringList(rawModels)
			if err != nil {
				return nil, fmt.Errorf("models: %w", err)
			}
			kc.Models = models
		}
		pattern, _ := ir.AsString(obj["pattern"])
		kc.Pattern = PatternMatching(pattern)
		return kc, nil
	}

	model, _ := ir.AsString(obj["model"])
	field, _ := ir.AsString(obj["field"])
	op, _ := ir.AsString(obj["op"])
	value, ok := obj["value"]
	if !ok {
		value = ir.Null{}
	}
	return MemberClause{Model: model, Field: field, Op: Op(op), Value: value}, nil
}

func stringList(v ir.Value) ([]string, error) {
	arr, ok := v.(ir.Array)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]string, len(arr))
	for i, elem := range arr {
		s, ok := ir.AsString(elem)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected string", i)
		}
		out[i] = s
	}
	return out, nil
}
