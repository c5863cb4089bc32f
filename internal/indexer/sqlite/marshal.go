package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/duelsync/internal/ir"
)

// marshalKeys stores the normalized key tuple as canonical JSON, so key
// clauses can compare stored text with normalized parameters.
func marshalKeys(keys []ir.Value) (string, error) {
	tuple := make(ir.Array, len(keys))
	for i, k := range keys {
		tuple[i] = ir.NormalizeKey(k)
	}
	data, err := ir.MarshalCanonical(tuple)
	if err != nil {
		return "", fmt.Errorf("marshal keys: %w", err)
	}
	return string(data), nil
}

func unmarshalKeys(data string) ([]ir.Value, error) {
	var arr ir.Array
	if err := json.Unmarshal([]byte(data), &arr); err != nil {
		return nil, fmt.Errorf("unmarshal keys: %w", err)
	}
	return []ir.Value(arr), nil
}

// marshalModel converts a model to canonical JSON TEXT for storage.
func marshalModel(obj ir.Object) (string, error) {
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	return string(data), nil
}

// unmarshalModel parses stored JSON. ir.Object keeps large integers exact.
func unmarshalModel(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	return obj, nil
}
