// Package fixture reads entity fixtures: YAML files listing model values
// to write into an indexer.
//
//	entities:
//	  - models:
//	      pistols-Duelist:
//	        duelist_id: "0xa"
//	        name: "0x616c696365"
//	        timestamp: 1
//	  - keys: ["0x1"]
//	    models:
//	      pistols-Challenge: { duel_id: "0x1", state: Resolved }
//
// Keys may be omitted; they are then read from the key fields of the
// entity's models. Felts wider than 64 bits must be quoted.
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

// File is the document layout.
type File struct {
	Entities []Record `yaml:"entities"`
}

// Record is one entity of a fixture.
type Record struct {
	Keys   []any                     `yaml:"keys,omitempty"`
	Models map[string]map[string]any `yaml:"models"`
}

// Load reads the fixture at path.
func Load(path string, reg *model.Registry) ([]model.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	entities, err := Parse(data, reg)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return entities, nil
}

// Parse decodes a fixture. Unknown document fields are rejected. Model
// values are not validated against reg; only key extraction uses it.
func Parse(data []byte, reg *model.Registry) ([]model.Entity, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return Records(f.Entities, reg)
}

// Records converts decoded records into entities.
func Records(records []Record, reg *model.Registry) ([]model.Entity, error) {
	out := make([]model.Entity, 0, len(records))
	for i, rec := range records {
		e, err := rec.Entity(reg)
		if err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Entity converts one record.
func (r Record) Entity(reg *model.Registry) (model.Entity, error) {
	if len(r.Models) == 0 {
		return model.Entity{}, errors.New("models is required")
	}

	bag := make(model.Bag, len(r.Models))
	for name, raw := range r.Models {
		v, err := ir.FromAny(map[string]any(raw))
		if err != nil {
			return model.Entity{}, fmt.Errorf("%s: %w", name, err)
		}
		obj, ok := v.(ir.Object)
		if !ok {
			return model.Entity{}, fmt.Errorf("%s: expected an object", name)
		}
		bag[name] = obj
	}

	keys, err := r.keys(bag, reg)
	if err != nil {
		return model.Entity{}, err
	}
	return model.NewEntity(keys, bag)
}

func (r Record) keys(bag model.Bag, reg *model.Registry) ([]ir.Value, error) {
	if len(r.Keys) > 0 {
		keys := make([]ir.Value, len(r.Keys))
		for i, k := range r.Keys {
			v, err := ir.FromAny(k)
			if err != nil {
				return nil, fmt.Errorf("keys[%d]: %w", i, err)
			}
			keys[i] = v
		}
		return keys, nil
	}
	if reg == nil {
		return nil, errors.New("keys is required without a model registry")
	}

	var keys []ir.Value
	var id, first string
	for _, name := range bag.Names() {
		if _, known := reg.Spec(name); !known {
			continue
		}
		k, err := reg.KeysOf(name, bag[name])
		if err != nil {
			return nil, err
		}
		kid, err := ir.EntityID(k...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if keys == nil {
			keys, id, first = k, kid, name
			continue
		}
		if kid != id {
			return nil, fmt.Errorf("%s: key fields disagree with %s", name, first)
		}
	}
	if keys == nil {
		return nil, errors.New("keys is required: no model with a known schema")
	}
	return keys, nil
}

// Marshal encodes entities as a fixture document with explicit keys.
func Marshal(entities []model.Entity) ([]byte, error) {
	f := File{Entities: make([]Record, 0, len(entities))}
	for _, e := range entities {
		rec := Record{Models: make(map[string]map[string]any, len(e.Models))}
		for _, k := range e.Keys {
			rec.Keys = append(rec.Keys, plain(k))
		}
		for name, obj := range e.Models {
			rec.Models[name] = plain(obj).(map[string]any)
		}
		f.Entities = append(f.Entities, rec)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// plain converts a value back to YAML-encodable Go values.
func plain(v ir.Value) any {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	case ir.Int:
		return int64(val)
	case ir.Bool:
		return bool(val)
	case ir.Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = plain(elem)
		}
		return out
	case ir.Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = plain(elem)
		}
		return out
	default:
		return nil
	}
}
