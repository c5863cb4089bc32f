package model

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/duelsync/internal/ir"
)

// Kind is the wire kind of a model field.
type Kind string

const (
	KindFelt   Kind = "felt"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindEnum   Kind = "enum"
	KindStruct Kind = "struct"
)

// Spec describes one model: its key fields (in key-tuple order) and the
// kinds of the fields the client reads. Fields not listed are carried
// through untouched.
type Spec struct {
	Name   string
	Keys   []string
	Fields map[string]Kind
}

// Registry holds the known model specs, keyed by qualified name.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry validates and indexes specs. Every key must be a declared
// felt or int field.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("registry: model spec without name")
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate model %q", s.Name)
		}
		if len(s.Keys) == 0 {
			return nil, fmt.Errorf("registry: model %q has no keys", s.Name)
		}
		for _, k := range s.Keys {
			kind, ok := s.Fields[k]
			if !ok {
				return nil, fmt.Errorf("registry: model %q key %q is not a declared field", s.Name, k)
			}
			if kind != KindFelt && kind != KindInt {
				return nil, fmt.Errorf("registry: model %q key %q has kind %s", s.Name, k, kind)
			}
		}
		r.specs[s.Name] = s
	}
	return r, nil
}

// Spec returns the spec for a qualified model name.
func (r *Registry) Spec(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns every registered model name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// KeysOf extracts the key tuple of a model value, in spec order.
func (r *Registry) KeysOf(name string, obj ir.Object) ([]ir.Value, error) {
	s, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", name)
	}
	keys := make([]ir.Value, len(s.Keys))
	for i, k := range s.Keys {
		v, ok := obj.Get(k)
		if !ok {
			return nil, &MalformedError{Model: name, Field: k, Reason: "missing key field"}
		}
		keys[i] = v
	}
	return keys, nil
}

// CheckModel validates one model value against its spec. Unknown models
// pass: the registry only vouches for what it knows.
func (r *Registry) CheckModel(name string, obj ir.Object) error {
	s, ok := r.specs[name]
	if !ok {
		return nil
	}
	for _, k := range s.Keys {
		v, ok := obj.Get(k)
		if !ok {
			return &MalformedError{Model: name, Field: k, Reason: "missing key field"}
		}
		if _, ok := ir.Felt(v); !ok {
			return &MalformedError{Model: name, Field: k, Reason: "key field is not an integer"}
		}
	}
	for _, field := range sortedFields(s.Fields) {
		v, ok := obj.Get(field)
		if !ok {
			continue
		}
		if err := checkKind(s.Fields[field], v); err != "" {
			return &MalformedError{Model: name, Field: field, Reason: err}
		}
	}
	return nil
}

// Sanitize drops every malformed model from e and returns the remaining
// entity together with one error per dropped model.
func (r *Registry) Sanitize(e Entity) (Entity, []error) {
	var problems []error
	clean := Entity{ID: e.ID, Keys: e.Keys, Models: make(Bag, len(e.Models))}
	for _, name := range e.Models.Names() {
		obj := e.Models[name]
		if err := r.CheckModel(name, obj); err != nil {
			problems = append(problems, err)
			continue
		}
		clean.Models[name] = obj
	}
	return clean, problems
}

// Check reports every malformed model of e as one joined error.
func (r *Registry) Check(e Entity) error {
	_, problems := r.Sanitize(e)
	return errors.Join(problems...)
}

func sortedFields(m map[string]Kind) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func checkKind(kind Kind, v ir.Value) string {
	if _, isNull := v.(ir.Null); isNull {
		return ""
	}
	switch kind {
	case KindFelt, KindInt:
		if _, ok := ir.Felt(v); !ok {
			return "not an integer"
		}
		if kind == KindInt {
			if _, ok := ir.AsInt64(v); !ok {
				return "does not fit in int64"
			}
		}
	case KindBool:
		if _, ok := ir.AsBool(v); !ok {
			return "not a bool"
		}
	case KindString:
		if _, ok := v.(ir.String); !ok {
			return "not a string"
		}
	case KindEnum:
		if _, ok := ParseVariant(v); !ok {
			return "unparseable variant"
		}
	case KindStruct:
		if _, ok := v.(ir.Object); !ok {
			return "not an object"
		}
	}
	return ""
}
