package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/duelsync/internal/ir"
)

// Namespace is the world namespace every game model lives under.
const Namespace = "pistols"

// Model names as they appear in entity bags.
const (
	Challenge           = Namespace + "-Challenge"
	Round               = Namespace + "-Round"
	Duelist             = Namespace + "-Duelist"
	DuelistChallenge    = Namespace + "-DuelistChallenge"
	DuelistMemorial     = Namespace + "-DuelistMemorial"
	Scoreboard          = Namespace + "-Scoreboard"
	Player              = Namespace + "-Player"
	PlayerOnline        = Namespace + "-PlayerOnline"
	PlayerBookmarkEvent = Namespace + "-PlayerBookmarkEvent"
	ChallengeRewards    = Namespace + "-ChallengeRewardsEvent"
	Config              = Namespace + "-Config"
	SeasonConfig        = Namespace + "-SeasonConfig"
	Leaderboard         = Namespace + "-Leaderboard"
	TokenConfig         = Namespace + "-TokenConfig"
)

// QualifiedName joins a namespace and a model name ("pistols-Challenge").
func QualifiedName(namespace, name string) string {
	return namespace + "-" + name
}

// SplitName is the inverse of QualifiedName. Names without a namespace
// return an empty namespace.
func SplitName(qualified string) (namespace, name string) {
	ns, n, ok := strings.Cut(qualified, "-")
	if !ok {
		return "", qualified
	}
	return ns, n
}

// Bag maps fully-qualified model names to model values.
type Bag map[string]ir.Object

// Clone deep-copies the bag.
func (b Bag) Clone() Bag {
	if b == nil {
		return nil
	}
	out := make(Bag, len(b))
	for name, obj := range b {
		out[name] = obj.Clone()
	}
	return out
}

// Names returns the model names in sorted order.
func (b Bag) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entity is one cache record: a stable id derived from its key tuple and
// the bag of every model observed for that tuple.
type Entity struct {
	ID     string
	Keys   []ir.Value
	Models Bag
}

// NewEntity builds an entity and derives its id from keys.
func NewEntity(keys []ir.Value, models Bag) (Entity, error) {
	id, err := ir.EntityID(keys...)
	if err != nil {
		return Entity{}, err
	}
	return Entity{ID: id, Keys: keys, Models: models}, nil
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	out := Entity{ID: e.ID, Models: e.Models.Clone()}
	if e.Keys != nil {
		out.Keys = []ir.Value(ir.Array(e.Keys).Clone())
	}
	return out
}

// GetModel returns the named model. A missing model is a normal state.
func GetModel(e Entity, name string) (ir.Object, bool) {
	if e.Models == nil {
		return nil, false
	}
	obj, ok := e.Models[name]
	return obj, ok && obj != nil
}

// HasAnyModel reports whether the entity carries at least one of names.
func HasAnyModel(e Entity, names ...string) bool {
	for _, name := range names {
		if _, ok := GetModel(e, name); ok {
			return true
		}
	}
	return false
}

type entityWire struct {
	EntityID string                     `json:"entityId"`
	Keys     ir.Array                   `json:"keys,omitempty"`
	Models   map[string]json.RawMessage `json:"models"`
}

// MarshalJSON writes the entity wire shape. Keys are included only when known.
func (e Entity) MarshalJSON() ([]byte, error) {
	models := make(ir.Object, len(e.Models))
	for name, obj := range e.Models {
		models[name] = obj
	}
	wire := ir.Object{
		"entityId": ir.String(e.ID),
		"models":   models,
	}
	if len(e.Keys) > 0 {
		wire["keys"] = ir.Array(e.Keys)
	}
	return wire.MarshalJSON()
}

// UnmarshalJSON accepts flat model names ("pistols-Challenge") as well as
// namespace-nested bags ({"pistols": {"Challenge": {...}}}). When entityId
// is absent it is derived from keys.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var wire entityWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode entity: %w", err)
	}

	bag := make(Bag, len(wire.Models))
	for name, raw := range wire.Models {
		v, err := ir.Decode(raw)
		if err != nil {
			return fmt.Errorf("decode model %q: %w", name, err)
		}
		obj, ok := v.(ir.Object)
		if !ok {
			return fmt.Errorf("model %q: expected object, got %T", name, v)
		}
		if strings.Contains(name, "-") {
			bag[name] = obj
			continue
		}
		for _, inner := range obj.SortedKeys() {
			nested, ok := obj[inner].(ir.Object)
			if !ok {
				return fmt.Errorf("model %s.%s: expected object", name, inner)
			}
			bag[QualifiedName(name, inner)] = nested
		}
	}

	e.ID = wire.EntityID
	e.Keys = nil
	if len(wire.Keys) > 0 {
		e.Keys = []ir.Value(wire.Keys)
	}
	e.Models = bag
	if e.ID == "" {
		if len(e.Keys) == 0 {
			return fmt.Errorf("decode entity: neither entityId nor keys present")
		}
		id, err := ir.EntityID(e.Keys...)
		if err != nil {
			return fmt.Errorf("decode entity: %w", err)
		}
		e.ID = id
	}
	return nil
}

// DecodeEntities parses a JSON array of entity wire objects.
func DecodeEntities(data []byte) ([]Entity, error) {
	var out []Entity
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
