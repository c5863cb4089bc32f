package query

import (
	"slices"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

// Match reports whether the entity satisfies the clause tree. A nil clause
// matches everything.
func Match(c Clause, e model.Entity) bool {
	switch cl := c.(type) {
	case nil:
		return true
	case KeysClause:
		return matchKeys(cl, e)
	case MemberClause:
		return matchMember(cl, e)
	case CompositeClause:
		if cl.Op == OpOr {
			for _, child := range cl.Clauses {
				if Match(child, e) {
					return true
				}
			}
			return false
		}
		for _, child := range cl.Clauses {
			if !Match(child, e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Apply evaluates q against e: the clause must match, then the bag is
// narrowed to EntityModels. The result is false when no requested model
// remains. Keys are dropped unless IncludeHashedKeys is set.
func Apply(q Query, e model.Entity) (model.Entity, bool) {
	if !Match(q.Clause, e) {
		return model.Entity{}, false
	}
	out := model.Entity{ID: e.ID, Models: make(model.Bag, len(e.Models))}
	for name, obj := range e.Models {
		if len(q.EntityModels) == 0 || slices.Contains(q.EntityModels, name) {
			out.Models[name] = obj.Clone()
		}
	}
	if len(out.Models) == 0 {
		return model.Entity{}, false
	}
	if q.IncludeHashedKeys {
		out.Keys = []ir.Value(ir.Array(e.Keys).Clone())
	}
	return out, true
}

func matchKeys(cl KeysClause, e model.Entity) bool {
	if len(cl.Models) > 0 && !model.HasAnyModel(e, cl.Models...) {
		return false
	}
	switch cl.Pattern {
	case FixedLen:
		if len(e.Keys) != len(cl.Keys) {
			return false
		}
	case VariableLen:
		if len(e.Keys) < len(cl.Keys) {
			return false
		}
	default:
		return false
	}
	for i, want := range cl.Keys {
		if want == nil {
			continue
		}
		if _, isNull := want.(ir.Null); isNull {
			continue
		}
		if !equal(ir.NormalizeKey(want), ir.NormalizeKey(e.Keys[i])) {
			return false
		}
	}
	return true
}

func matchMember(cl MemberClause, e model.Entity) bool {
	obj, ok := model.GetModel(e, cl.Model)
	if !ok {
		return false
	}
	got, ok := obj.Get(cl.Field)
	if !ok {
		return false
	}

	switch cl.Op {
	case Eq:
		return equal(got, cl.Value)
	case Neq:
		return !equal(got, cl.Value)
	case In, NotIn:
		arr, ok := cl.Value.(ir.Array)
		if !ok {
			return false
		}
		found := slices.ContainsFunc(arr, func(v ir.Value) bool { return equal(got, v) })
		return found == (cl.Op == In)
	case Gt, Gte, Lt, Lte:
		cmp, ok := compare(got, cl.Value)
		if !ok {
			return false
		}
		switch cl.Op {
		case Gt:
			return cmp > 0
		case Gte:
			return cmp >= 0
		case Lt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// equal compares integer-like values numerically ("0x1f" == 31), variant
// tags by name, and everything else by canonical form.
func equal(a, b ir.Value) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	if sa, ok := a.(ir.String); ok {
		if _, isObj := b.(ir.Object); isObj {
			return string(sa) == model.DecodeVariant(b).Name
		}
	}
	if sb, ok := b.(ir.String); ok {
		if _, isObj := a.(ir.Object); isObj {
			return string(sb) == model.DecodeVariant(a).Name
		}
	}
	ca, errA := ir.MarshalCanonical(a)
	cb, errB := ir.MarshalCanonical(b)
	return errA == nil && errB == nil && string(ca) == string(cb)
}

// compare orders two integer-like values, or two plain strings.
func compare(a, b ir.Value) (int, bool) {
	na, okA := ir.Felt(a)
	nb, okB := ir.Felt(b)
	if okA && okB {
		return na.Cmp(nb), true
	}
	sa, okA := a.(ir.String)
	sb, okB := b.(ir.String)
	if okA && okB {
		switch {
		case sa < sb:
			return -1, true
		case sa > sb:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
