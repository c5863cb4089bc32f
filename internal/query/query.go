package query

import (
	"slices"

	"github.com/roach88/duelsync/internal/ir"
)

// DefaultLimit is the page cap used when a query doesn't set one.
const DefaultLimit = 2000

// Query describes a fetch or subscription target without committing to a
// transport. The zero value fetches every model of every entity.
//
// Query is a value type: the With* methods return modified copies, so a
// base query can be shared and specialized freely.
type Query struct {
	EntityModels      []string
	Clause            Clause
	Limit             int
	IncludeHashedKeys bool
}

// New returns an empty query with DefaultLimit.
func New() Query {
	return Query{Limit: DefaultLimit}
}

// WithEntityModels restricts which models are returned for matching entities.
func (q Query) WithEntityModels(names ...string) Query {
	q.EntityModels = slices.Clone(names)
	return q
}

// WithClause sets the predicate tree.
func (q Query) WithClause(c Clause) Query {
	q.Clause = c
	return q
}

// WithLimit sets the result cap.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// WithHashedKeys asks the indexer to return key tuples with each entity.
func (q Query) WithHashedKeys() Query {
	q.IncludeHashedKeys = true
	return q
}

// Keys builds a key-tuple clause. Pass nil for wildcard positions.
func Keys(pattern PatternMatching, models []string, keys ...ir.Value) KeysClause {
	return KeysClause{
		Keys:    slices.Clone(keys),
		Models:  slices.Clone(models),
		Pattern: pattern,
	}
}

// Where builds a field comparator clause.
func Where(model, field string, op Op, value ir.Value) MemberClause {
	return MemberClause{Model: model, Field: field, Op: op, Value: value}
}

// And joins clauses conjunctively. A single clause is returned unwrapped.
func And(clauses ...Clause) Clause {
	return compose(OpAnd, clauses)
}

// Or joins clauses disjunctively. A single clause is returned unwrapped.
func Or(clauses ...Clause) Clause {
	return compose(OpOr, clauses)
}

func compose(op LogicalOp, clauses []Clause) Clause {
	kept := make([]Clause, 0, len(clauses))
	for _, c := range clauses {
		if c != nil {
			kept = append(kept, c)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return CompositeClause{Op: op, Clauses: kept}
}

// Models returns every model name the query refers to: the entity-model
// filter plus every model named inside the clause tree, sorted and unique.
func (q Query) Models() []string {
	seen := map[string]bool{}
	for _, m := range q.EntityModels {
		seen[m] = true
	}
	walk(q.Clause, func(c Clause) {
		switch cl := c.(type) {
		case MemberClause:
			seen[cl.Model] = true
		case KeysClause:
			for _, m := range cl.Models {
				seen[m] = true
			}
		}
	})
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// walk visits every node of the clause tree depth-first.
func walk(c Clause, fn func(Clause)) {
	if c == nil {
		return
	}
	fn(c)
	if comp, ok := c.(CompositeClause); ok {
		for _, child := range comp.Clauses {
			walk(child, fn)
		}
	}
}
