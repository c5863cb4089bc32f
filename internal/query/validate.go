package query

import (
	"fmt"
	"strings"

	"github.com/roach88/duelsync/internal/ir"
)

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks a query for shapes no backend can execute: unknown
// operators, empty model or field names, In/NotIn without an array, and a
// negative limit. It returns nil or a *ValidationError.
//
// Validate is a pure function with no side effects.
func Validate(q Query) error {
	v := &validator{}
	if q.Limit < 0 {
		v.add("limit %d is negative", q.Limit)
	}
	for i, m := range q.EntityModels {
		if m == "" {
			v.add("entityModels[%d] is empty", i)
		}
	}
	v.validateClause("clause", q.Clause)

	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateClause(path string, c Clause) {
	switch cl := c.(type) {
	case nil:
		// no filter
	case KeysClause:
		if cl.Pattern != FixedLen && cl.Pattern != VariableLen {
			v.add("%s: unknown pattern %q", path, cl.Pattern)
		}
		if len(cl.Keys) == 0 && cl.Pattern == FixedLen {
			v.add("%s: fixed-length key clause without keys", path)
		}
		for i, m := range cl.Models {
			if m == "" {
				v.add("%s.models[%d] is empty", path, i)
			}
		}
	case MemberClause:
		if cl.Model == "" {
			v.add("%s: empty model name", path)
		}
		if cl.Field == "" {
			v.add("%s: empty field name", path)
		}
		if !validOps[cl.Op] {
			v.add("%s: unknown operator %q", path, cl.Op)
		}
		if cl.Op == In || cl.Op == NotIn {
			if _, ok := cl.Value.(ir.Array); !ok {
				v.add("%s: %s requires an array value", path, cl.Op)
			}
		}
	case CompositeClause:
		if cl.Op != OpAnd && cl.Op != OpOr {
			v.add("%s: unknown logical operator %q", path, cl.Op)
		}
		for i, child := range cl.Clauses {
			v.validateClause(fmt.Sprintf("%s.children[%d]", path, i), child)
		}
	default:
		v.add("%s: unknown clause type %T", path, c)
	}
}
