// Package querysql compiles query clause trees into parameterized SQLite
// over the indexer's entities/models tables.
//
// The generated WHERE clause is a prefilter: every entity the clause can
// match is selected, but a selected entity may still fail the exact
// in-memory match (felt values compare numerically across hex and
// decimal spellings, which SQL text comparison cannot do). Callers run
// query.Match on every returned row.
//
// All values are bound as ? parameters, never interpolated. Every page
// query is ordered by entity id for deterministic paging.
package querysql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/query"
)

// fieldPath is the subset of dotted paths that can be passed to
// json_extract unquoted.
var fieldPath = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Compiler turns clauses into SQL fragments. The zero value is ready to use.
type Compiler struct {
	// EntityAlias is the alias of the entities table in the outer query.
	// Defaults to "e".
	EntityAlias string
}

// NewCompiler creates a compiler with the default alias.
func NewCompiler() *Compiler {
	return &Compiler{EntityAlias: "e"}
}

func (c *Compiler) alias() string {
	if c.EntityAlias == "" {
		return "e"
	}
	return c.EntityAlias
}

// Where compiles the filter of q: its clause plus the EntityModels
// restriction. A query with neither compiles to "1 = 1".
func (c *Compiler) Where(q query.Query) (string, []any, error) {
	var parts []string
	var params []any

	if len(q.EntityModels) > 0 {
		sql, p := c.hasAnyModel(q.EntityModels)
		parts = append(parts, sql)
		params = append(params, p...)
	}
	if q.Clause != nil {
		sql, p, err := c.Clause(q.Clause)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// Page compiles a keyset page scan: up to batch entity rows with id
// greater than after, ordered by id.
func (c *Compiler) Page(q query.Query, after string, batch int) (string, []any, error) {
	if batch <= 0 {
		return "", nil, fmt.Errorf("batch size must be positive, got %d", batch)
	}
	where, params, err := c.Where(q)
	if err != nil {
		return "", nil, fmt.Errorf("compile page: %w", err)
	}
	a := c.alias()
	sql := fmt.Sprintf(
		"SELECT %[1]s.id, %[1]s.keys FROM entities %[1]s WHERE %[1]s.id > ? AND (%[2]s) ORDER BY %[1]s.id COLLATE BINARY ASC LIMIT ?",
		a, where)
	all := make([]any, 0, len(params)+2)
	all = append(all, after)
	all = append(all, params...)
	all = append(all, batch)
	return sql, all, nil
}

// Clause compiles one clause tree.
func (c *Compiler) Clause(cl query.Clause) (string, []any, error) {
	switch node := cl.(type) {
	case nil:
		return "1 = 1", nil, nil
	case query.KeysClause:
		return c.keys(node)
	case query.MemberClause:
		return c.member(node)
	case query.CompositeClause:
		return c.composite(node)
	default:
		return "", nil, fmt.Errorf("unsupported clause type: %T", cl)
	}
}

func (c *Compiler) composite(cl query.CompositeClause) (string, []any, error) {
	joiner := " AND "
	empty := "1 = 1"
	switch cl.Op {
	case query.OpAnd:
	case query.OpOr:
		joiner, empty = " OR ", "1 = 0"
	default:
		return "", nil, fmt.Errorf("unsupported logical operator %q", cl.Op)
	}
	if len(cl.Clauses) == 0 {
		return empty, nil, nil
	}

	parts := make([]string, 0, len(cl.Clauses))
	var params []any
	for _, child := range cl.Clauses {
		sql, p, err := c.Clause(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, p...)
	}
	return strings.Join(parts, joiner), params, nil
}

// keys compiles a key tuple match. Stored keys are normalized with
// ir.NormalizeKey, so equality on normalized parameters is exact.
func (c *Compiler) keys(cl query.KeysClause) (string, []any, error) {
	a := c.alias()
	var parts []string
	var params []any

	if len(cl.Models) > 0 {
		sql, p := c.hasAnyModel(cl.Models)
		parts = append(parts, sql)
		params = append(params, p...)
	}

	switch cl.Pattern {
	case query.FixedLen:
		parts = append(parts, fmt.Sprintf("json_array_length(%s.keys) = ?", a))
	case query.VariableLen:
		parts = append(parts, fmt.Sprintf("json_array_length(%s.keys) >= ?", a))
	default:
		return "", nil, fmt.Errorf("unsupported pattern %q", cl.Pattern)
	}
	params = append(params, len(cl.Keys))

	for i, k := range cl.Keys {
		if k == nil {
			continue
		}
		if _, isNull := k.(ir.Null); isNull {
			continue
		}
		param, ok := scalarParam(ir.NormalizeKey(k))
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("json_extract(%s.keys, ?) = ?", a))
		params = append(params, fmt.Sprintf("$[%d]", i), param)
	}
	return strings.Join(parts, " AND "), params, nil
}

// member compiles a field comparison. The model must exist; string
// equality against plain text is pushed down, and variant objects are let
// through for the exact match to decide.
func (c *Compiler) member(cl query.MemberClause) (string, []any, error) {
	a := c.alias()
	base := fmt.Sprintf("EXISTS (SELECT 1 FROM models m WHERE m.entity_id = %s.id AND m.model = ?", a)
	params := []any{cl.Model}

	if !fieldPath.MatchString(cl.Field) {
		return base + ")", params, nil
	}
	path := "$." + cl.Field

	switch cl.Op {
	case query.Eq:
		if s, ok := plainText(cl.Value); ok {
			return base + " AND (json_extract(m.data, ?) = ? OR json_type(m.data, ?) = 'object'))",
				append(params, path, s, path), nil
		}
	case query.In:
		arr, ok := cl.Value.(ir.Array)
		if !ok {
			return "", nil, fmt.Errorf("%s requires an array value", cl.Op)
		}
		texts := make([]any, 0, len(arr))
		for _, v := range arr {
			s, ok := plainText(v)
			if !ok {
				// Mixed or numeric lists fall back to presence.
				return base + " AND json_type(m.data, ?) IS NOT NULL)", append(params, path), nil
			}
			texts = append(texts, s)
		}
		if len(texts) == 0 {
			return "1 = 0", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(texts)), ", ")
		params = append(params, path)
		params = append(params, texts...)
		params = append(params, path)
		return base + " AND (json_extract(m.data, ?) IN (" + placeholders + ") OR json_type(m.data, ?) = 'object'))", params, nil
	}

	// Every other comparison needs the field present.
	return base + " AND json_type(m.data, ?) IS NOT NULL)", append(params, path), nil
}

func (c *Compiler) hasAnyModel(models []string) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(models)), ", ")
	params := make([]any, len(models))
	for i, m := range models {
		params[i] = m
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM models m WHERE m.entity_id = %s.id AND m.model IN (%s))",
		c.alias(), placeholders), params
}

// plainText returns the text of a string value that is not integer-like.
// Integer-like strings may be stored under another spelling.
func plainText(v ir.Value) (string, bool) {
	s, ok := v.(ir.String)
	if !ok {
		return "", false
	}
	if _, isFelt := ir.Felt(s); isFelt {
		return "", false
	}
	return string(s), true
}

// scalarParam converts a scalar value to a driver parameter.
func scalarParam(v ir.Value) (any, bool) {
	switch val := v.(type) {
	case ir.String:
		return string(val), true
	case ir.Int:
		return int64(val), true
	case ir.Bool:
		return bool(val), true
	default:
		return nil, false
	}
}
