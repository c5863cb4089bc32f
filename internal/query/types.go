package query

import "github.com/roach88/duelsync/internal/ir"

// Clause is a predicate over entities.
//
// This is a sealed interface: only KeysClause, MemberClause and
// CompositeClause implement it, so backends can switch exhaustively.
type Clause interface {
	clauseNode()
}

// Op is a field comparator.
type Op string

const (
	Eq    Op = "Eq"
	Neq   Op = "Neq"
	Gt    Op = "Gt"
	Gte   Op = "Gte"
	Lt    Op = "Lt"
	Lte   Op = "Lte"
	In    Op = "In"
	NotIn Op = "NotIn"
)

var validOps = map[Op]bool{Eq: true, Neq: true, Gt: true, Gte: true, Lt: true, Lte: true, In: true, NotIn: true}

// LogicalOp joins child clauses.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

// PatternMatching controls how a key tuple is compared.
type PatternMatching string

const (
	// FixedLen matches entities whose key tuple has exactly len(Keys) fields.
	FixedLen PatternMatching = "FixedLen"
	// VariableLen matches when Keys is a prefix of the entity key tuple.
	VariableLen PatternMatching = "VariableLen"
)

// KeysClause matches entities by key tuple. A nil element is a wildcard.
//
// Example:
//
//	KeysClause{
//	  Keys:    []ir.Value{ir.String("0x1"), nil},
//	  Models:  []string{"pistols-ChallengeRewardsEvent"},
//	  Pattern: FixedLen,
//	}
//
// matches every rewards event of duel 0x1, whatever the duelist.
type KeysClause struct {
	Keys    []ir.Value
	Models  []string // entity must carry at least one (empty = any)
	Pattern PatternMatching
}

func (KeysClause) clauseNode() {}

// MemberClause compares one field of one model against a literal.
// Field may be a dotted path into nested structs ("timestamps.end").
// In and NotIn take an ir.Array.
type MemberClause struct {
	Model string
	Field string
	Op    Op
	Value ir.Value
}

func (MemberClause) clauseNode() {}

// CompositeClause combines children with AND or OR. An empty AND is true;
// an empty OR is false.
type CompositeClause struct {
	Op      LogicalOp
	Clauses []Clause
}

func (CompositeClause) clauseNode() {}
