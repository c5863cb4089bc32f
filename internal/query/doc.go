// Package query describes what to fetch or subscribe to.
//
// A Query pairs an entity-model filter with a clause tree built from three
// sealed node types:
//   - KeysClause: key-tuple equality, fixed length or prefix
//   - MemberClause: a comparator over one field of one model
//   - CompositeClause: AND/OR over children
//
// Queries are plain values. Building one has no side effects and the same
// builder state always serializes to the same bytes, which is what Hash
// relies on to detect parameter changes.
//
// Match and Apply evaluate a query in process. Local indexer backends use
// them to answer pages and filter live updates.
package query
