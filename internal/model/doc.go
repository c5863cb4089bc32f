// Package model gives typed access into entity model bags.
//
// An Entity is identified by an id derived from its key tuple and owns a
// Bag of models keyed by qualified name ("pistols-Challenge"). Lookups never
// fail loudly: a missing model is the normal state of an entity whose data
// hasn't arrived yet.
//
// Enum fields are decoded into closed Go string types with an Undefined
// member as fallback. The Registry validates models against the schema
// compiled by package schema so malformed payloads can be dropped before
// they reach the store.
package model
