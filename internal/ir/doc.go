// Package ir provides the value model shared by every other package: the
// sealed Value types that model fields decode into, canonical JSON, and the
// content-addressed entity id derivation.
//
// This package imports nothing internal. All other packages import ir.
//
// Key constraints:
//   - no float types anywhere; integers wider than int64 travel as strings
//   - entity ids are a pure function of the normalized key tuple
//   - canonical JSON (RFC 8785) is the only encoding used for hashing
package ir
