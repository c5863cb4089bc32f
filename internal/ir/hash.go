package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm migration.
const (
	DomainEntity = "duelsync/entity/v1"
	DomainQuery  = "duelsync/query/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntityID derives the entity id from an ordered primary-key tuple.
// Integer-like keys are normalized first, so Int(7) and "0x7" agree.
// The result is "0x" followed by 64 hex characters.
func EntityID(keys ...Value) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("EntityID: empty key tuple")
	}
	tuple := make(Array, len(keys))
	for i, k := range keys {
		if k == nil {
			return "", fmt.Errorf("EntityID: key %d is nil", i)
		}
		tuple[i] = NormalizeKey(k)
	}
	canonical, err := MarshalCanonical(tuple)
	if err != nil {
		return "", fmt.Errorf("EntityID: failed to marshal: %w", err)
	}
	return "0x" + hashWithDomain(DomainEntity, canonical), nil
}

// MustEntityID is like EntityID but panics on error.
// Use only in tests or when the keys are known to be valid.
func MustEntityID(keys ...Value) string {
	id, err := EntityID(keys...)
	if err != nil {
		panic(err)
	}
	return id
}

// HashCanonical hashes an already-canonical payload under the query domain.
func HashCanonical(canonical []byte) string {
	return hashWithDomain(DomainQuery, canonical)
}
