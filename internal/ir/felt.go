package ir

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// Felt parses an integer-like value: Int, a "0x" hex String or a decimal
// String. Returns false for anything else, including negative hex.
func Felt(v Value) (*big.Int, bool) {
	switch val := v.(type) {
	case Int:
		return big.NewInt(int64(val)), true
	case Bool:
		if val {
			return big.NewInt(1), true
		}
		return big.NewInt(0), true
	case String:
		s := strings.TrimSpace(string(val))
		if s == "" {
			return nil, false
		}
		n := new(big.Int)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			if len(s) == 2 {
				return big.NewInt(0), true
			}
			if _, ok := n.SetString(s[2:], 16); !ok {
				return nil, false
			}
			return n, true
		}
		if _, ok := n.SetString(s, 10); !ok {
			return nil, false
		}
		return n, true
	default:
		return nil, false
	}
}

// FeltHex renders an integer-like value as lowercase unpadded hex ("0x1f").
// Non-numeric values return "".
func FeltHex(v Value) string {
	n, ok := Felt(v)
	if !ok {
		return ""
	}
	return "0x" + n.Text(16)
}

// AsInt64 returns the value as int64 when it is integer-like and fits.
func AsInt64(v Value) (int64, bool) {
	if i, ok := v.(Int); ok {
		return int64(i), true
	}
	n, ok := Felt(v)
	if !ok || !n.IsInt64() {
		return 0, false
	}
	return n.Int64(), true
}

// AsString returns the raw text of a String value.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsBool accepts Bool and integer 0/1.
func AsBool(v Value) (bool, bool) {
	switch val := v.(type) {
	case Bool:
		return bool(val), true
	case Int:
		return val != 0, true
	default:
		return false, false
	}
}

// ShortString decodes a Cairo short string (ASCII packed into a felt).
// Plain text values are returned unchanged.
func ShortString(v Value) string {
	s, isString := v.(String)
	if isString && !strings.HasPrefix(string(s), "0x") {
		return string(s)
	}
	n, ok := Felt(v)
	if !ok || n.Sign() == 0 {
		return ""
	}
	return strings.TrimLeft(string(n.Bytes()), "\x00")
}

// EncodeShortString packs ASCII text into a felt, the inverse of
// ShortString. Cairo short strings hold at most 31 bytes.
func EncodeShortString(s string) String {
	if s == "" {
		return String("0x0")
	}
	return String("0x" + hex.EncodeToString([]byte(s)))
}

// IsPositive reports whether an integer-like value is > 0.
func IsPositive(v Value) bool {
	n, ok := Felt(v)
	return ok && n.Sign() > 0
}

// NormalizeKey maps integer-like keys onto one representation so that
// Int(5), "5" and "0x05" produce the same entity id. Other values pass through.
func NormalizeKey(v Value) Value {
	switch val := v.(type) {
	case Int, Bool:
		return String(FeltHex(val))
	case String:
		if h := FeltHex(val); h != "" {
			return String(h)
		}
		return val
	default:
		return v
	}
}
