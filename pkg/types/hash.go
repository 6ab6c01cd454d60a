// Package types defines core primitive types shared by the stake core.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value.
//
// When a hash is compared against a target or used as a number it is read
// as an unsigned big-endian integer (see Big).
type Hash [HashSize]byte

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Big returns the hash as an unsigned big-endian integer.
func (h Hash) Big() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// Xor returns the bitwise XOR of two hashes.
func (h Hash) Xor(other Hash) Hash {
	var out Hash
	for i := range h {
		out[i] = h[i] ^ other[i]
	}
	return out
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return h.UnmarshalText([]byte(s))
}

// MarshalText encodes the hash as hex. Used by TOML parameter files.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex string into a hash. An empty string yields
// the zero hash.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	decoded, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MustHexToHash is like HexToHash but panics on malformed input. Intended
// for compiled-in checkpoint tables.
func MustHexToHash(s string) Hash {
	h, err := HexToHash(s)
	if err != nil {
		panic(fmt.Sprintf("types: bad hash literal %q: %v", s, err))
	}
	return h
}
