package models

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"taxlens/internal/fhe"
)

// NameHash is the Keccak-256 digest of a jurisdiction name. Stats decryption
// requests are correlated by hash, and callbacks resolve it back to a name by
// rehashing the known-name list.
type NameHash [32]byte

// HashName returns keccak256(name).
func HashName(name string) NameHash {
	var h NameHash
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte(name))
	d.Sum(h[:0])
	return h
}

func (h NameHash) IsZero() bool { return h == NameHash{} }

func (h NameHash) String() string { return "0x" + hex.EncodeToString(h[:]) }

func (h NameHash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *NameHash) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	if len(s) != 64 {
		return fmt.Errorf("name hash must be 64 hex characters, got %d", len(s))
	}
	_, err := hex.Decode(h[:], []byte(s))
	return err
}

// NameHashFromBytes copies a stored digest.
func NameHashFromBytes(b []byte) (NameHash, error) {
	var h NameHash
	if len(b) != len(h) {
		return h, fmt.Errorf("name hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Counter is the encrypted number of analyzed profiles in one jurisdiction.
// Position increases with creation order; the known-name list is the counter
// names sorted by Position.
type Counter struct {
	Name      string     `json:"name"`
	NameHash  NameHash   `json:"name_hash"`
	Handle    fhe.Handle `json:"handle"`
	Position  int        `json:"position"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewCounter builds a counter for name holding handle. The store assigns
// Position.
func NewCounter(name string, handle fhe.Handle, now time.Time) *Counter {
	return &Counter{
		Name:      name,
		NameHash:  HashName(name),
		Handle:    handle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyIncrement replaces the ciphertext with the result of an addition.
func (c *Counter) ApplyIncrement(handle fhe.Handle, now time.Time) {
	c.Handle = handle
	c.UpdatedAt = now
}

// ResolveName scans names in order and returns the first whose hash is h.
func ResolveName(names []string, h NameHash) (string, bool) {
	for _, name := range names {
		if HashName(name) == h {
			return name, true
		}
	}
	return "", false
}
