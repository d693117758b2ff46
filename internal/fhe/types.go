package fhe

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// WordSize is the width of handles, request ids and cleartext words.
const WordSize = 32

// MaxStringLen is the longest string that packs into one Word.
const MaxStringLen = WordSize - 1

// Handle is an opaque ciphertext reference. The zero Handle is uninitialized.
type Handle [WordSize]byte

// RequestID is the oracle's correlation token for one decryption request.
type RequestID [WordSize]byte

// Word is one 32-byte cleartext value.
type Word [WordSize]byte

func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) String() string { return encodeHex(h[:]) }

func (h Handle) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (r RequestID) IsZero() bool { return r == RequestID{} }

func (r RequestID) String() string { return encodeHex(r[:]) }

func (r RequestID) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Hex renders the raw word.
func (w Word) Hex() string { return encodeHex(w[:]) }

func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func (r *RequestID) UnmarshalText(text []byte) error {
	parsed, err := ParseRequestID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseHandle decodes a 0x-prefixed or bare 64-character hex handle.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	if err := decodeHex(s, h[:]); err != nil {
		return Handle{}, fmt.Errorf("parse handle: %w", err)
	}
	return h, nil
}

// ParseRequestID decodes a 0x-prefixed or bare 64-character hex request id.
func ParseRequestID(s string) (RequestID, error) {
	var r RequestID
	if err := decodeHex(s, r[:]); err != nil {
		return RequestID{}, fmt.Errorf("parse request id: %w", err)
	}
	return r, nil
}

// HandleFromBytes copies a stored 32-byte handle.
func HandleFromBytes(b []byte) (Handle, error) {
	var h Handle
	if len(b) != WordSize {
		return h, fmt.Errorf("handle must be %d bytes, got %d", WordSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// RequestIDFromBytes copies a stored 32-byte request id.
func RequestIDFromBytes(b []byte) (RequestID, error) {
	var r RequestID
	if len(b) != WordSize {
		return r, fmt.Errorf("request id must be %d bytes, got %d", WordSize, len(b))
	}
	copy(r[:], b)
	return r, nil
}

// StringWord packs s left-aligned into a Word. Strings longer than
// MaxStringLen or containing NUL bytes cannot round-trip and are rejected.
func StringWord(s string) (Word, error) {
	var w Word
	if len(s) > MaxStringLen {
		return w, fmt.Errorf("string of %d bytes exceeds %d", len(s), MaxStringLen)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return w, fmt.Errorf("string contains NUL byte")
	}
	copy(w[:], s)
	return w, nil
}

// Text unpacks a Word produced by StringWord.
func (w Word) Text() string {
	return string(bytes.TrimRight(w[:], "\x00"))
}

// Uint64Word packs v big-endian, right-aligned, as a 256-bit unsigned integer.
func Uint64Word(v uint64) Word {
	var w Word
	binary.BigEndian.PutUint64(w[WordSize-8:], v)
	return w
}

// Uint64 unpacks a Word holding an unsigned integer that fits 64 bits.
func (w Word) Uint64() (uint64, error) {
	for _, b := range w[:WordSize-8] {
		if b != 0 {
			return 0, fmt.Errorf("word %s overflows uint64", w.Hex())
		}
	}
	return binary.BigEndian.Uint64(w[WordSize-8:]), nil
}

// EncodeCleartexts concatenates words in request order.
func EncodeCleartexts(words ...Word) []byte {
	out := make([]byte, 0, len(words)*WordSize)
	for _, w := range words {
		out = append(out, w[:]...)
	}
	return out
}

// DecodeCleartexts splits b into exactly n words.
func DecodeCleartexts(b []byte, n int) ([]Word, error) {
	if len(b) != n*WordSize {
		return nil, fmt.Errorf("cleartexts: expected %d words (%d bytes), got %d bytes", n, n*WordSize, len(b))
	}
	words := make([]Word, n)
	for i := range words {
		copy(words[i][:], b[i*WordSize:(i+1)*WordSize])
	}
	return words, nil
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHex(s string, dst []byte) error {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*len(dst) {
		return fmt.Errorf("expected %d hex characters, got %d", 2*len(dst), len(s))
	}
	_, err := hex.Decode(dst, []byte(s))
	return err
}
