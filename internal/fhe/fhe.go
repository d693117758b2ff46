// Package fhe defines the boundary with the homomorphic-encryption library and
// the decryption oracle. Nothing in this module inspects ciphertexts: values
// cross the boundary as opaque handles and come back, on request, as signed
// cleartext words delivered to a callback.
package fhe

//go:generate mockgen -source=fhe.go -destination=mocks/mocks.go -package=mocks Library,Oracle,CallbackSink

import (
	"context"
	"errors"
)

// Selector names the callback entry point an oracle must invoke for a request.
type Selector string

const (
	SelectorAnalysis Selector = "analysis"
	SelectorStats    Selector = "stats"
)

// Valid reports whether s names a known callback.
func (s Selector) Valid() bool {
	return s == SelectorAnalysis || s == SelectorStats
}

// ErrInvalidSignature is returned by CheckSignatures when a proof does not
// cover the request id and cleartexts it was delivered with.
var ErrInvalidSignature = errors.New("fhe: invalid decryption proof")

// ErrUnknownHandle is returned when a handle was never produced by the library.
var ErrUnknownHandle = errors.New("fhe: unknown ciphertext handle")

// Library is the homomorphic arithmetic surface. All operations are pure with
// respect to this module's state: they only produce new ciphertexts.
type Library interface {
	Add(ctx context.Context, a, b Handle) (Handle, error)
	AsEncrypted(ctx context.Context, v Word) (Handle, error)
	IsInitialized(h Handle) bool
}

// Oracle issues asynchronous decryption requests and verifies the proofs that
// come back with their callbacks. For every RequestID it returns, the oracle
// invokes the selected callback exactly once.
type Oracle interface {
	RequestDecryption(ctx context.Context, handles []Handle, selector Selector) (RequestID, error)
	CheckSignatures(requestID RequestID, cleartexts []byte, proof []byte) error
}

// Callback is one oracle delivery.
type Callback struct {
	RequestID  RequestID
	Selector   Selector
	Cleartexts []byte
	Proof      []byte
}

// CallbackSink receives oracle deliveries and routes them by selector.
type CallbackSink interface {
	Deliver(ctx context.Context, cb Callback) error
}
