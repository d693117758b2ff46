// Package local is an in-process stand-in for the encryption library and the
// decryption oracle, used in development and tests.
//
// Ciphertext handles index a private plaintext table. Decryption requests are
// queued and delivered to a CallbackSink exactly once each, carrying an
// Ed25519 signature over keccak256(requestID || cleartexts). Delivery never
// retries: a failed delivery is logged and dropped, as with a real oracle whose
// callback transaction reverted.
package local

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"taxlens/internal/fhe"
	"taxlens/pkg/platform/tx"
)

var wordModulus = new(big.Int).Lsh(big.NewInt(1), 8*fhe.WordSize)

// Engine implements fhe.Library and fhe.Oracle.
type Engine struct {
	mu         sync.Mutex
	plaintexts map[fhe.Handle]fhe.Word
	queue      []fhe.Callback
	sink       fhe.CallbackSink

	notify chan struct{}
	key    ed25519.PrivateKey
	delay  time.Duration
	logger *slog.Logger
	random io.Reader
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDeliveryDelay holds each callback back by d before Run delivers it,
// approximating oracle latency.
func WithDeliveryDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.delay = d
	}
}

// WithRandom replaces the entropy source for handles and request ids.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		if r != nil {
			e.random = r
		}
	}
}

// New builds an engine whose signing key derives from seed. A nil seed draws a
// fresh key.
func New(seed []byte, opts ...Option) (*Engine, error) {
	e := &Engine{
		plaintexts: make(map[fhe.Handle]fhe.Word),
		notify:     make(chan struct{}, 1),
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(e)
	}
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := io.ReadFull(e.random, seed); err != nil {
			return nil, fmt.Errorf("generate signing seed: %w", err)
		}
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	e.key = ed25519.NewKeyFromSeed(seed)
	return e, nil
}

// PublicKey returns the key that verifies decryption proofs.
func (e *Engine) PublicKey() ed25519.PublicKey {
	return e.key.Public().(ed25519.PublicKey)
}

// SetSink registers the receiver of callbacks.
func (e *Engine) SetSink(sink fhe.CallbackSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// Encrypt stands in for client-side encryption: it returns a fresh handle for v.
func (e *Engine) Encrypt(v fhe.Word) (fhe.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storeLocked(v)
}

func (e *Engine) AsEncrypted(_ context.Context, v fhe.Word) (fhe.Handle, error) {
	return e.Encrypt(v)
}

func (e *Engine) IsInitialized(h fhe.Handle) bool {
	if h.IsZero() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.plaintexts[h]
	return ok
}

// Add returns a handle to a+b modulo 2^256.
func (e *Engine) Add(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pa, ok := e.plaintexts[a]
	if !ok {
		return fhe.Handle{}, fmt.Errorf("add lhs %s: %w", a, fhe.ErrUnknownHandle)
	}
	pb, ok := e.plaintexts[b]
	if !ok {
		return fhe.Handle{}, fmt.Errorf("add rhs %s: %w", b, fhe.ErrUnknownHandle)
	}
	sum := new(big.Int).Add(new(big.Int).SetBytes(pa[:]), new(big.Int).SetBytes(pb[:]))
	sum.Mod(sum, wordModulus)
	var w fhe.Word
	sum.FillBytes(w[:])
	return e.storeLocked(w)
}

// RequestDecryption queues one callback carrying the plaintexts of handles.
// Inside a unit of work the callback is queued only once the unit commits.
func (e *Engine) RequestDecryption(ctx context.Context, handles []fhe.Handle, selector fhe.Selector) (fhe.RequestID, error) {
	if len(handles) == 0 {
		return fhe.RequestID{}, fmt.Errorf("decryption request needs at least one handle")
	}
	if !selector.Valid() {
		return fhe.RequestID{}, fmt.Errorf("unknown callback selector %q", selector)
	}

	e.mu.Lock()
	words := make([]fhe.Word, len(handles))
	for i, h := range handles {
		w, ok := e.plaintexts[h]
		if !ok {
			e.mu.Unlock()
			return fhe.RequestID{}, fmt.Errorf("decrypt %s: %w", h, fhe.ErrUnknownHandle)
		}
		words[i] = w
	}
	var rid fhe.RequestID
	if _, err := io.ReadFull(e.random, rid[:]); err != nil {
		e.mu.Unlock()
		return fhe.RequestID{}, fmt.Errorf("generate request id: %w", err)
	}
	e.mu.Unlock()

	cleartexts := fhe.EncodeCleartexts(words...)
	cb := fhe.Callback{
		RequestID:  rid,
		Selector:   selector,
		Cleartexts: cleartexts,
		Proof:      e.Sign(rid, cleartexts),
	}
	// the requester's ledger entry must be visible before its callback arrives
	tx.AfterCommit(ctx, func() { e.enqueue(cb) })
	return rid, nil
}

func (e *Engine) enqueue(cb fhe.Callback) {
	e.mu.Lock()
	e.queue = append(e.queue, cb)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// CheckSignatures verifies proof against requestID and cleartexts.
func (e *Engine) CheckSignatures(requestID fhe.RequestID, cleartexts []byte, proof []byte) error {
	if !ed25519.Verify(e.PublicKey(), digest(requestID, cleartexts), proof) {
		return fhe.ErrInvalidSignature
	}
	return nil
}

// Sign produces the proof the oracle attaches to a delivery.
func (e *Engine) Sign(requestID fhe.RequestID, cleartexts []byte) []byte {
	return ed25519.Sign(e.key, digest(requestID, cleartexts))
}

// Pending returns the number of undelivered callbacks.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// TakeNext removes the oldest undelivered callback without delivering it.
// Tests use it to replay or tamper with deliveries.
func (e *Engine) TakeNext() (fhe.Callback, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return fhe.Callback{}, false
	}
	cb := e.queue[0]
	e.queue = e.queue[1:]
	return cb, true
}

// DeliverNext delivers the oldest queued callback to the sink.
// It reports false when the queue was empty.
func (e *Engine) DeliverNext(ctx context.Context) (bool, error) {
	cb, ok := e.TakeNext()
	if !ok {
		return false, nil
	}
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink == nil {
		return true, fmt.Errorf("no callback sink registered")
	}
	return true, sink.Deliver(ctx, cb)
}

// DeliverAll drains the queue, returning the first delivery error after
// attempting every callback.
func (e *Engine) DeliverAll(ctx context.Context) error {
	var first error
	for {
		ok, err := e.DeliverNext(ctx)
		if !ok {
			return first
		}
		if err != nil && first == nil {
			first = err
		}
	}
}

// Run delivers callbacks as they are queued until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.notify:
		}
		for e.Pending() > 0 {
			if e.delay > 0 {
				timer := time.NewTimer(e.delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
			if _, err := e.DeliverNext(ctx); err != nil && e.logger != nil {
				e.logger.WarnContext(ctx, "oracle callback rejected",
					"error", err,
				)
			}
		}
	}
}

func (e *Engine) storeLocked(v fhe.Word) (fhe.Handle, error) {
	var h fhe.Handle
	for {
		if _, err := io.ReadFull(e.random, h[:]); err != nil {
			return fhe.Handle{}, fmt.Errorf("generate handle: %w", err)
		}
		if _, taken := e.plaintexts[h]; !taken && !h.IsZero() {
			break
		}
	}
	e.plaintexts[h] = v
	return h, nil
}

func digest(requestID fhe.RequestID, cleartexts []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(requestID[:])
	h.Write(cleartexts)
	return h.Sum(nil)
}
