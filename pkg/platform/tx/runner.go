package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "taxlens/pkg/domain-errors"
)

// DefaultTimeout bounds a unit of work whose context carries no deadline.
const DefaultTimeout = 5 * time.Second

// Runner executes fn as one atomic unit of work. Stores called with the
// context passed to fn take part in the unit. Nested calls join the outer unit.
// Hooks registered with AfterCommit run once the unit has committed.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type localKey struct{}

// LocalRunner serializes units of work behind a single writer lock. It pairs
// with the in-memory stores, which validate before they mutate, so a failing
// unit leaves no partial writes as long as fn checks before it writes.
type LocalRunner struct {
	mu      sync.Mutex
	timeout time.Duration
}

// NewLocalRunner returns a runner for in-memory stores.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{timeout: DefaultTimeout}
}

func (r *LocalRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(localKey{}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	ctx, hooks := withCommitHooks(ctx)
	if err := r.run(ctx, fn); err != nil {
		return err
	}
	hooks.run()
	return nil
}

func (r *LocalRunner) run(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(context.WithValue(ctx, localKey{}, struct{}{}))
}

// SQLRunner runs each unit of work in one database transaction carried in
// the context.
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db, timeout: DefaultTimeout}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	ctx, hooks := withCommitHooks(ctx)
	err := Do(ctx, r.db, func(txCtx context.Context, _ Querier) error {
		return fn(txCtx)
	})
	if err != nil {
		return err
	}
	hooks.run()
	return nil
}

// Do runs fn on the transaction already open in ctx, or opens one on db and
// commits it when fn succeeds. Stores use it for statements that need row
// locks whether or not the caller opened a unit of work.
func Do(ctx context.Context, db *sql.DB, fn func(ctx context.Context, q Querier) error) error {
	if tx, ok := From(ctx); ok {
		return fn(ctx, tx)
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx), sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
