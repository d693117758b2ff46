package tx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "taxlens/pkg/domain-errors"
)

func TestLocalRunner(t *testing.T) {
	t.Run("serializes units of work", func(t *testing.T) {
		r := NewLocalRunner()
		var (
			wg      sync.WaitGroup
			active  int
			overlap bool
			mu      sync.Mutex
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.RunInTx(context.Background(), func(context.Context) error {
					mu.Lock()
					active++
					if active > 1 {
						overlap = true
					}
					mu.Unlock()

					mu.Lock()
					active--
					mu.Unlock()
					return nil
				})
			}()
		}
		wg.Wait()
		assert.False(t, overlap)
	})

	t.Run("nested calls join the outer unit", func(t *testing.T) {
		r := NewLocalRunner()
		calls := 0
		err := r.RunInTx(context.Background(), func(ctx context.Context) error {
			return r.RunInTx(ctx, func(context.Context) error {
				calls++
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("runs commit hooks after the unit", func(t *testing.T) {
		r := NewLocalRunner()
		var order []string
		err := r.RunInTx(context.Background(), func(ctx context.Context) error {
			AfterCommit(ctx, func() { order = append(order, "hook") })
			return r.RunInTx(ctx, func(ctx context.Context) error {
				AfterCommit(ctx, func() { order = append(order, "nested hook") })
				order = append(order, "unit")
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"unit", "hook", "nested hook"}, order)
	})

	t.Run("drops commit hooks of a failed unit", func(t *testing.T) {
		ran := false
		err := NewLocalRunner().RunInTx(context.Background(), func(ctx context.Context) error {
			AfterCommit(ctx, func() { ran = true })
			return errors.New("boom")
		})
		require.Error(t, err)
		assert.False(t, ran)
	})

	t.Run("returns the unit's error", func(t *testing.T) {
		boom := errors.New("boom")
		err := NewLocalRunner().RunInTx(context.Background(), func(context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
	})

	t.Run("rejects a cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewLocalRunner().RunInTx(ctx, func(context.Context) error {
			t.Fatal("unit must not run")
			return nil
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func TestAfterCommitWithoutUnit(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}
