package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodes(t *testing.T) {
	t.Run("new carries code and message", func(t *testing.T) {
		err := New(CodeInvalidProof, "proof rejected")
		assert.True(t, HasCode(err, CodeInvalidProof))
		assert.Equal(t, "proof rejected", err.Error())
		assert.Equal(t, CodeInvalidProof, CodeOf(err))
	})

	t.Run("wrap keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to load profile")
		require.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to load profile: connection reset", err.Error())
	})

	t.Run("wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeUnknownRequest, "unknown request"))
		assert.True(t, Is(err, CodeUnknownRequest))
		assert.Equal(t, "unknown request", Message(err))
	})

	t.Run("plain errors default to internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeNotFound))
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Empty(t, Message(err))
	})
}
