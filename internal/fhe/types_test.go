package fhe

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringWord(t *testing.T) {
	t.Run("round trips short strings", func(t *testing.T) {
		for _, s := range []string{"", "US", "married-2-children", strings.Repeat("x", MaxStringLen)} {
			w, err := StringWord(s)
			require.NoError(t, err)
			assert.Equal(t, s, w.Text())
		}
	})

	t.Run("rejects strings that cannot round trip", func(t *testing.T) {
		_, err := StringWord(strings.Repeat("x", MaxStringLen+1))
		require.Error(t, err)

		_, err = StringWord("a\x00b")
		require.Error(t, err)
	})
}

func TestUint64Word(t *testing.T) {
	v, err := Uint64Word(42).Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	var overflow Word
	overflow[0] = 1
	_, err = overflow.Uint64()
	require.Error(t, err)
}

func TestCleartexts(t *testing.T) {
	a, _ := StringWord("250000")
	b, _ := StringWord("single")
	c, _ := StringWord("FR")

	words, err := DecodeCleartexts(EncodeCleartexts(a, b, c), 3)
	require.NoError(t, err)
	assert.Equal(t, []Word{a, b, c}, words)

	_, err = DecodeCleartexts(EncodeCleartexts(a, b), 3)
	require.Error(t, err, "short payload must not decode")
}

func TestHexEncoding(t *testing.T) {
	var h Handle
	h[0], h[31] = 0xab, 0x01

	parsed, err := ParseHandle(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHandle("0x1234")
	require.Error(t, err)

	t.Run("json uses hex text", func(t *testing.T) {
		var rid RequestID
		rid[5] = 7
		raw, err := json.Marshal(struct {
			ID RequestID `json:"id"`
		}{rid})
		require.NoError(t, err)
		assert.Contains(t, string(raw), rid.String())

		var back struct {
			ID RequestID `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, rid, back.ID)
	})

	assert.True(t, Handle{}.IsZero())
	assert.False(t, h.IsZero())
}
