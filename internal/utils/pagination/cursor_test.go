package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_EmptyIsStart(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.True(t, c.IsZero())
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode("%%%not-base64")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = Decode("e30=") // "{}" has no id
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestAt_KeepsMillisecondPosition(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 123_000_000, time.UTC)
	token, err := Encode(At(ts, "user-9"))
	require.NoError(t, err)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", c.ID)
	assert.True(t, c.Time().Equal(ts))
}
