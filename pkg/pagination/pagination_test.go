package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLimit(in), "NormalizeLimit(%d)", in)
	}
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 11, 12, 13, time.FixedZone("WAT", 3600))

	got, err := Decode(Encode(Cursor{CreatedAt: at, Key: "ORD-1A2B3C4D"}))
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(at))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
	assert.Equal(t, "ORD-1A2B3C4D", got.Key)
}

func TestEncodeIsURLSafe(t *testing.T) {
	token := Encode(Cursor{CreatedAt: time.Now(), Key: "??>>~~"})
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	c, err := Decode("  ")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = Decode("not base64!")
	assert.ErrorIs(t, err, errMalformed)

	_, err = Decode(Encode(Cursor{CreatedAt: time.Now()}))
	assert.ErrorIs(t, err, errMalformed, "empty key")
}

func TestDecodeUUID(t *testing.T) {
	id := uuid.New()
	c, err := DecodeUUID(Encode(Cursor{CreatedAt: time.Now(), Key: id.String()}))
	require.NoError(t, err)
	assert.Equal(t, id.String(), c.Key)

	_, err = DecodeUUID(Encode(Cursor{CreatedAt: time.Now(), Key: "ORD-1"}))
	assert.ErrorIs(t, err, errMalformed)
}

func TestTrim(t *testing.T) {
	type row struct {
		at  time.Time
		key string
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{base.Add(3), "c"}, {base.Add(2), "b"}, {base.Add(1), "a"}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, Key: r.key} }

	page, next := Trim(rows, 2, cursorOf)
	require.Len(t, page, 2)
	c, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "b", c.Key)

	page, next = Trim(rows[:2], 2, cursorOf)
	assert.Len(t, page, 2)
	assert.Empty(t, next)

	page, next = Trim[row](nil, 2, cursorOf)
	assert.NotNil(t, page)
	assert.Empty(t, next)
}
