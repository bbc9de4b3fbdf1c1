package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	encoded := Encode(40, "pod eviction")
	require.NotEmpty(t, encoded)

	cur, err := Decode(encoded)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 40, cur.Offset)
	assert.Equal(t, "pod eviction", cur.Query)
}

func TestCursor_QueryMayContainSeparator(t *testing.T) {
	cur, err := Decode(Encode(20, "a|b|c"))
	require.NoError(t, err)
	assert.Equal(t, 20, cur.Offset)
	assert.Equal(t, "a|b|c", cur.Query)
}

func TestEncode_NonPositiveOffset(t *testing.T) {
	assert.Empty(t, Encode(0, "query"))
	assert.Empty(t, Encode(-5, "query"))
}

func TestDecode_Empty(t *testing.T) {
	cur, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode("not base64 at all!!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// Valid base64 but no separator.
	_, err = Decode(base64.StdEncoding.EncodeToString([]byte("40")))
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// Non-numeric offset.
	_, err = Decode(base64.StdEncoding.EncodeToString([]byte("abc|query")))
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// Negative offset.
	_, err = Decode(base64.StdEncoding.EncodeToString([]byte("-1|query")))
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
