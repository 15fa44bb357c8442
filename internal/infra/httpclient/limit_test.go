package httpclient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAllWithLimit(t *testing.T) {
	places := `[{"lat":"19.0584","lon":"72.8842","display_name":"Office"}]`

	got, err := ReadAllWithLimit(strings.NewReader(places), int64(len(places)))
	require.NoError(t, err)
	assert.Equal(t, places, string(got))

	_, err = ReadAllWithLimit(strings.NewReader(places), 16)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	got, err = ReadAllWithLimit(strings.NewReader(places), 0)
	require.NoError(t, err)
	assert.Len(t, got, len(places))
}
