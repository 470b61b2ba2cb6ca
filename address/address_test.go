package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	typedriverrrors "github.com/redbco/typedriver/errors"
)

func TestParseRequiresPort(t *testing.T) {
	_, err := Parse("localhost")
	require.Error(t, err)
	assert.True(t, typedriverrrors.Is(err, typedriverrrors.MissingPort))
}

func TestParseHostPort(t *testing.T) {
	addr, err := Parse("db1.internal:1729")
	require.NoError(t, err)
	assert.Equal(t, "db1.internal", addr.Host)
	assert.Equal(t, "1729", addr.Port)
	assert.Equal(t, "db1.internal:1729", addr.HostPort())
}

func TestParseWithScheme(t *testing.T) {
	addr, err := Parse("https://db1.internal:1729/v2")
	require.NoError(t, err)
	assert.Equal(t, "https", addr.Scheme)
	assert.Equal(t, "/v2", addr.Path)
}

func TestWithScheme(t *testing.T) {
	addr := MustParse("db1.internal:1729")
	https := addr.WithScheme("https")
	assert.Equal(t, "https", https.Scheme)
	assert.Equal(t, defaultPath, https.Path)
	assert.Equal(t, "db1.internal:1729", addr.HostPort(), "original address is unchanged")
}

func TestEqualIgnoresSchemeAndPath(t *testing.T) {
	a := MustParse("db1.internal:1729")
	b := MustParse("https://db1.internal:1729/v2")
	assert.True(t, a.Equal(b))
}
