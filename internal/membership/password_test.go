package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, salt, err := hashPassword("correct horse battery staple")
	require.NoError(t, err)

	ok, err := verifyPassword("correct horse battery staple", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("Correct horse battery staple", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	h1, s1, err := hashPassword("same-password")
	require.NoError(t, err)
	h2, s2, err := hashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyPassword_CorruptEncoding(t *testing.T) {
	_, err := verifyPassword("pw", "%%%", "AAAA")
	assert.Error(t, err)
	_, err = verifyPassword("pw", "AAAA", "%%%")
	assert.Error(t, err)
}
