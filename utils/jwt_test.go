package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIToken(t *testing.T) {
	token, err := GenerateAPIToken("s3cret", "dashboard", "admin", time.Hour)
	require.NoError(t, err)

	claims, err := ParseAPIToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", claims.Subject)
	assert.Equal(t, "admin", claims.Scope)

	_, err = ParseAPIToken("other", token)
	assert.Error(t, err)

	expired, err := GenerateAPIToken("s3cret", "dashboard", "", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAPIToken("s3cret", expired)
	assert.Error(t, err)
}
