package auth

import (
	"testing"
	"time"

	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	secret := []byte("s3cret")

	token, expiresAt, err := Issue(secret, "alice", time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := Parse(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID())

	_, err = Parse([]byte("other"), token)
	assert.ErrorIs(t, err, matchmate_errors.ErrUnauthorized)
}

func TestParse_Expired(t *testing.T) {
	secret := []byte("s3cret")
	token, _, err := Issue(secret, "alice", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(secret, token)
	assert.ErrorIs(t, err, matchmate_errors.ErrUnauthorized)
}

func TestSubjectFromToken(t *testing.T) {
	token, _, err := Issue([]byte("whatever"), "bob", time.Hour)
	require.NoError(t, err)

	sub, err := SubjectFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", sub)

	_, err = SubjectFromToken("garbage")
	assert.ErrorIs(t, err, matchmate_errors.ErrUnauthorized)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
