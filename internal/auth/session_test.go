package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndVerifyToken(t *testing.T) {
	require.NoError(t, Init())

	userID := uuid.New()
	token, err := CreateToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	require.NoError(t, Init())

	_, err := VerifyToken("not-a-jwt")
	assert.Error(t, err)
	_, err = VerifyToken("")
	assert.Error(t, err)
}

func TestTokensInvalidatedByNewKeys(t *testing.T) {
	require.NoError(t, Init())
	token, err := CreateToken(uuid.New())
	require.NoError(t, err)

	// A restart regenerates the key pair; old tokens stop verifying.
	require.NoError(t, Init())
	_, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestTokenExpiry(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "-1h")
	require.NoError(t, Init())

	token, err := CreateToken(uuid.New())
	require.NoError(t, err)
	_, err = VerifyToken(token)
	assert.Error(t, err)

	t.Setenv("TOKEN_EXPIRE_TIME", "bogus")
	assert.Error(t, Init())
}
