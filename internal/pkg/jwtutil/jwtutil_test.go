package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	token, err := SignToken("secret", Claims{ProjectID: 12, TeamID: 4, Tier: "pro", FirstParty: true}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.ProjectID)
	assert.Equal(t, uint(4), claims.TeamID)
	assert.Equal(t, "pro", claims.Tier)
	assert.True(t, claims.FirstParty)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := SignToken("secret", Claims{ProjectID: 12}, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := SignToken("secret", Claims{ProjectID: 12}, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	assert.Error(t, err)
}

func TestParseRejectsMissingProjectScope(t *testing.T) {
	token, err := SignToken("secret", Claims{TeamID: 4}, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	assert.Error(t, err)
}
