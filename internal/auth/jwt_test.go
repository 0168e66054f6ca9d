package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	tok, err := iss.Issue("u-1", RoleAdmin)
	require.NoError(t, err)

	c, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UserID)
	assert.True(t, c.IsAdmin())
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	tok, err := NewIssuer("other", time.Hour).Issue("u-1", "user")
	require.NoError(t, err)
	_, err = NewIssuer("secret", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	old := NewIssuer("secret", time.Minute)
	old.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err = old.Issue("u-1", "user")
	require.NoError(t, err)
	_, err = old.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = old.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
