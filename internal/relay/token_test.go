// internal/relay/token_test.go
package relay

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/models"
)

func TestTokenIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, claims, err := issuer.Issue("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "session:sess-1", claims.Channel)
	assert.Equal(t, CapabilitySubscribe, claims.Capability)

	verified, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, claims.Channel, verified.Channel)
}

func TestTokenScopedToOneChannel(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, _, err := issuer.Issue("sess-b")
	require.NoError(t, err)

	// A token for session B must never grant access to session A.
	_, err = issuer.VerifyForChannel(token, models.ChannelName("sess-a"))
	require.Error(t, err)

	_, err = issuer.VerifyForChannel(token, models.ChannelName("sess-b"))
	assert.NoError(t, err)
}

func TestTokenExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, _, err := issuer.Issue("sess-1")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeTokenExpired, stdErr.Code)
}

func TestTokenTampered(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, _, err := issuer.Issue("sess-1")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 2)

	tests := []struct {
		name  string
		token string
	}{
		{name: "flipped body", token: "x" + parts[0] + "." + parts[1]},
		{name: "flipped signature", token: parts[0] + "." + "x" + parts[1]},
		{name: "missing signature", token: parts[0]},
		{name: "garbage", token: "not-a-token"},
		{name: "empty", token: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, _, err := NewTokenIssuer("secret-a", time.Hour).Issue("sess-1")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Verify(token)
	assert.Error(t, err)
}
