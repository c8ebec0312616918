// internal/relay/token.go
package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/models"
)

// CapabilitySubscribe is the only capability tokens grant: a client may
// subscribe to and observe its own session's channel, never publish.
const CapabilitySubscribe = "subscribe"

// TokenClaims scope a relay token to exactly one channel for a limited time.
type TokenClaims struct {
	Channel    string `json:"channel"`
	Capability string `json:"capability"`
	ExpiresAt  int64  `json:"expiresAt"`
}

// TokenIssuer mints and verifies HMAC-signed, time-limited tokens scoped
// to a single session channel.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue creates a subscribe-only token for the given session's channel.
func (i *TokenIssuer) Issue(sessionID string) (string, TokenClaims, error) {
	claims := TokenClaims{
		Channel:    models.ChannelName(sessionID),
		Capability: CapabilitySubscribe,
		ExpiresAt:  time.Now().Add(i.ttl).Unix(),
	}
	encoded, err := json.Marshal(claims)
	if err != nil {
		return "", TokenClaims{}, err
	}
	body := base64.RawURLEncoding.EncodeToString(encoded)
	return body + "." + i.sign(body), claims, nil
}

// Verify checks the signature and expiry and returns the embedded claims.
// The claims bind the token to one channel; callers subscribe to
// claims.Channel and nothing else.
func (i *TokenIssuer) Verify(token string) (*TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, errors.NewTokenInvalidError("malformed token")
	}
	if !hmac.Equal([]byte(i.sign(parts[0])), []byte(parts[1])) {
		return nil, errors.NewTokenInvalidError("signature mismatch")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.NewTokenInvalidError("malformed token body")
	}
	var claims TokenClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil, errors.NewTokenInvalidError("malformed token claims")
	}
	if claims.Capability != CapabilitySubscribe {
		return nil, errors.NewTokenInvalidError("unsupported capability")
	}
	if time.Now().Unix() >= claims.ExpiresAt {
		return nil, errors.NewTokenExpiredError()
	}
	return &claims, nil
}

// VerifyForChannel verifies the token and additionally requires it to be
// scoped to the given channel. A token issued for another session never
// grants access here.
func (i *TokenIssuer) VerifyForChannel(token, channel string) (*TokenClaims, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Channel != channel {
		return nil, errors.NewTokenInvalidError("token not scoped to this channel")
	}
	return claims, nil
}

func (i *TokenIssuer) sign(body string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
