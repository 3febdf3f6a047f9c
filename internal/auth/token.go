// Package auth obtains and caches Polaris access tokens.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
)

// Token is an access token and its expiry. A zero ExpiresAt never expires.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used, keeping a safety buffer
// before expiry.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(constants.TokenExpirationBuffer).Before(t.ExpiresAt)
}

// NewToken builds a token, taking the expiry from the JWT exp claim when
// present.
func NewToken(accessToken string) *Token {
	tok := &Token{AccessToken: accessToken}

	if exp, err := ExpiryFromJWT(accessToken); err == nil {
		tok.ExpiresAt = exp
	}

	return tok
}

// ExpiryFromJWT decodes the exp claim of a JWT without verifying it.
func ExpiryFromJWT(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != constants.TokenPartsCount {
		return time.Time{}, constants.ErrInvalidJWTFormat
	}

	payload := parts[1]
	if m := len(payload) % constants.Base64PaddingLength; m != 0 {
		payload += strings.Repeat("=", constants.Base64PaddingLength-m)
	}

	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode JWT payload: %w", err)
	}

	var claims struct {
		Exp *float64 `json:"exp"`
	}

	if err := json.Unmarshal(decoded, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse JWT claims: %w", err)
	}

	if claims.Exp == nil {
		return time.Time{}, constants.ErrNoExpirationClaim
	}

	return time.Unix(int64(*claims.Exp), 0), nil
}
