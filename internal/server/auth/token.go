package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims binds an access token to one session record. Tokens are
// deterministic per session: no issue or expiry timestamps, a session
// lives until logout deletes it.
type sessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// SignSessionToken issues the HS256 access token for a session id.
func SignSessionToken(secret []byte, sessionID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{SessionID: sessionID})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// SessionIDFromToken verifies an access token and extracts its session id.
func SessionIDFromToken(secret []byte, tokenString string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parsing session token: %w", err)
	}
	if claims.SessionID == "" {
		return "", fmt.Errorf("session token carries no session id")
	}
	return claims.SessionID, nil
}
