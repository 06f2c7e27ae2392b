// Package auth handles the bearer tokens the chat client presents. Issuing
// and verification are used by the dev relay; the client only reads the
// subject to learn who "self" is.
package auth

import (
	"strings"
	"time"

	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

type AccessClaims struct {
	DeviceID string `json:"did,omitempty"`
	jwt.RegisteredClaims
}

func (c AccessClaims) UserID() string {
	return c.Subject
}

// Issue signs an HS256 access token for userID.
func Issue(secret []byte, userID string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, matchmate_errors.ErrInvalidInput
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenString with secret.
func Parse(secret []byte, tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, matchmate_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, matchmate_errors.ErrUnauthorized
		}
		return secret, nil
	})
	if err != nil {
		return AccessClaims{}, matchmate_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return AccessClaims{}, matchmate_errors.ErrUnauthorized
	}

	return *claims, nil
}

// SubjectFromToken reads the user id out of a token without verifying its
// signature. The server remains the authority; the client only needs to know
// which messages are its own.
func SubjectFromToken(tokenString string) (string, error) {
	claims := AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return "", matchmate_errors.ErrUnauthorized
	}
	if claims.Subject == "" {
		return "", matchmate_errors.ErrUnauthorized
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
