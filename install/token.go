// Package install provides the handler behind "POST /install", which creates the service schema when called with a valid system-user token.
package install

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SystemSubject = "system"
	tokenIssuer   = "rest"
)

var (
	ErrInvalidToken = errors.New("invalid system token")
	ErrNoSecret     = errors.New("no signing secret")
)

// IssueSystemToken creates an HS256 token for the system user.
// A ttl <= 0 creates a token that doesn't expire.
func IssueSystemToken(secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  SystemSubject,
		Issuer:   tokenIssuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifySystemToken checks that the token is signed with secret and names the system user as its subject.
func VerifySystemToken(secret []byte, token string) error {
	if len(secret) == 0 {
		return ErrNoSecret
	}
	claims := new(jwt.RegisteredClaims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method '%v'", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject != SystemSubject {
		return fmt.Errorf("%w: subject '%s' is not the system user", ErrInvalidToken, claims.Subject)
	}
	return nil
}
