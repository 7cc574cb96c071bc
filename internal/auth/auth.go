// Package auth resolves a request's bearer token to an account identity. The
// ledger trusts this identity; issuing credentials to end users happens in an
// external system, this package only verifies (and can mint tokens for
// operators and tests).
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrUnauthenticated = errors.New("missing or invalid token")

type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// TokenAuthenticator verifies HS256 bearer tokens carrying an account ID.
type TokenAuthenticator struct {
	secret []byte
}

func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

// Mint signs a token for the given account, valid for ttl.
func (a *TokenAuthenticator) Mint(accountID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Authenticate extracts and verifies the Authorization header, returning the
// account ID the token was minted for.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrUnauthenticated
	}
	tokenStr := strings.TrimPrefix(header, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.AccountID == "" {
		return "", ErrUnauthenticated
	}
	return claims.AccountID, nil
}
