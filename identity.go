/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	playerCookieName = "signull_id"
	tokenIssuer      = "signull"
	tokenLifetime    = 30 * 24 * time.Hour
)

var errBadToken = errors.New("invalid player token")

// identities mints and verifies the signed player cookie. The player id is
// the token subject, so one guesser cannot act as another (or as the
// setter) by editing a cookie.
type identities struct {
	secret []byte
	now    func() time.Time
}

func newIdentities(secret string) (*identities, error) {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate cookie secret: %w", err)
		}
	}
	return &identities{secret: key, now: time.Now}, nil
}

func (ids *identities) issue(playerID string) (string, time.Time, error) {
	now := ids.now()
	exp := now.Add(tokenLifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   playerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(ids.secret)
	return signed, exp, err
}

func (ids *identities) parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return ids.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(ids.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadToken, err)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: subject is not a player id", errBadToken)
	}
	return claims.Subject, nil
}

// resolve returns the player behind r. A fresh identity is minted when the
// request carries no valid token, together with the cookie that holds it.
func (ids *identities) resolve(r *http.Request) (string, *http.Cookie, error) {
	if token := bearerOrCookie(r); token != "" {
		if id, err := ids.parse(token); err == nil {
			return id, nil, nil
		}
	}

	id := uuid.NewString()
	token, exp, err := ids.issue(id)
	if err != nil {
		return "", nil, err
	}
	return id, &http.Cookie{
		Name:     playerCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	}, nil
}

func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(playerCookieName); err == nil {
		return c.Value
	}
	return ""
}
