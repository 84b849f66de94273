package mock

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenAdmin         = "admin"
	tokenAuthRecord    = "authRecord"
	tokenPasswordReset = "passwordReset"

	resetTokenTTL = 30 * time.Minute
)

var errInvalidToken = errors.New("mock: invalid token")

func (m *Mock) issueToken(kind string, claims jwt.MapClaims, ttl time.Duration) (string, error) {
	now := m.now()
	claims["type"] = kind
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

func (m *Mock) parseToken(raw, kind string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if t, _ := claims["type"].(string); t != kind {
		return nil, errInvalidToken
	}
	return claims, nil
}

// bearer returns the claims of a valid request token of kind, or nil.
func (m *Mock) bearer(r *http.Request, kind string) jwt.MapClaims {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer"))
	if raw == "" {
		return nil
	}
	claims, err := m.parseToken(raw, kind)
	if err != nil {
		return nil
	}
	return claims
}

func claimString(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}
