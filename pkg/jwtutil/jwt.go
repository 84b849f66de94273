// Package jwtutil inspects bearer tokens on the client side. Nothing in this
// package verifies signatures: the server stays authoritative and the helpers
// only drive local decisions such as "is the stored session still usable".
package jwtutil

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DecodePayload returns the claims stored in the middle segment of token.
// Malformed tokens yield an empty mapping; the failure is only logged.
func DecodePayload(token string) jwt.MapClaims {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		slog.Debug("jwtutil: token has no payload segment")
		return jwt.MapClaims{}
	}

	raw, err := DecodeSegment(parts[1])
	if err != nil {
		slog.Debug("jwtutil: decode payload", "error", err)
		return jwt.MapClaims{}
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		slog.Debug("jwtutil: parse payload", "error", err)
		return jwt.MapClaims{}
	}
	if claims == nil {
		return jwt.MapClaims{}
	}
	return claims
}

// ExpiryUnixSeconds reads the exp claim. The boolean is false when the claim
// is absent or not a number.
func ExpiryUnixSeconds(payload jwt.MapClaims) (int64, bool) {
	raw, ok := payload["exp"]
	if !ok {
		return 0, false
	}
	// Some issuers encode exp as a numeric string.
	if s, isString := raw.(string); isString {
		exp, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, false
		}
		return exp, true
	}
	exp, err := payload.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, false
	}
	return exp.Unix(), true
}

// IsExpired reports whether token should be treated as expired at the current
// time. thresholdSeconds is subtracted from exp so callers can refresh early.
func IsExpired(token string, thresholdSeconds int64) bool {
	return IsExpiredAt(token, thresholdSeconds, time.Now())
}

// IsExpiredAt is IsExpired evaluated against now.
//
// Tokens whose payload cannot be decoded are expired. Tokens without an exp
// claim never expire.
func IsExpiredAt(token string, thresholdSeconds int64, now time.Time) bool {
	payload := DecodePayload(token)
	if len(payload) == 0 {
		return true
	}
	if _, present := payload["exp"]; !present {
		return false
	}
	exp, ok := ExpiryUnixSeconds(payload)
	if !ok {
		return true
	}
	return exp-thresholdSeconds <= now.Unix()
}
