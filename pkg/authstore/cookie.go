package authstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/recordbase/recordbase_sdk_go/pkg/jwtutil"
)

const (
	// DefaultCookieKey names the auth cookie when callers pass an empty key.
	DefaultCookieKey = "pb_auth"
	// MaxCookieSize is the encoded cookie value length above which the principal is shrunk.
	MaxCookieSize = 4096
)

// ErrCookieShrink signals that the shrink pass could not decode the envelope it
// had just serialized.
var ErrCookieShrink = errors.New("authstore: cookie shrink failed to decode its own envelope")

// CookieOptions overrides the default cookie attributes. Zero values keep the defaults.
type CookieOptions struct {
	Secure   *bool
	HttpOnly *bool
	Path     string
	Domain   string
	SameSite http.SameSite
	MaxAge   int
	Expires  time.Time
}

func (o *CookieOptions) apply(c *http.Cookie) {
	if o == nil {
		return
	}
	if o.Secure != nil {
		c.Secure = *o.Secure
	}
	if o.HttpOnly != nil {
		c.HttpOnly = *o.HttpOnly
	}
	if o.Path != "" {
		c.Path = o.Path
	}
	if o.Domain != "" {
		c.Domain = o.Domain
	}
	if o.SameSite != 0 {
		c.SameSite = o.SameSite
	}
	if o.MaxAge != 0 {
		c.MaxAge = o.MaxAge
	}
	if !o.Expires.IsZero() {
		c.Expires = o.Expires
	}
}

// ExportToCookie renders the store state as a cookie named key.
//
// The cookie expires together with the token exp claim (Unix epoch when the
// token has none). The cookie value is the percent-encoded JSON envelope.
// When that value is longer than MaxCookieSize the principal is reduced to
// its identifying fields in a single pass; the result is emitted even if it
// is still oversized. A principal that cannot be encoded is logged and
// exported as a null model.
func (s *Store) ExportToCookie(opts *CookieOptions, key string) (*http.Cookie, error) {
	if key == "" {
		key = DefaultCookieKey
	}

	s.mu.RLock()
	token, principal := s.token, s.principal
	s.mu.RUnlock()

	cookie := &http.Cookie{
		Name:     key,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	exp, ok := jwtutil.ExpiryUnixSeconds(jwtutil.DecodePayload(token))
	if !ok {
		exp = 0
	}
	cookie.Expires = time.Unix(exp, 0).UTC()
	opts.apply(cookie)

	value, err := json.Marshal(Envelope{Token: token, Model: principal})
	if err != nil {
		s.logger.Warn("authstore: encode cookie principal, exporting token only", "error", err)
		principal = nil
		if value, err = json.Marshal(Envelope{Token: token}); err != nil {
			return nil, fmt.Errorf("authstore: encode cookie envelope: %w", err)
		}
	}

	encoded := url.QueryEscape(string(value))
	if len(encoded) > MaxCookieSize && principal != nil {
		value, err = s.shrinkEnvelope(value, principal.Kind)
		if err != nil {
			return nil, err
		}
		encoded = url.QueryEscape(string(value))
	}

	cookie.Value = encoded
	return cookie, nil
}

func (s *Store) shrinkEnvelope(raw []byte, kind Kind) ([]byte, error) {
	var decoded struct {
		Token string         `json:"token"`
		Model map[string]any `json:"model"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Model == nil {
		return nil, fmt.Errorf("%w: %v", ErrCookieShrink, err)
	}

	for field := range decoded.Model {
		if !keepOnShrink(field, kind) {
			delete(decoded.Model, field)
		}
	}

	small, err := json.Marshal(decoded)
	if err != nil {
		s.logger.Warn("authstore: re-encode shrunk cookie, emitting oversized value", "error", err)
		return raw, nil
	}
	return small, nil
}

func keepOnShrink(field string, kind Kind) bool {
	if strings.EqualFold(field, "id") || strings.EqualFold(field, "email") {
		return true
	}
	if kind != KindRecord {
		return false
	}
	return strings.EqualFold(field, "username") ||
		strings.EqualFold(field, "verified") ||
		strings.EqualFold(field, "collectionId")
}

// LoadFromCookieString restores the store from raw, which may be the JSON
// envelope itself, its percent-encoded form, or a Cookie header containing
// key. Invalid input is logged and leaves the store untouched.
//
// The token is neither verified nor checked for expiry; refresh it against
// the server before relying on it for access control.
func (s *Store) LoadFromCookieString(raw, key string) {
	if key == "" {
		key = DefaultCookieKey
	}
	env, err := DecodeEnvelope([]byte(cookiePayload(raw, key)))
	if err != nil {
		s.logger.Warn("authstore: ignoring auth cookie", "key", key, "error", err)
		return
	}
	s.Save(env.Token, env.Model)
}

func cookiePayload(raw, key string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	if unescaped, err := url.QueryUnescape(trimmed); err == nil && strings.HasPrefix(strings.TrimSpace(unescaped), "{") {
		return unescaped
	}

	for _, part := range strings.Split(trimmed, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(name) != key {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if unescaped, err := url.QueryUnescape(value); err == nil {
			return unescaped
		}
		return value
	}
	return ""
}
