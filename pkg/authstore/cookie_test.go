package authstore_test

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordbase/recordbase_sdk_go/pkg/authstore"
)

func cookieJSON(t *testing.T, c *http.Cookie) string {
	t.Helper()
	raw, err := url.QueryUnescape(c.Value)
	require.NoError(t, err)
	return raw
}

func TestExportToCookieDefaults(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	store := quietStore()
	store.Save(mintToken(t, jwt.MapClaims{"id": "a1", "exp": exp}), authstore.NewAdmin(map[string]any{"id": "a1"}))

	cookie, err := store.ExportToCookie(nil, "")
	require.NoError(t, err)

	assert.Equal(t, authstore.DefaultCookieKey, cookie.Name)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, exp, cookie.Expires.Unix())
	assert.Contains(t, cookieJSON(t, cookie), `"model":{"id":"a1"}`)
}

func TestExportToCookieOverridesAndEpoch(t *testing.T) {
	store := quietStore()
	store.Save("not-a-jwt", nil)

	insecure := false
	cookie, err := store.ExportToCookie(&authstore.CookieOptions{
		Secure: &insecure,
		Path:   "/app",
		Domain: "example.com",
	}, "session")
	require.NoError(t, err)

	assert.Equal(t, "session", cookie.Name)
	assert.False(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/app", cookie.Path)
	assert.Equal(t, "example.com", cookie.Domain)
	assert.Equal(t, int64(0), cookie.Expires.Unix())
	assert.Equal(t, `{"token":"not-a-jwt","model":null}`, cookieJSON(t, cookie))
}

func TestCookieRoundTrip(t *testing.T) {
	token := mintToken(t, jwt.MapClaims{"id": "r1", "exp": time.Now().Add(time.Hour).Unix()})
	source := quietStore()
	source.Save(token, authstore.NewRecord(map[string]any{
		"id":           "r1",
		"email":        "r1@example.com",
		"collectionId": "users",
		"name":         "Record One",
	}))

	cookie, err := source.ExportToCookie(nil, "")
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"encoded value": cookie.Value,
		"decoded value": cookieJSON(t, cookie),
		"cookie header": "theme=dark; " + cookie.Name + "=" + cookie.Value + "; lang=en",
		"set-cookie":    cookie.String(),
	} {
		t.Run(name, func(t *testing.T) {
			target := quietStore()
			target.LoadFromCookieString(raw, "")

			assert.Equal(t, token, target.Token())
			require.NotNil(t, target.Principal())
			assert.Equal(t, authstore.KindRecord, target.Principal().Kind)
			if diff := cmp.Diff(source.Principal().Fields, target.Principal().Fields); diff != "" {
				t.Fatalf("principal mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFromCookieStringInvalidLeavesStore(t *testing.T) {
	store := quietStore()
	admin := authstore.NewAdmin(map[string]any{"id": "a1"})
	store.Save("tok", admin)

	calls := 0
	store.OnChange(func(string, *authstore.Principal) { calls++ }, false)

	for _, raw := range []string{"", "{broken", "pb_auth=%7Bbroken", "other=1", "null"} {
		store.LoadFromCookieString(raw, "")
	}

	assert.Equal(t, 0, calls)
	assert.Equal(t, "tok", store.Token())
	assert.Same(t, admin, store.Principal())
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func bigFields(kind string) map[string]any {
	fields := map[string]any{
		"id":           "p1",
		"email":        "p1@example.com",
		"username":     "p1user",
		"verified":     true,
		"collectionId": "users",
		"kind":         kind,
	}
	for i := 0; i < 50; i++ {
		fields[fmt.Sprintf("extra%02d", i)] = strings.Repeat("x", 100)
	}
	return fields
}

func TestExportToCookieShrinksRecord(t *testing.T) {
	store := quietStore()
	store.Save("tok", authstore.NewRecord(bigFields("record")))

	full := `{"token":"tok","model":` + mustJSON(t, bigFields("record")) + `}`
	require.Greater(t, len(full), authstore.MaxCookieSize)

	cookie, err := store.ExportToCookie(nil, "")
	require.NoError(t, err)

	got := cookieJSON(t, cookie)
	assert.Less(t, len(got), len(full))

	env, err := authstore.DecodeEnvelope([]byte(got))
	require.NoError(t, err)
	assert.Equal(t, "tok", env.Token)
	want := map[string]any{
		"id":           "p1",
		"email":        "p1@example.com",
		"username":     "p1user",
		"verified":     true,
		"collectionId": "users",
	}
	if diff := cmp.Diff(want, env.Model.Fields); diff != "" {
		t.Fatalf("shrunk model mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, store.Principal().Fields, 56, "shrinking must not touch the stored principal")
}

func TestExportToCookieShrinksAdmin(t *testing.T) {
	store := quietStore()
	store.Save("tok", authstore.NewAdmin(bigFields("admin")))

	cookie, err := store.ExportToCookie(nil, "")
	require.NoError(t, err)

	env, err := authstore.DecodeEnvelope([]byte(cookieJSON(t, cookie)))
	require.NoError(t, err)
	want := map[string]any{"id": "p1", "email": "p1@example.com"}
	if diff := cmp.Diff(want, env.Model.Fields); diff != "" {
		t.Fatalf("shrunk model mismatch (-want +got):\n%s", diff)
	}
}

func TestExportToCookieOversizedTokenWithoutPrincipal(t *testing.T) {
	store := quietStore()
	token := strings.Repeat("t", authstore.MaxCookieSize)
	store.Save(token, nil)

	cookie, err := store.ExportToCookie(nil, "")
	require.NoError(t, err)
	assert.Greater(t, len(cookieJSON(t, cookie)), authstore.MaxCookieSize)
}

func TestExportToCookieShrinksWhenOnlyEncodedValueIsOversized(t *testing.T) {
	fields := map[string]any{"id": "p1", "email": "p1@example.com", "collectionId": "users"}
	for i := 0; i < 30; i++ {
		fields[fmt.Sprintf("q%02d", i)] = strings.Repeat(`"`, 40)
	}
	store := quietStore()
	store.Save("tok", authstore.NewRecord(fields))

	raw := `{"token":"tok","model":` + mustJSON(t, fields) + `}`
	require.Less(t, len(raw), authstore.MaxCookieSize)
	require.Greater(t, len(url.QueryEscape(raw)), authstore.MaxCookieSize)

	cookie, err := store.ExportToCookie(nil, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(cookie.Value), authstore.MaxCookieSize)

	env, err := authstore.DecodeEnvelope([]byte(cookieJSON(t, cookie)))
	require.NoError(t, err)
	want := map[string]any{"id": "p1", "email": "p1@example.com", "collectionId": "users"}
	if diff := cmp.Diff(want, env.Model.Fields); diff != "" {
		t.Fatalf("shrunk model mismatch (-want +got):\n%s", diff)
	}
}

func TestExportToCookieUnencodablePrincipal(t *testing.T) {
	store := quietStore()
	store.Save("tok", authstore.NewRecord(map[string]any{"id": "p1", "score": math.NaN()}))

	cookie, err := store.ExportToCookie(nil, "")
	require.NoError(t, err)
	assert.Equal(t, `{"token":"tok","model":null}`, cookieJSON(t, cookie))
	assert.Equal(t, "p1", store.Principal().ID(), "the stored principal is left alone")
}
