package mock_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordbase/recordbase_sdk_go/internal/devseed"
	"github.com/recordbase/recordbase_sdk_go/pkg/authstore"
	"github.com/recordbase/recordbase_sdk_go/pkg/jwtutil"
	"github.com/recordbase/recordbase_sdk_go/pkg/recordbase"
	"github.com/recordbase/recordbase_sdk_go/pkg/recordbase/mock"
)

func newClient(t *testing.T, m *mock.Mock) *recordbase.Client {
	t.Helper()
	c, err := recordbase.New("http://mock.local", recordbase.WithHTTPClient(&http.Client{Transport: m.Transport()}))
	require.NoError(t, err)
	return c
}

func TestAdminAuthWithPasswordAndRefresh(t *testing.T) {
	now := time.Now().UTC()
	m := mock.New(mock.WithClock(func() time.Time { return now }), mock.WithTokenTTL(time.Hour))
	_, err := m.AddAdmin("admin@example.com", "secret123")
	require.NoError(t, err)

	c := newClient(t, m)
	ctx := context.Background()

	_, err = c.Admins().AuthWithPassword(ctx, "admin@example.com", "wrong", nil, nil)
	re, ok := recordbase.AsResponseError(err)
	require.True(t, ok, "expected *ResponseError, got %v", err)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "Failed to authenticate.", re.Message)
	assert.Empty(t, c.AuthStore().Token())

	res, err := c.Admins().AuthWithPassword(ctx, "admin@example.com", "secret123", nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, res.Token, c.AuthStore().Token())
	require.NotNil(t, c.AuthStore().Principal())
	assert.Equal(t, authstore.KindAdmin, c.AuthStore().Principal().Kind)
	assert.Equal(t, "admin@example.com", c.AuthStore().Principal().Email())

	exp, ok := jwtutil.ExpiryUnixSeconds(jwtutil.DecodePayload(res.Token))
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour).Unix(), exp)

	now = now.Add(time.Minute)
	refreshed, err := c.Admins().AuthRefresh(ctx, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, res.Token, refreshed.Token)
	assert.Equal(t, refreshed.Token, c.AuthStore().Token())

	now = now.Add(2 * time.Hour)
	_, err = c.Admins().AuthRefresh(ctx, nil, nil)
	re, ok = recordbase.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
}

func TestAdminEndpointsRequireAdminToken(t *testing.T) {
	m := mock.New()
	_, err := m.AddAdmin("admin@example.com", "secret123")
	require.NoError(t, err)
	c := newClient(t, m)
	ctx := context.Background()

	_, err = c.Admins().GetList(ctx, 1, 10, nil)
	re, ok := recordbase.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, re.Status)

	_, err = c.Admins().AuthWithPassword(ctx, "admin@example.com", "secret123", nil, nil)
	require.NoError(t, err)
	list, err := c.Admins().GetList(ctx, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalItems)
}

func TestRecordCRUDOverHTTP(t *testing.T) {
	m := mock.New()
	m.AddCollection("posts", false)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	c, err := recordbase.New(srv.URL)
	require.NoError(t, err)
	posts := c.Collection("posts")
	ctx := context.Background()

	created, err := posts.Create(ctx, map[string]any{"title": "first", "views": 3}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())
	assert.Equal(t, "posts", created.GetString("collectionName"))

	_, err = posts.Create(ctx, map[string]any{"title": "second", "views": 10}, nil)
	require.NoError(t, err)

	got, err := posts.GetOne(ctx, created.ID(), nil)
	require.NoError(t, err)
	assert.Equal(t, "first", got.GetString("title"))

	updated, err := posts.Update(ctx, created.ID(), map[string]any{"title": "first!"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "first!", updated.GetString("title"))

	page, err := posts.GetList(ctx, 1, 1, &recordbase.ListParams{Sort: "-views"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "second", page.Items[0].GetString("title"))

	first, err := posts.GetFirstListItem(ctx, "title='first!'", nil)
	require.NoError(t, err)
	assert.Equal(t, created.ID(), first.ID())

	require.NoError(t, posts.Delete(ctx, created.ID(), nil))
	_, err = posts.GetOne(ctx, created.ID(), nil)
	re, ok := recordbase.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, re.Status)
}

func TestMultipartCreate(t *testing.T) {
	m := mock.New()
	m.AddCollection("docs", false)
	c := newClient(t, m)

	form, err := recordbase.NewMultipart(map[string]string{"title": "report"}, recordbase.FormFile{
		Field:    "attachment",
		Filename: "report.txt",
	})
	require.NoError(t, err)

	rec, err := c.Collection("docs").Create(context.Background(), form, nil)
	require.NoError(t, err)
	assert.Equal(t, "report", rec.GetString("title"))
	assert.Equal(t, []any{"report.txt"}, rec["attachment"])
}

func TestRecordAuthAndPasswordReset(t *testing.T) {
	m := mock.New()
	m.AddCollection("users", true)
	_, err := m.AddRecord("users", map[string]any{"id": "u1", "email": "u1@example.com", "username": "u1", "password": "pass1234"})
	require.NoError(t, err)

	c := newClient(t, m)
	users := c.Collection("users")
	ctx := context.Background()

	res, err := users.AuthWithPassword(ctx, "u1", "pass1234", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", res.Record.ID())
	_, hasPassword := res.Record["password"]
	assert.False(t, hasPassword, "password must never be returned")
	require.NotNil(t, c.AuthStore().Principal())
	assert.Equal(t, authstore.KindRecord, c.AuthStore().Principal().Kind)

	require.NoError(t, users.RequestPasswordReset(ctx, "u1@example.com", nil, nil))
	resetToken := m.LastResetToken("u1@example.com")
	require.NotEmpty(t, resetToken)

	err = users.ConfirmPasswordReset(ctx, resetToken, "newpass99", "mismatch", nil, nil)
	require.Error(t, err)
	require.NoError(t, users.ConfirmPasswordReset(ctx, resetToken, "newpass99", "newpass99", nil, nil))

	_, err = users.AuthWithPassword(ctx, "u1@example.com", "pass1234", nil, nil)
	require.Error(t, err)
	_, err = users.AuthWithPassword(ctx, "u1@example.com", "newpass99", nil, nil)
	require.NoError(t, err)

	require.NoError(t, users.RequestPasswordReset(ctx, "nobody@example.com", nil, nil))
	assert.Empty(t, m.LastResetToken("nobody@example.com"))
}

func TestSeed(t *testing.T) {
	seed, err := devseed.Parse([]byte(`
admins:
  - email: root@example.com
    password: rootpass
collections:
  - name: users
    auth: true
    records:
      - id: u1
        email: u1@example.com
        password: pass1234
  - name: posts
    records:
      - {id: p1, title: one}
      - {id: p2, title: two}
`))
	require.NoError(t, err)

	m := mock.New()
	require.NoError(t, m.Seed(seed))
	c := newClient(t, m)
	ctx := context.Background()

	all, err := c.Collection("posts").GetFullList(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = c.Collection("users").AuthWithPassword(ctx, "u1@example.com", "pass1234", nil, nil)
	require.NoError(t, err)
	_, err = c.Admins().AuthWithPassword(ctx, "root@example.com", "rootpass", nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Seed(seed), mock.ErrConflict)
}

func TestUnknownRoutesAndCollections(t *testing.T) {
	m := mock.New()
	c := newClient(t, m)
	ctx := context.Background()

	_, err := c.Collection("nope").GetList(ctx, 1, 10, nil)
	re, ok := recordbase.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, re.Status)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestAuthCollectionCreateValidation(t *testing.T) {
	m := mock.New()
	m.AddCollection("users", true)
	users := newClient(t, m).Collection("users")
	ctx := context.Background()

	_, err := users.Create(ctx, map[string]any{"email": "u@example.com", "password": "secret123", "passwordConfirm": "other"}, nil)
	re, ok := recordbase.AsResponseError(err)
	require.True(t, ok, "expected *ResponseError, got %v", err)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Contains(t, re.Data["data"], "passwordConfirm")

	_, err = users.Create(ctx, map[string]any{"password": "secret123", "passwordConfirm": "secret123"}, nil)
	re, ok = recordbase.AsResponseError(err)
	require.True(t, ok)
	assert.Contains(t, re.Data["data"], "email")

	created, err := users.Create(ctx, map[string]any{"email": "u@example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, false, created["verified"])
	assert.NotContains(t, created, "password")
}
