package authstore_test

import (
	"io"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordbase/recordbase_sdk_go/pkg/authstore"
)

type call struct {
	token     string
	principal *authstore.Principal
}

func quietStore(opts ...authstore.Option) *authstore.Store {
	opts = append([]authstore.Option{authstore.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return authstore.New(opts...)
}

func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("store-secret"))
	require.NoError(t, err)
	return token
}

func TestSaveClearNotifiesListeners(t *testing.T) {
	store := quietStore()
	var calls []call
	store.OnChange(func(token string, p *authstore.Principal) {
		calls = append(calls, call{token, p})
	}, false)

	admin := authstore.NewAdmin(map[string]any{"id": "a1", "email": "a@example.com"})
	store.Save("tok", admin)
	store.Clear()

	assert.Equal(t, "", store.Token())
	assert.Nil(t, store.Principal())
	require.Len(t, calls, 2)
	assert.Equal(t, call{"tok", admin}, calls[0])
	assert.Equal(t, call{"", nil}, calls[1])
}

func TestSaveAllowsNilPrincipal(t *testing.T) {
	store := quietStore()
	store.Save("tok", nil)
	assert.Equal(t, "tok", store.Token())
	assert.Nil(t, store.Model())
}

func TestOnChangeFireImmediately(t *testing.T) {
	store := quietStore()
	store.Save("tok", nil)

	var got []string
	store.OnChange(func(token string, _ *authstore.Principal) {
		got = append(got, token)
	}, true)

	assert.Equal(t, []string{"tok"}, got)
}

func TestOnChangeRegistrationOrderAndDuplicates(t *testing.T) {
	store := quietStore()
	var order []string
	first := func(string, *authstore.Principal) { order = append(order, "first") }
	second := func(string, *authstore.Principal) { order = append(order, "second") }

	store.OnChange(first, false)
	unsubscribe := store.OnChange(second, false)
	store.OnChange(first, false)

	store.Save("x", nil)
	assert.Equal(t, []string{"first", "second", "first"}, order)

	order = nil
	unsubscribe()
	unsubscribe()
	store.Save("y", nil)
	assert.Equal(t, []string{"first", "first"}, order)
}

func TestUnsubscribeFromInsideListener(t *testing.T) {
	store := quietStore()
	counts := map[string]int{}

	var removeSecond func()
	store.OnChange(func(string, *authstore.Principal) {
		counts["first"]++
		removeSecond()
	}, false)
	removeSecond = store.OnChange(func(string, *authstore.Principal) {
		counts["second"]++
	}, false)
	store.OnChange(func(string, *authstore.Principal) {
		counts["third"]++
	}, false)

	store.Save("a", nil)
	assert.Equal(t, map[string]int{"first": 1, "second": 1, "third": 1}, counts)

	store.Save("b", nil)
	assert.Equal(t, map[string]int{"first": 2, "second": 1, "third": 2}, counts)
}

func TestIsValid(t *testing.T) {
	now := time.Unix(2_000_000, 0)
	store := quietStore(authstore.WithClock(func() time.Time { return now }))

	assert.False(t, store.IsValid(), "empty store")

	store.Save(mintToken(t, jwt.MapClaims{"id": "u", "exp": now.Unix() + 60}), nil)
	assert.True(t, store.IsValid())

	store.Save(mintToken(t, jwt.MapClaims{"id": "u", "exp": now.Unix() - 1}), nil)
	assert.False(t, store.IsValid())

	store.Save(mintToken(t, jwt.MapClaims{"id": "u"}), nil)
	assert.True(t, store.IsValid(), "no exp claim")

	store.Save("garbage", nil)
	assert.False(t, store.IsValid())
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := authstore.DecodeEnvelope([]byte(`{"token":"t","model":{"id":"r1","collectionId":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "t", env.Token)
	require.NotNil(t, env.Model)
	assert.Equal(t, authstore.KindRecord, env.Model.Kind)
	assert.Equal(t, "r1", env.Model.ID())

	env, err = authstore.DecodeEnvelope([]byte(`{"token":"t","model":null}`))
	require.NoError(t, err)
	assert.Nil(t, env.Model)

	_, err = authstore.DecodeEnvelope([]byte(`null`))
	assert.Error(t, err)
	_, err = authstore.DecodeEnvelope([]byte(`{"token":`))
	assert.Error(t, err)
}

func TestPrincipalAccessors(t *testing.T) {
	p := authstore.InferPrincipal(map[string]any{"id": 42, "email": "x@example.com"})
	assert.Equal(t, authstore.KindUnknown, p.Kind)
	assert.Equal(t, "42", p.ID())
	assert.Equal(t, "x@example.com", p.Email())

	clone := p.Clone()
	clone.Fields["id"] = "changed"
	assert.Equal(t, "42", p.ID())

	var nilPrincipal *authstore.Principal
	assert.Equal(t, "", nilPrincipal.ID())
	assert.Nil(t, authstore.InferPrincipal(nil))
	assert.Equal(t, "record", authstore.KindRecord.String())
}

func TestConcurrentSavesNotifyInStoredOrder(t *testing.T) {
	store := quietStore()
	var (
		mu   sync.Mutex
		seen []string
	)
	store.OnChange(func(token string, _ *authstore.Principal) {
		mu.Lock()
		seen = append(seen, token)
		mu.Unlock()
	}, false)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Save(fmt.Sprintf("tok-%d", i), nil)
		}(i)
	}
	// The goroutine draining the queue returns only once it is empty.
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, n)
	assert.Equal(t, store.Token(), seen[n-1])
}

func TestSaveFromListenerIsDeliveredAfterCurrentChange(t *testing.T) {
	store := quietStore()
	var order []string
	store.OnChange(func(token string, _ *authstore.Principal) {
		order = append(order, "a:"+token)
		if token == "first" {
			store.Save("second", nil)
		}
	}, false)
	store.OnChange(func(token string, _ *authstore.Principal) {
		order = append(order, "b:"+token)
	}, false)

	store.Save("first", nil)
	assert.Equal(t, []string{"a:first", "b:first", "a:second", "b:second"}, order)
	assert.Equal(t, "second", store.Token())
}
