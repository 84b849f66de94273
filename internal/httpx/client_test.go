package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestJoinURL(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		path  string
		query url.Values
		want  string
	}{
		{name: "both slashes", base: "http://x/", path: "/api/things", want: "http://x/api/things"},
		{name: "no slashes", base: "http://x", path: "api/things", want: "http://x/api/things"},
		{name: "many slashes", base: "http://x///", path: "///api", want: "http://x/api"},
		{name: "base path kept", base: "http://x/root/", path: "/api", want: "http://x/root/api"},
		{name: "empty path", base: "http://x", path: "", want: "http://x/"},
		{name: "query", base: "http://x", path: "/api", query: url.Values{"page": {"2"}, "filter": {"a='b'"}}, want: "http://x/api?filter=a%3D%27b%27&page=2"},
		{name: "query merged", base: "http://x", path: "/api?sort=-created", query: url.Values{"page": {"1"}}, want: "http://x/api?page=1&sort=-created"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := JoinURL(tc.base, tc.path, tc.query)
			if err != nil {
				t.Fatalf("JoinURL returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("JoinURL mismatch: expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDoDefaultHeaders(t *testing.T) {
	var gotAgent, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
	}))
	defer srv.Close()

	c := NewClient(WithHeaders(http.Header{
		"User-Agent":      {"recordbase-test"},
		"Accept-Language": {"de-DE"},
	}))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Accept-Language", "fr-FR")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotAgent != "recordbase-test" {
		t.Fatalf("expected default User-Agent, got %q", gotAgent)
	}
	if gotLang != "fr-FR" {
		t.Fatalf("request header must win over defaults, got %q", gotLang)
	}
}

func TestDoNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := NewClient().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 to be returned as-is, got %d", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestDoRetriesReplayableBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"a":1}` {
			http.Error(w, "unexpected body "+string(body), http.StatusBadRequest)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))
	req, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader([]byte(`{"a":1}`)))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	data, _ := ReadAllAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK || string(data) != "ok" {
		t.Fatalf("unexpected final response: %d %q", resp.StatusCode, data)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDoSkipsRetryForOneShotBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}))
	req, _ := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader("stream")))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt for a non-replayable body, got %d", calls.Load())
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(WithRetryPolicy(RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		RetryIf: func(*http.Response, error) bool {
			cancel()
			return true
		},
	}))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if _, err := c.Do(req); err == nil {
		t.Fatalf("expected context error once cancelled between attempts")
	}
}

func TestJSONMarshalNoHTMLEscape(t *testing.T) {
	data, err := JSONMarshal(map[string]string{"filter": "a<b && c>d"})
	if err != nil {
		t.Fatalf("JSONMarshal: %v", err)
	}
	if string(data) != `{"filter":"a<b && c>d"}` {
		t.Fatalf("unexpected encoding %q", data)
	}
}
