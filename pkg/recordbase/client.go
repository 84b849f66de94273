package recordbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/recordbase/recordbase_sdk_go/internal/httpx"
	"github.com/recordbase/recordbase_sdk_go/internal/pbapi"
	"github.com/recordbase/recordbase_sdk_go/internal/telemetry"
	"github.com/recordbase/recordbase_sdk_go/pkg/authstore"
)

// Client dispatches requests to a record-store backend.
type Client struct {
	baseURL   string
	transport *httpx.Client
	store     *authstore.Store
	logger    *slog.Logger
	telemetry *telemetry.Instruments
	pending   *registry

	autoCancel atomic.Bool

	mu         sync.RWMutex
	lang       string
	beforeSend BeforeSendFunc
	afterSend  AfterSendFunc
}

// New constructs a Client bound to baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("recordbase: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("recordbase: invalid base URL %q: %w", baseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("recordbase: base URL %q must be absolute", baseURL)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.store == nil {
		cfg.store = authstore.New(authstore.WithLogger(cfg.logger))
	}
	inst, err := telemetry.New(cfg.tracerProv, cfg.meterProv)
	if err != nil {
		return nil, fmt.Errorf("recordbase: telemetry: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		transport:  httpx.NewClient(cfg.httpOpts...),
		store:      cfg.store,
		logger:     cfg.logger,
		telemetry:  inst,
		pending:    newRegistry(cfg.logger),
		lang:       cfg.lang,
		beforeSend: cfg.beforeSend,
		afterSend:  cfg.afterSend,
	}
	c.autoCancel.Store(cfg.autoCancel)
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthStore returns the session store read by the dispatcher.
func (c *Client) AuthStore() *authstore.Store {
	return c.store
}

// Lang returns the Accept-Language sent with requests.
func (c *Client) Lang() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lang
}

// SetLang changes the Accept-Language sent with subsequent requests.
func (c *Client) SetLang(lang string) {
	c.mu.Lock()
	c.lang = lang
	c.mu.Unlock()
}

// SetBeforeSend replaces the pre-send hook; nil removes it.
func (c *Client) SetBeforeSend(fn BeforeSendFunc) {
	c.mu.Lock()
	c.beforeSend = fn
	c.mu.Unlock()
}

// SetAfterSend replaces the post-send hook; nil removes it.
func (c *Client) SetAfterSend(fn AfterSendFunc) {
	c.mu.Lock()
	c.afterSend = fn
	c.mu.Unlock()
}

// AutoCancellation globally enables or disables the cancellation of
// superseded requests.
func (c *Client) AutoCancellation(enabled bool) {
	c.autoCancel.Store(enabled)
}

// CancelRequest cancels the in-flight request registered under key. It
// reports whether such a request existed.
func (c *Client) CancelRequest(key string) bool {
	return c.pending.cancel(key)
}

// CancelAllRequests cancels every in-flight cancellable request.
func (c *Client) CancelAllRequests() {
	if n := c.pending.cancelAll(); n > 0 {
		c.logger.Debug("recordbase: cancelled pending requests", "count", n)
	}
}

// BuildURL joins path onto the base URL.
func (c *Client) BuildURL(path string) string {
	u, err := httpx.JoinURL(c.baseURL, path, nil)
	if err != nil {
		return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return u
}

// Send dispatches req to path and decodes the JSON response into T. Empty or
// undecodable bodies yield the zero T.
func Send[T any](ctx context.Context, c *Client, path string, req *Request) (T, error) {
	var zero T
	if c == nil {
		return zero, errors.New("recordbase: client is nil")
	}
	data, reqURL, err := c.send(ctx, path, req, func(raw []byte) (any, bool) {
		var out T
		if !pbapi.DecodeInto(raw, &out) {
			return nil, false
		}
		return out, true
	})
	if err != nil {
		return zero, err
	}
	return convert[T](data, reqURL)
}

// SendJSON dispatches req and returns the generic JSON value of the response.
// Responses without a decodable body yield an empty object.
func (c *Client) SendJSON(ctx context.Context, path string, req *Request) (any, error) {
	data, err := Send[any](ctx, c, path, req)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return map[string]any{}, nil
	}
	return data, nil
}

// convert narrows the (possibly hook-replaced) value to T, round-tripping
// through JSON when the types differ.
func convert[T any](data any, reqURL string) (T, error) {
	var zero T
	if data == nil {
		return zero, nil
	}
	if v, ok := data.(T); ok {
		return v, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return zero, normalizeError(fmt.Errorf("recordbase: re-encode response: %w", err), reqURL, nil)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, normalizeError(fmt.Errorf("recordbase: decode response: %w", err), reqURL, nil)
	}
	return out, nil
}

type decodeFunc func(raw []byte) (any, bool)

func (c *Client) send(ctx context.Context, path string, req *Request, decode decodeFunc) (any, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		req = &Request{}
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	header := httpx.CloneHeader(req.Header)
	body, err := encodeBody(req.Body, header)
	if err != nil {
		return nil, "", normalizeError(err, c.BuildURL(path), nil)
	}

	c.mu.RLock()
	lang, before, after := c.lang, c.beforeSend, c.afterSend
	c.mu.RUnlock()

	if header.Get("Accept-Language") == "" && lang != "" {
		header.Set("Accept-Language", lang)
	}
	if header.Get("Authorization") == "" {
		if token := c.store.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	query, queryAutoCancel, queryCancelKey := splitQuery(req.Query)
	autoCancel := true
	if queryAutoCancel != nil {
		autoCancel = *queryAutoCancel
	}
	if req.AutoCancel != nil {
		autoCancel = *req.AutoCancel
	}
	cancelKey := req.CancelKey
	if cancelKey == "" {
		cancelKey = queryCancelKey
	}
	if cancelKey == "" {
		cancelKey = method + " " + path
	}

	reqCtx := ctx
	if c.autoCancel.Load() && autoCancel {
		var entry *pendingEntry
		reqCtx, entry = c.pending.register(ctx, cancelKey)
		defer c.pending.release(entry)
	} else {
		cancelKey = ""
	}

	fullURL, err := httpx.JoinURL(c.baseURL, path, query)
	if err != nil {
		return nil, c.BuildURL(path), normalizeError(err, c.BuildURL(path), nil)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, fullURL, body)
	if err != nil {
		return nil, fullURL, normalizeError(fmt.Errorf("recordbase: build request: %w", err), fullURL, nil)
	}
	httpReq.Header = header

	if before != nil {
		if replaced := before(httpReq); replaced != nil {
			if replaced.URL == nil || replaced.URL.String() == "" {
				replaced.URL = httpReq.URL
			}
			if replaced.Header == nil {
				replaced.Header = make(http.Header)
			}
			httpReq = replaced.WithContext(reqCtx)
		}
	}

	finalURL := httpReq.URL.String()
	spanCtx, span := c.telemetry.StartRequest(reqCtx, httpReq.Method, finalURL, cancelKey)
	httpReq = httpReq.WithContext(spanCtx)

	start := time.Now()
	data, status, err := c.roundTrip(httpReq, finalURL, decode, after)
	c.telemetry.EndRequest(spanCtx, span, telemetry.RequestData{
		Method:   httpReq.Method,
		Status:   status,
		Outcome:  outcomeOf(err),
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, finalURL, err
	}
	return data, finalURL, nil
}

func (c *Client) roundTrip(req *http.Request, reqURL string, decode decodeFunc, after AfterSendFunc) (any, int, error) {
	resp, err := c.transport.Do(req)
	if err != nil {
		if cause := cancellationCause(req.Context()); cause != nil {
			return nil, 0, newCancelledError(reqURL, cause)
		}
		return nil, 0, normalizeError(err, reqURL, nil)
	}

	raw, readErr := httpx.ReadAllAndClose(resp.Body)
	if cause := cancellationCause(req.Context()); cause != nil {
		return nil, 0, newCancelledError(reqURL, cause)
	}
	if readErr != nil {
		return nil, resp.StatusCode, normalizeError(fmt.Errorf("recordbase: read response: %w", readErr), reqURL, resp)
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	data, ok := decode(raw)
	if !ok {
		data = nil
	}

	if after != nil {
		replaced, err := after(resp, data)
		if err != nil {
			return nil, resp.StatusCode, normalizeError(err, reqURL, resp)
		}
		data = replaced
	}

	if resp.StatusCode >= http.StatusBadRequest {
		payload, isMap := data.(map[string]any)
		if after == nil || !isMap {
			payload = pbapi.ErrorPayload(raw)
		}
		return nil, resp.StatusCode, newServerError(reqURL, resp, payload)
	}
	return data, resp.StatusCode, nil
}

func outcomeOf(err error) telemetry.Outcome {
	re, ok := AsResponseError(err)
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case ok && re.IsAbort:
		return telemetry.OutcomeCancelled
	case ok && re.Status >= http.StatusBadRequest:
		return telemetry.OutcomeServerError
	default:
		return telemetry.OutcomeTransportError
	}
}
