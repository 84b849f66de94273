package recordbase

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/recordbase/recordbase_sdk_go/internal/httpx"
	"github.com/recordbase/recordbase_sdk_go/pkg/authstore"
)

// DefaultLang is the Accept-Language sent when none is configured.
const DefaultLang = "en-US"

// RetryPolicy re-exports the transport retry configuration.
type RetryPolicy = httpx.RetryPolicy

// DefaultRetryPolicy is a conservative opt-in retry strategy.
var DefaultRetryPolicy = httpx.DefaultRetryPolicy

// Option configures a Client.
type Option func(*config)

type config struct {
	lang       string
	store      *authstore.Store
	httpOpts   []httpx.Option
	beforeSend BeforeSendFunc
	afterSend  AfterSendFunc
	autoCancel bool
	logger     *slog.Logger
	tracerProv trace.TracerProvider
	meterProv  metric.MeterProvider
}

func defaultConfig() *config {
	return &config{
		lang:       DefaultLang,
		autoCancel: true,
		logger:     slog.Default(),
	}
}

// WithLang sets the Accept-Language sent with every request.
func WithLang(lang string) Option {
	return func(c *config) {
		c.lang = lang
	}
}

// WithAuthStore shares an existing session store with the client.
func WithAuthStore(store *authstore.Store) Option {
	return func(c *config) {
		if store != nil {
			c.store = store
		}
	}
}

// WithHTTPClient overrides the HTTP client used for transmission.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) {
		c.httpOpts = append(c.httpOpts, httpx.WithHTTPClient(h))
	}
}

// WithHeaders adds default headers to every request that does not set them.
func WithHeaders(h http.Header) Option {
	return func(c *config) {
		c.httpOpts = append(c.httpOpts, httpx.WithHeaders(h))
	}
}

// WithRetryPolicy enables retries of transient failures. Requests are sent
// once by default.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *config) {
		c.httpOpts = append(c.httpOpts, httpx.WithRetryPolicy(policy))
	}
}

// WithBeforeSend installs the pre-send hook.
func WithBeforeSend(fn BeforeSendFunc) Option {
	return func(c *config) {
		c.beforeSend = fn
	}
}

// WithAfterSend installs the post-send hook.
func WithAfterSend(fn AfterSendFunc) Option {
	return func(c *config) {
		c.afterSend = fn
	}
}

// WithAutoCancellation toggles the cancellation of superseded requests.
func WithAutoCancellation(enabled bool) Option {
	return func(c *config) {
		c.autoCancel = enabled
	}
}

// WithLogger overrides the logger used by the client and its default store.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerProvider overrides the global otel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProv = tp
	}
}

// WithMeterProvider overrides the global otel meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProv = mp
	}
}
