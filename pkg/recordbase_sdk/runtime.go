package recordbase_sdk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/recordbase/recordbase_sdk_go/internal/devseed"
	"github.com/recordbase/recordbase_sdk_go/pkg/authstore"
	"github.com/recordbase/recordbase_sdk_go/pkg/authstore/redisstore"
	"github.com/recordbase/recordbase_sdk_go/pkg/recordbase"
	"github.com/recordbase/recordbase_sdk_go/pkg/recordbase/mock"
)

const (
	envMode       = "RECORDBASE_RUNTIME_MODE"
	envAPIURL     = "RECORDBASE_API_URL"
	envLang       = "RECORDBASE_LANG"
	envAutoCancel = "RECORDBASE_AUTO_CANCEL"
	envMockSeed   = "RECORDBASE_MOCK_SEED"
	envRedisAddr  = "RECORDBASE_AUTH_REDIS_ADDR"
	envRedisKey   = "RECORDBASE_AUTH_REDIS_KEY"

	ModeAuto = "auto"
	ModeHTTP = "http"
	ModeMock = "mock"

	mockBaseURL = "http://recordbase.mock"
)

// Runtime is a client resolved from the environment together with the
// resources backing it.
type Runtime struct {
	Client *recordbase.Client
	// Mode is the resolved mode, ModeHTTP or ModeMock.
	Mode string
	// Mock is the in-process backend in mock mode, nil otherwise.
	Mock *mock.Mock

	redis  *goredis.Client
	detach func()
}

// Close detaches session persistence and releases the Redis connection.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.detach != nil {
		r.detach()
		r.detach = nil
	}
	if r.redis != nil {
		err := r.redis.Close()
		r.redis = nil
		return err
	}
	return nil
}

// NewFromEnv builds a Runtime from the RECORDBASE_* environment variables.
// opts are applied after the environment-derived options.
func NewFromEnv(ctx context.Context, opts ...recordbase.Option) (*Runtime, error) {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(envMode)))
	apiURL := strings.TrimSpace(os.Getenv(envAPIURL))

	clientOpts, err := optionsFromEnv()
	if err != nil {
		return nil, err
	}
	store := authstore.New()
	clientOpts = append(clientOpts, recordbase.WithAuthStore(store))
	clientOpts = append(clientOpts, opts...)

	var rt *Runtime
	switch mode {
	case "", ModeAuto:
		if apiURL != "" {
			rt, err = newHTTPRuntime(apiURL, clientOpts)
		} else {
			rt, err = newMockRuntime(clientOpts)
		}
	case ModeHTTP:
		if apiURL == "" {
			return nil, fmt.Errorf("recordbase_sdk: HTTP mode requires %s", envAPIURL)
		}
		rt, err = newHTTPRuntime(apiURL, clientOpts)
	case ModeMock:
		rt, err = newMockRuntime(clientOpts)
	default:
		return nil, fmt.Errorf("recordbase_sdk: unsupported %s value %q", envMode, mode)
	}
	if err != nil {
		return nil, err
	}

	if err := rt.attachRedis(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func optionsFromEnv() ([]recordbase.Option, error) {
	var opts []recordbase.Option
	if lang := strings.TrimSpace(os.Getenv(envLang)); lang != "" {
		opts = append(opts, recordbase.WithLang(lang))
	}
	if raw := strings.TrimSpace(os.Getenv(envAutoCancel)); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("recordbase_sdk: invalid %s value %q: %w", envAutoCancel, raw, err)
		}
		opts = append(opts, recordbase.WithAutoCancellation(enabled))
	}
	return opts, nil
}

func newHTTPRuntime(apiURL string, opts []recordbase.Option) (*Runtime, error) {
	c, err := recordbase.New(apiURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("recordbase_sdk: init HTTP client: %w", err)
	}
	return &Runtime{Client: c, Mode: ModeHTTP}, nil
}

func newMockRuntime(opts []recordbase.Option) (*Runtime, error) {
	m := mock.New()
	if path := strings.TrimSpace(os.Getenv(envMockSeed)); path != "" {
		seed, err := devseed.Load(path)
		if err != nil {
			return nil, fmt.Errorf("recordbase_sdk: load mock seed: %w", err)
		}
		if err := m.Seed(seed); err != nil {
			return nil, fmt.Errorf("recordbase_sdk: apply mock seed: %w", err)
		}
	}
	opts = append([]recordbase.Option{recordbase.WithHTTPClient(&http.Client{Transport: m.Transport()})}, opts...)
	c, err := recordbase.New(mockBaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("recordbase_sdk: init mock client: %w", err)
	}
	return &Runtime{Client: c, Mode: ModeMock, Mock: m}, nil
}

func (r *Runtime) attachRedis(ctx context.Context) error {
	addr := strings.TrimSpace(os.Getenv(envRedisAddr))
	if addr == "" {
		return nil
	}
	r.redis = goredis.NewClient(&goredis.Options{Addr: addr})
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("recordbase_sdk: connect redis %s: %w", addr, err)
	}

	persister := redisstore.New(r.redis, strings.TrimSpace(os.Getenv(envRedisKey)))
	restored, err := persister.Restore(ctx, r.Client.AuthStore())
	if err != nil {
		return fmt.Errorf("recordbase_sdk: restore auth session: %w", err)
	}
	if restored && !r.Client.AuthStore().IsValid() {
		slog.Warn("recordbase_sdk: restored auth session is expired", "key", persister.Key())
	}
	r.detach = persister.Attach(r.Client.AuthStore())
	return nil
}
