// Package redisstore persists an authstore session envelope in Redis so a
// session survives process restarts and can be shared between workers.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/recordbase/recordbase_sdk_go/pkg/authstore"
	"github.com/recordbase/recordbase_sdk_go/pkg/jwtutil"
)

// DefaultKey is used when New receives an empty key.
const DefaultKey = "recordbase:auth"

// Option configures a Persister.
type Option func(*Persister)

// WithLogger overrides the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Persister) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTimeout bounds every Redis call issued from a change listener.
func WithTimeout(d time.Duration) Option {
	return func(p *Persister) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClock overrides the clock used to derive key TTLs.
func WithClock(fn func() time.Time) Option {
	return func(p *Persister) {
		if fn != nil {
			p.now = fn
		}
	}
}

// Persister mirrors a Store into a single Redis key.
type Persister struct {
	rc      *goredis.Client
	key     string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Persister writing to key.
func New(rc *goredis.Client, key string, opts ...Option) *Persister {
	if key == "" {
		key = DefaultKey
	}
	p := &Persister{
		rc:      rc,
		key:     key,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the Redis key holding the envelope.
func (p *Persister) Key() string {
	return p.key
}

// Restore loads the stored envelope into store. It reports false when no
// envelope is stored.
func (p *Persister) Restore(ctx context.Context, store *authstore.Store) (bool, error) {
	val, err := p.rc.Get(ctx, p.key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redisstore: read %s: %w", p.key, err)
	}
	env, err := authstore.DecodeEnvelope([]byte(val))
	if err != nil {
		return false, fmt.Errorf("redisstore: stored envelope: %w", err)
	}
	store.Save(env.Token, env.Model)
	return true, nil
}

// Save writes env, expiring the key together with the token. An empty token
// or an already expired one deletes the key.
func (p *Persister) Save(ctx context.Context, env authstore.Envelope) error {
	if env.Token == "" {
		return p.Delete(ctx)
	}
	ttl := p.ttl(env.Token)
	if ttl < 0 {
		return p.Delete(ctx)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redisstore: encode envelope: %w", err)
	}
	if err := p.rc.Set(ctx, p.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: write %s: %w", p.key, err)
	}
	return nil
}

// Delete removes the stored envelope. A missing key is not an error.
func (p *Persister) Delete(ctx context.Context) error {
	if err := p.rc.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", p.key, err)
	}
	return nil
}

// Attach registers a listener writing every store change to Redis and returns
// the function detaching it.
func (p *Persister) Attach(store *authstore.Store) func() {
	return store.OnChange(func(token string, principal *authstore.Principal) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.Save(ctx, authstore.Envelope{Token: token, Model: principal}); err != nil {
			p.logger.Error("redisstore: persist auth state", "key", p.key, "error", err)
		}
	}, false)
}

// ttl returns 0 for tokens without exp (no expiry) and a negative value for
// tokens that are already expired.
func (p *Persister) ttl(token string) time.Duration {
	exp, ok := jwtutil.ExpiryUnixSeconds(jwtutil.DecodePayload(token))
	if !ok {
		return 0
	}
	remaining := time.Unix(exp, 0).Sub(p.now())
	if remaining <= 0 {
		return -1
	}
	return remaining
}
