package authstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recordbase/recordbase_sdk_go/pkg/jwtutil"
)

// ChangeFunc is invoked after every Save or Clear with the new state.
type ChangeFunc func(token string, principal *Principal)

// Envelope is the serializable form of the store state.
type Envelope struct {
	Token string     `json:"token"`
	Model *Principal `json:"model"`
}

// DecodeEnvelope parses a JSON envelope. Anything other than a JSON object is rejected.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("authstore: envelope is not a JSON object")
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("authstore: decode envelope: %w", err)
	}
	return &env, nil
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the logger used for non-fatal failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for token expiry checks.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

type listener struct {
	fn ChangeFunc
}

type change struct {
	token     string
	principal *Principal
	listeners []*listener
}

// Store keeps the current token and principal in memory and notifies
// listeners about every change.
type Store struct {
	mu        sync.RWMutex
	token     string
	principal *Principal
	listeners []*listener

	// queue holds changes not yet delivered; delivering is set while one
	// goroutine drains it.
	queue      []change
	delivering bool

	logger *slog.Logger
	now    func() time.Time
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the stored token, or "" when the store is empty.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Principal returns the stored identity, which may be nil even when a token is present.
func (s *Store) Principal() *Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

// Model is an alias of Principal.
func (s *Store) Model() *Principal {
	return s.Principal()
}

// Envelope returns a snapshot of the current state.
func (s *Store) Envelope() Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Envelope{Token: s.token, Model: s.principal.Clone()}
}

// IsValid reports whether the store holds a token that has not expired yet.
// The signature is not verified.
func (s *Store) IsValid() bool {
	token := s.Token()
	if token == "" {
		return false
	}
	return !jwtutil.IsExpiredAt(token, 0, s.now())
}

// Save replaces the stored token and principal.
//
// Listeners observe changes in the order they were applied. When Save is
// called concurrently, or from inside a listener, the change is queued and
// delivered by the goroutine already notifying, so Save may return before
// its own listeners ran.
func (s *Store) Save(token string, principal *Principal) {
	s.mu.Lock()
	s.token = token
	s.principal = principal
	s.queue = append(s.queue, change{token: token, principal: principal, listeners: s.snapshotListeners()})
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	s.deliver()
}

func (s *Store) deliver() {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.queue = nil
			s.delivering = false
			s.mu.Unlock()
			panic(r)
		}
	}()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.queue = nil
			s.delivering = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue[0] = change{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		notify(next.listeners, next.token, next.principal)
	}
}

// Clear empties the store.
func (s *Store) Clear() {
	s.Save("", nil)
}

// OnChange registers fn and returns a function removing that registration.
// With fireImmediately fn is called once with the current state before
// OnChange returns.
func (s *Store) OnChange(fn ChangeFunc, fireImmediately bool) func() {
	if fn == nil {
		return func() {}
	}
	l := &listener{fn: fn}

	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	token, principal := s.token, s.principal
	s.mu.Unlock()

	if fireImmediately {
		fn(token, principal)
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.removeListener(l) })
	}
}

func (s *Store) removeListener(l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// snapshotListeners must be called with s.mu held.
func (s *Store) snapshotListeners() []*listener {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]*listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

// Listeners run outside the lock so they may call back into the store.
func notify(listeners []*listener, token string, principal *Principal) {
	for _, l := range listeners {
		l.fn(token, principal)
	}
}
