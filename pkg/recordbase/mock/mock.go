// Package mock implements an in-memory record-store backend speaking the same
// HTTP API as the real server. It is meant for tests, examples and the local
// sandbox: serve Handler() with net/http or plug Transport() into a client to
// skip sockets entirely.
package mock

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/recordbase/recordbase_sdk_go/internal/devseed"
)

const timeLayout = "2006-01-02 15:04:05.000Z"

// ErrConflict is returned when seeding a record whose id already exists.
var ErrConflict = errors.New("mock: record already exists")

type entry struct {
	fields map[string]any
	hash   []byte
}

type collection struct {
	id      string
	name    string
	auth    bool
	records map[string]*entry
	order   []string
}

// Mock is an in-memory backend. The zero value is not usable; call New.
type Mock struct {
	mu          sync.RWMutex
	admins      map[string]*entry
	adminOrder  []string
	collections map[string]*collection
	resets      map[string]string

	signingKey []byte
	tokenTTL   time.Duration
	now        func() time.Time
	mux        *http.ServeMux
}

// Option configures the mock instance.
type Option func(*Mock)

// WithClock overrides the clock used for timestamps and token expiry.
func WithClock(fn func() time.Time) Option {
	return func(m *Mock) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithSigningKey sets the HS256 key used for issued tokens.
func WithSigningKey(key []byte) Option {
	return func(m *Mock) {
		if len(key) > 0 {
			m.signingKey = append([]byte(nil), key...)
		}
	}
}

// WithTokenTTL sets the lifetime of issued auth tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(m *Mock) {
		if d > 0 {
			m.tokenTTL = d
		}
	}
}

// New creates an empty backend.
func New(opts ...Option) *Mock {
	m := &Mock{
		admins:      make(map[string]*entry),
		collections: make(map[string]*collection),
		resets:      make(map[string]string),
		tokenTTL:    14 * 24 * time.Hour,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.signingKey) == 0 {
		m.signingKey = make([]byte, 32)
		_, _ = rand.Read(m.signingKey)
	}
	m.mux = m.routes()
	return m
}

// Handler returns the HTTP handler serving the API.
func (m *Mock) Handler() http.Handler {
	return m.mux
}

// Transport returns a RoundTripper answering requests in-process.
func (m *Mock) Transport() http.RoundTripper {
	return roundTripper{h: m.mux}
}

type roundTripper struct {
	h http.Handler
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	inner := req.Clone(req.Context())
	if inner.Body == nil {
		inner.Body = http.NoBody
	}
	if inner.RequestURI == "" {
		inner.RequestURI = req.URL.RequestURI()
	}
	rec := httptest.NewRecorder()
	rt.h.ServeHTTP(rec, inner)
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

func (m *Mock) timestamp() string {
	return m.now().UTC().Format(timeLayout)
}

// Seed loads admins and collections from a decoded seed file.
func (m *Mock) Seed(seed *devseed.Seed) error {
	if seed == nil {
		return nil
	}
	for _, a := range seed.Admins {
		if _, err := m.addAdmin(a.ID, a.Email, a.Password); err != nil {
			return err
		}
	}
	for _, c := range seed.Collections {
		m.AddCollection(c.Name, c.Auth)
		for _, r := range c.Records {
			if _, err := m.AddRecord(c.Name, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddAdmin registers an admin account and returns its public fields.
func (m *Mock) AddAdmin(email, password string) (map[string]any, error) {
	return m.addAdmin("", email, password)
}

func (m *Mock) addAdmin(id, email, password string) (map[string]any, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, fmt.Errorf("mock: admin email and password are required")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = newID()
	}
	ts := m.timestamp()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.admins[id]; exists {
		return nil, fmt.Errorf("%w: admin %s", ErrConflict, id)
	}
	e := &entry{
		fields: map[string]any{"id": id, "email": email, "avatar": 0, "created": ts, "updated": ts},
		hash:   hash,
	}
	m.admins[id] = e
	m.adminOrder = append(m.adminOrder, id)
	return copyFields(e.fields), nil
}

// AddCollection creates collection name if it does not exist yet.
func (m *Mock) AddCollection(name string, auth bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collectionLocked(name, auth)
}

func (m *Mock) collectionLocked(name string, auth bool) *collection {
	if c, ok := m.collections[name]; ok {
		return c
	}
	c := &collection{
		id:      "col_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		name:    name,
		auth:    auth,
		records: make(map[string]*entry),
	}
	m.collections[name] = c
	return c
}

// AddRecord inserts a record, creating a plain collection when missing. A
// "password" field on an auth collection is stored hashed.
func (m *Mock) AddRecord(collectionName string, fields map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collectionLocked(collectionName, false)
	return m.insertLocked(c, fields)
}

func (m *Mock) insertLocked(c *collection, fields map[string]any) (map[string]any, error) {
	data := copyFields(fields)
	id, _ := data["id"].(string)
	if id == "" {
		id = newID()
	}
	if _, exists := c.records[id]; exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrConflict, c.name, id)
	}
	e := &entry{}
	if c.auth {
		if err := applyPassword(e, data); err != nil {
			return nil, err
		}
		if _, ok := data["verified"]; !ok {
			data["verified"] = false
		}
	}
	ts := m.timestamp()
	data["id"] = id
	data["collectionId"] = c.id
	data["collectionName"] = c.name
	if _, ok := data["created"]; !ok {
		data["created"] = ts
	}
	data["updated"] = ts
	e.fields = data
	c.records[id] = e
	c.order = append(c.order, id)
	return copyFields(data), nil
}

// LastResetToken returns the most recent password reset token issued for
// email, as a test stand-in for the reset email.
func (m *Mock) LastResetToken(email string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resets[strings.ToLower(email)]
}

func applyPassword(e *entry, data map[string]any) error {
	pw, _ := data["password"].(string)
	delete(data, "password")
	delete(data, "passwordConfirm")
	if pw == "" {
		return nil
	}
	hash, err := hashPassword(pw)
	if err != nil {
		return err
	}
	e.hash = hash
	return nil
}

// Hashing runs at the minimum cost; the mock holds throwaway credentials.
func hashPassword(pw string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("mock: hash password: %w", err)
	}
	return hash, nil
}

func checkPassword(e *entry, pw string) bool {
	return e != nil && len(e.hash) > 0 && bcrypt.CompareHashAndPassword(e.hash, []byte(pw)) == nil
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:15]
}

func copyFields(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
