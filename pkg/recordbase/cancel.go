package recordbase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

type pendingEntry struct {
	key    string
	cancel context.CancelCauseFunc
}

// registry tracks at most one in-flight request per cancellation key.
type registry struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
	logger  *slog.Logger
}

func newRegistry(logger *slog.Logger) *registry {
	return &registry{entries: make(map[string]*pendingEntry), logger: logger}
}

// register cancels the request currently owning key and publishes a new
// entry in its place under a single critical section.
func (r *registry) register(parent context.Context, key string) (context.Context, *pendingEntry) {
	ctx, cancel := context.WithCancelCause(parent)
	entry := &pendingEntry{key: key, cancel: cancel}

	r.mu.Lock()
	prev := r.entries[key]
	if prev != nil {
		prev.cancel(ErrAutoCancelled)
	}
	r.entries[key] = entry
	r.mu.Unlock()

	if prev != nil {
		r.logger.Debug("recordbase: superseded pending request", "key", key)
	}
	return ctx, entry
}

// release evicts entry if it still owns its key and frees its context.
func (r *registry) release(entry *pendingEntry) {
	if entry == nil {
		return
	}
	r.mu.Lock()
	if r.entries[entry.key] == entry {
		delete(r.entries, entry.key)
	}
	r.mu.Unlock()
	entry.cancel(nil)
}

func (r *registry) cancel(key string) bool {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()
	if ok {
		entry.cancel(ErrCancelled)
	}
	return ok
}

func (r *registry) cancelAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*pendingEntry)
	r.mu.Unlock()
	for _, entry := range entries {
		entry.cancel(ErrCancelled)
	}
	return len(entries)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// cancellationCause returns why ctx was cancelled, or nil when it is still
// live or merely timed out. Deadlines are transport failures, not cancellations.
func cancellationCause(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, context.DeadlineExceeded) {
		return nil
	}
	return cause
}
