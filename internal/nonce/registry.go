// Package nonce implements the server's in-process nonce anti-replay set.
package nonce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SweepInterval is how often the background sweep removes expired nonces.
const SweepInterval = 60 * time.Second

// Registry is a process-local, non-persistent set of reserved nonces. A
// nonce reserved here can never be reserved again until it expires and is
// swept, giving a strict at-most-once guarantee per nonce.
type Registry struct {
	mu      sync.Mutex
	entries map[string]int64 // nonce -> expiry epoch ms

	logger  *slog.Logger
	stop    chan struct{}
	running atomic.Bool
}

// New creates an empty Registry. Call Start to begin the background sweep
// and Stop to release it; a Registry with no sweep running still answers
// TryReserve correctly, it just retains expired entries until swept.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]int64),
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// TryReserve atomically inserts nonce if and only if it is not already
// present. expiryMs is the epoch-millisecond time after which the nonce is
// eligible for eviction. Returns false if the nonce was already reserved.
func (r *Registry) TryReserve(nonce string, expiryMs int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[nonce]; exists {
		return false
	}
	r.entries[nonce] = expiryMs
	return true
}

// Size reports the number of nonces currently held, including any not yet
// swept past their expiry.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep removes all entries whose expiry has passed and returns the count
// removed. Safe to call concurrently with TryReserve.
func (r *Registry) Sweep() int {
	now := time.Now().UnixMilli()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for n, expiry := range r.entries {
		if expiry <= now {
			delete(r.entries, n)
			removed++
		}
	}
	return removed
}

// Start runs the background sweep loop until the context is cancelled or
// Stop is called. Intended to run in its own goroutine, owned by whichever
// middleware instance constructed this Registry — never module-level state.
func (r *Registry) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.safeSweep()
		}
	}
}

// Stop signals the sweep loop to exit and releases the registry's memory.
func (r *Registry) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
	r.mu.Lock()
	r.entries = make(map[string]int64)
	r.mu.Unlock()
}

// Running reports whether the background sweep loop is active.
func (r *Registry) Running() bool {
	return r.running.Load()
}

func (r *Registry) safeSweep() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in nonce sweep", "panic", fmt.Sprint(rec))
		}
	}()
	if removed := r.Sweep(); removed > 0 {
		r.logger.Debug("swept expired nonces", "removed", removed)
	}
}
