package handler

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"classroll/internal/attendance"
	"classroll/internal/metrics"
)

// Entry is one signed-in faculty session and its current attendance form.
type Entry struct {
	ID      string
	Session attendance.Session
	Gateway attendance.Gateway

	mu         sync.Mutex
	controller *attendance.Controller
	lastSeen   time.Time
}

// Controller returns the current form, or nil before Start.
func (e *Entry) Controller() *attendance.Controller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controller
}

// Start replaces the current form with a fresh one in the given mode.
// A form with a write in flight cannot be replaced.
func (e *Entry) Start(mode attendance.Mode, log logr.Logger) (*attendance.Controller, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.controller != nil && e.controller.State() == attendance.StateSubmitting {
		return nil, attendance.ErrBusy
	}
	e.controller = attendance.NewController(e.Session, mode, e.Gateway, log.WithValues("session", e.ID))
	return e.controller, nil
}

func (e *Entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *Entry) idleSince(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastSeen)
}

func (e *Entry) submitting() bool {
	c := e.Controller()
	return c != nil && c.State() == attendance.StateSubmitting
}

// Registry holds the in-memory sessions of this process.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	idle    time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry that forgets sessions idle for longer than idle.
func NewRegistry(idle time.Duration) *Registry {
	return &Registry{entries: make(map[string]*Entry), idle: idle, now: time.Now}
}

// Add registers a new session.
func (r *Registry) Add(s attendance.Session, gw attendance.Gateway) *Entry {
	e := &Entry{ID: uuid.NewString(), Session: s, Gateway: gw, lastSeen: r.now()}
	r.mu.Lock()
	r.entries[e.ID] = e
	n := len(r.entries)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)
	return e
}

// Get looks up a session and marks it as used.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		e.touch(r.now())
	}
	return e, ok
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	n := len(r.entries)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Prune drops idle sessions and returns how many were removed.
// Sessions with a write in flight are kept.
func (r *Registry) Prune() int {
	if r.idle <= 0 {
		return 0
	}
	now := r.now()
	r.mu.Lock()
	removed := 0
	for id, e := range r.entries {
		if e.idleSince(now) >= r.idle && !e.submitting() {
			delete(r.entries, id)
			removed++
		}
	}
	n := len(r.entries)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)
	return removed
}

// Run prunes idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration, log logr.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(); n > 0 {
				log.V(1).Info("Pruned idle sessions", "count", n, "remaining", r.Len())
			}
		}
	}
}
