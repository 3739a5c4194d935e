// Package ratelimit implements the in-process request throttling store.
// Requests are counted per (operation class, client identity) pair inside a
// rolling time window; the store is only correct for a single-instance
// deployment since no cross-process coordination is attempted.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Class identifies an operation bucket with its own window and ceiling
type Class string

const (
	ClassRead   Class = "read"
	ClassUpload Class = "upload"
	ClassDelete Class = "delete"
	ClassUpdate Class = "update"
	ClassStrict Class = "strict"
	ClassBurst  Class = "burst"
)

type classLimit struct {
	window      time.Duration
	maxRequests int
}

var classLimits = map[Class]classLimit{
	ClassRead:   {window: 60 * time.Second, maxRequests: 100},
	ClassUpload: {window: 60 * time.Second, maxRequests: 10},
	ClassDelete: {window: 60 * time.Second, maxRequests: 5},
	ClassUpdate: {window: 60 * time.Second, maxRequests: 20},
	ClassStrict: {window: 60 * time.Second, maxRequests: 5},
	ClassBurst:  {window: 10 * time.Second, maxRequests: 30},
}

// sweepInterval controls how often expired windows are evicted
const sweepInterval = 5 * time.Minute

type window struct {
	count   int
	resetAt time.Time
}

// Result reports the outcome of admitting a single request
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the number of seconds until the window resets.
	// Set only when the request was rejected.
	RetryAfter int
}

// Status is a read-only projection of a window, used for response headers
type Status struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store owns all rate-limit windows for the process. Entries are created on
// first use, replaced once their window has elapsed and evicted by a
// background sweep. All access to the map is serialized by the mutex.
type Store struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a store and starts the background sweep goroutine.
// Callers must Close the store when done with it.
func NewStore() *Store {
	s := &Store{
		windows: make(map[string]*window),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Close stops the background sweep and drops all windows
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.windows = make(map[string]*window)
		s.mu.Unlock()
	})
}

// Check counts one request against the window for class and identity and
// reports whether it is admitted. An unknown class returns an error so the
// caller can fail open.
func (s *Store) Check(class Class, identity string) (Result, error) {
	limit, ok := classLimits[class]
	if !ok {
		return Result{}, fmt.Errorf("unknown operation class %q", class)
	}

	key := windowKey(class, identity)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		// First request in a fresh window
		w = &window{count: 1, resetAt: now.Add(limit.window)}
		s.windows[key] = w
		return Result{
			Allowed:   true,
			Limit:     limit.maxRequests,
			Remaining: limit.maxRequests - 1,
			ResetAt:   w.resetAt,
		}, nil
	}

	w.count++
	if w.count > limit.maxRequests {
		return Result{
			Allowed:    false,
			Limit:      limit.maxRequests,
			Remaining:  0,
			ResetAt:    w.resetAt,
			RetryAfter: secondsUntil(now, w.resetAt),
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     limit.maxRequests,
		Remaining: limit.maxRequests - w.count,
		ResetAt:   w.resetAt,
	}, nil
}

// Remaining reports the current window for class and identity without
// counting a request
func (s *Store) Remaining(class Class, identity string) (Status, error) {
	limit, ok := classLimits[class]
	if !ok {
		return Status{}, fmt.Errorf("unknown operation class %q", class)
	}

	key := windowKey(class, identity)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		return Status{Limit: limit.maxRequests, Remaining: limit.maxRequests, ResetAt: now}, nil
	}

	remaining := limit.maxRequests - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Limit: limit.maxRequests, Remaining: remaining, ResetAt: w.resetAt}, nil
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops every window whose reset time has passed, bounding memory
// growth for identities that stopped sending requests
func (s *Store) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		if now.After(w.resetAt) {
			delete(s.windows, key)
		}
	}
}

func windowKey(class Class, identity string) string {
	return string(class) + ":" + identity
}

func secondsUntil(now, resetAt time.Time) int {
	secs := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
