// Package ratelimit implements a sliding-window admission limiter keyed by
// caller identity (user id or client IP)
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

// Decision is the outcome of a single admission attempt
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the time until the oldest retained event leaves the
	// window; only set when denied
	RetryAfter time.Duration
}

// Option mutates a Limiter during construction
type Option func(*Limiter)

// WithClock injects a clock for deterministic tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

type shard struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// Limiter tracks timestamped admissions per identity inside a sliding window.
// Admissions for one identity are serialized by its shard lock; identities on
// different shards never contend
type Limiter struct {
	cap    int
	window time.Duration
	now    func() time.Time
	shards [shardCount]*shard
}

// New builds a Limiter admitting at most cap events per identity per window
func New(cap int, window time.Duration, opts ...Option) *Limiter {
	if cap <= 0 {
		panic("ratelimit: cap must be positive")
	}
	if window <= 0 {
		panic("ratelimit: window must be positive")
	}
	l := &Limiter{cap: cap, window: window, now: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{events: make(map[string][]time.Time)}
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return l.shards[h.Sum32()%shardCount]
}

// Admit records one event for identity unless the window is already at cap.
// The prune + append is atomic per identity, so concurrent admissions never
// push a window past cap
func (l *Limiter) Admit(identity string) Decision {
	now := l.now()
	cutoff := now.Add(-l.window)

	s := l.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[identity]

	// drop everything older than the window; timestamps are appended in
	// order so the retained tail is still oldest-first
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.cap {
		retry := kept[0].Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		s.events[identity] = kept
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}
	}

	kept = append(kept, now)
	s.events[identity] = kept
	return Decision{Allowed: true, Remaining: l.cap - len(kept)}
}

// Len reports how many events identity currently holds inside the window
func (l *Limiter) Len(identity string) int {
	now := l.now()
	cutoff := now.Add(-l.window)

	s := l.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, ts := range s.events[identity] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Sweep drops identities whose windows are fully expired; callers may run it
// periodically to bound memory between admissions
func (l *Limiter) Sweep() int {
	now := l.now()
	cutoff := now.Add(-l.window)

	dropped := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for id, events := range s.events {
			live := false
			for _, ts := range events {
				if ts.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				delete(s.events, id)
				dropped++
			}
		}
		s.mu.Unlock()
	}
	return dropped
}
