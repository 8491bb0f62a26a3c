// Package cache implements a TTL cache with a bounded LRU footprint.
// It backs the detection result cache keyed by content fingerprint
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Option mutates a TTL cache during construction
type Option[V any] func(*TTL[V])

// WithClock injects a clock for deterministic tests
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *TTL[V]) { c.now = now }
}

// WithMaxEntries caps how many live entries the cache retains; least
// recently used entries are evicted first. 0 means unbounded
func WithMaxEntries[V any](n int) Option[V] {
	return func(c *TTL[V]) { c.maxEntries = n }
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// TTL is a concurrency-safe expiring cache. Entries past their TTL are
// treated as absent on read; an expired entry is never returned
type TTL[V any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recently used
}

// New builds a TTL cache whose entries live for ttl after Put
func New[V any](ttl time.Duration, opts ...Option[V]) *TTL[V] {
	if ttl <= 0 {
		panic("cache: ttl must be positive")
	}
	c := &TTL[V]{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the live value for key. Expired entries are evicted lazily
// and reported as absent
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	en := el.Value.(*entry[V])
	if !c.now().Before(en.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return zero, false
	}
	c.order.MoveToFront(el)
	return en.value, true
}

// Put stores value under key for the cache TTL, overwriting any previous
// entry. Overwrites are idempotent by contract: concurrent writers racing on
// the same key store equivalent results
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		en := el.Value.(*entry[V])
		en.value = value
		en.expiresAt = expires
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: expires})
	c.items[key] = el

	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.items, back.Value.(*entry[V]).key)
		}
	}
}

// Len reports the number of retained entries, expired or not
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every expired entry and returns how many were removed
func (c *TTL[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		en := el.Value.(*entry[V])
		if !now.Before(en.expiresAt) {
			c.order.Remove(el)
			delete(c.items, en.key)
			removed++
		}
		el = prev
	}
	return removed
}
