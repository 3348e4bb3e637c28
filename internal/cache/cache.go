// Package cache implements the time-boxed read cache and optimistic-write
// helper shared by stateful services. Each service owns its own Cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var ErrNoWriter = errors.New("cache has no background writer")

type generation struct {
	epoch, gen uint64
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

type options struct {
	now    func() time.Time
	writer *Writer
	log    logrus.FieldLogger
}

type Option func(*options)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithWriter enables OptimisticWrite.
func WithWriter(w *Writer) Option {
	return func(o *options) { o.writer = w }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

type Cache[K comparable, V any] struct {
	ttl    time.Duration
	now    func() time.Time
	writer *Writer
	log    logrus.FieldLogger

	mu      sync.RWMutex
	entries map[K]entry[V]
	// gens is bumped by writes and invalidations so a fetch that started
	// before them cannot overwrite newer state.
	gens  map[K]uint64
	epoch uint64
	group singleflight.Group
}

func New[K comparable, V any](ttl time.Duration, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		ttl:     ttl,
		now:     o.now,
		writer:  o.writer,
		log:     o.log,
		entries: make(map[K]entry[V]),
		gens:    make(map[K]uint64),
	}
}

// Read returns the cached value while it is younger than the TTL, otherwise
// calls fetch and caches its result. When fetch fails and a stale value is
// still held, the stale value is returned instead of the error.
func (c *Cache[K, V]) Read(ctx context.Context, key K, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.fresh(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		gen := c.currentGen(key)
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, v, gen)
		return v, nil
	})
	if err != nil {
		c.mu.RLock()
		stale, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			c.log.WithError(err).WithField("key", fmt.Sprint(key)).Warn("cache fetch failed, serving stale value")
			return stale.value, nil
		}
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

// OptimisticWrite makes value visible to readers at once and enqueues persist
// on the background writer. A failed persist invalidates the key so the next
// read goes back to the store; the previous value is not restored.
func (c *Cache[K, V]) OptimisticWrite(ctx context.Context, key K, value V, persist func(context.Context) error) (*Task, error) {
	if c.writer == nil {
		return nil, ErrNoWriter
	}

	c.mu.Lock()
	c.gens[key]++
	c.entries[key] = entry[V]{value: value, fetchedAt: c.now()}
	c.mu.Unlock()

	task := NewTask(fmt.Sprint(key), persist, func(err error) {
		if err != nil {
			c.Invalidate(key)
		}
	})
	if err := c.writer.Enqueue(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	delete(c.entries, key)
}

func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	clear(c.entries)
}

// Peek returns the held value regardless of age.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.value, ok
}

func (c *Cache[K, V]) fresh(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) currentGen(key K) generation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return generation{epoch: c.epoch, gen: c.gens[key]}
}

func (c *Cache[K, V]) store(key K, v V, gen generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != gen.epoch || c.gens[key] != gen.gen {
		return
	}
	c.entries[key] = entry[V]{value: v, fetchedAt: c.now()}
}
