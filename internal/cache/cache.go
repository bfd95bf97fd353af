// ABOUTME: Keyed query cache with tag-based invalidation and in-flight request sharing.
// ABOUTME: Subscribed entries refetch on invalidation; unused entries are collected after a grace period.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389-research/backstage/internal/metrics"
)

// DefaultGCGrace is how long an entry without subscribers is kept.
const DefaultGCGrace = 60 * time.Second

// Tag labels cached data so mutations can invalidate it.
type Tag string

// Key identifies one cached query: an endpoint plus its argument.
type Key struct {
	Endpoint string
	Arg      string
}

func (k Key) String() string {
	if k.Arg == "" {
		return k.Endpoint
	}
	return k.Endpoint + "(" + k.Arg + ")"
}

// Status is the lifecycle state of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Fetcher loads the value for a key. The context it receives is not
// cancelled when an individual caller gives up.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot is a point-in-time view of an entry.
type Snapshot struct {
	Key       Key
	Status    Status
	Data      any
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

type entry struct {
	key     Key
	tags    map[Tag]struct{}
	fetch   Fetcher
	data    any
	hasData bool
	err     error
	status  Status
	stale   bool
	updated time.Time

	// gen changes on every invalidation; results from older generations are dropped.
	gen       uint64
	inFlight  bool
	flightGen uint64
	// cutGen is the flight a Reset interrupted; only its error is kept.
	cutGen uint64

	subs    map[uint64]func(Snapshot)
	gcTimer *time.Timer
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:       e.key,
		Status:    e.status,
		Data:      e.data,
		Err:       e.err,
		Stale:     e.stale,
		UpdatedAt: e.updated,
	}
}

func (e *entry) fresh() bool {
	return e.status == StatusSuccess && !e.stale
}

// settled is the status an entry falls back to when no flight is running.
func (e *entry) settled() Status {
	switch {
	case e.err != nil:
		return StatusError
	case e.hasData:
		return StatusSuccess
	default:
		return StatusIdle
	}
}

type notification struct {
	fn   func(Snapshot)
	snap Snapshot
}

func (e *entry) notifications() []notification {
	if len(e.subs) == 0 {
		return nil
	}
	snap := e.snapshot()
	out := make([]notification, 0, len(e.subs))
	for _, fn := range e.subs {
		out = append(out, notification{fn: fn, snap: snap})
	}
	return out
}

// Cache stores query results keyed by endpoint and argument.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	tags    map[Tag]map[Key]struct{}
	nextGen uint64
	nextSub uint64

	// notifyMu keeps listener callbacks in the order state changed.
	notifyMu sync.Mutex

	group   singleflight.Group
	grace   time.Duration
	baseCtx context.Context
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithGCGrace sets how long unused entries survive.
func WithGCGrace(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithLogger sets the logger for cache events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithBackgroundContext sets the context used for refetches that no caller
// is waiting on, such as those triggered by Invalidate.
func WithBackgroundContext(ctx context.Context) Option {
	return func(c *Cache) {
		c.baseCtx = ctx
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*entry),
		tags:    make(map[Tag]map[Key]struct{}),
		grace:   DefaultGCGrace,
		baseCtx: context.Background(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query returns fresh cached data for key, or joins or starts the single
// in-flight fetch for it. A cancelled ctx stops this caller from waiting;
// the fetch itself continues and its result is stored for others.
func (c *Cache) Query(ctx context.Context, key Key, tags []Tag, fetch Fetcher) (any, error) {
	c.mu.Lock()
	e := c.ensure(key, tags, fetch)
	if len(e.subs) == 0 {
		c.scheduleGC(e)
	}
	if e.fresh() {
		data := e.data
		c.mu.Unlock()
		metrics.IncCache(key.Endpoint, metrics.CacheHit)
		return data, nil
	}

	ch, joined, notes := c.start(ctx, e)
	c.unlockAndNotify(notes)
	if joined {
		metrics.IncCache(key.Endpoint, metrics.CacheShared)
	} else {
		metrics.IncCache(key.Endpoint, metrics.CacheMiss)
	}
	return wait(ctx, ch)
}

// Refetch forces a new fetch for key even if cached data is fresh. Any
// older in-flight result for key is discarded.
func (c *Cache) Refetch(ctx context.Context, key Key, tags []Tag, fetch Fetcher) (any, error) {
	c.mu.Lock()
	e := c.ensure(key, tags, fetch)
	if len(e.subs) == 0 {
		c.scheduleGC(e)
	}
	c.nextGen++
	e.gen = c.nextGen
	ch, _, notes := c.start(ctx, e)
	c.unlockAndNotify(notes)

	metrics.IncCache(key.Endpoint, metrics.CacheRefetch)
	return wait(ctx, ch)
}

// Invalidate marks every entry carrying any of tags as stale. Entries with
// subscribers refetch immediately; the rest refetch on their next read.
func (c *Cache) Invalidate(tags ...Tag) {
	c.mu.Lock()
	seen := make(map[Key]struct{})
	var notes []notification
	for _, tag := range tags {
		for key := range c.tags[tag] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			e := c.entries[key]
			if e == nil {
				continue
			}
			c.nextGen++
			e.gen = c.nextGen
			e.stale = true
			metrics.IncCache(key.Endpoint, metrics.CacheInvalidate)
			c.logger.Debug("cache entry invalidated", slog.String("key", key.String()), slog.String("tag", string(tag)))

			if len(e.subs) > 0 {
				_, _, started := c.start(c.baseCtx, e)
				notes = append(notes, started...)
				metrics.IncCache(key.Endpoint, metrics.CacheRefetch)
			} else {
				notes = append(notes, e.notifications()...)
			}
		}
	}
	c.unlockAndNotify(notes)
}

// Subscription keeps an entry alive and delivers its state changes.
type Subscription struct {
	c    *Cache
	e    *entry
	id   uint64
	once sync.Once
}

// Subscribe registers fn for every state change of key and starts a fetch
// if the entry has no fresh data. fn receives the current state first. fn
// must not call back into the Cache.
func (c *Cache) Subscribe(key Key, tags []Tag, fetch Fetcher, fn func(Snapshot)) *Subscription {
	c.mu.Lock()
	e := c.ensure(key, tags, fetch)
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	c.nextSub++
	id := c.nextSub
	e.subs[id] = fn

	notes := []notification{{fn: fn, snap: e.snapshot()}}
	if !e.fresh() && !(e.inFlight && e.flightGen == e.gen) {
		_, _, started := c.start(c.baseCtx, e)
		notes = append(notes, started...)
		metrics.IncCache(key.Endpoint, metrics.CacheMiss)
	}
	c.unlockAndNotify(notes)

	return &Subscription{c: c, e: e, id: id}
}

// Close stops delivery. The entry becomes eligible for collection once it
// has no subscribers left. Close is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.c
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(s.e.subs, s.id)
		if len(s.e.subs) == 0 && c.entries[s.e.key] == s.e {
			c.scheduleGC(s.e)
		}
	})
}

// Peek returns the current state of key without fetching.
func (c *Cache) Peek(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Len reports the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops all cached data. Entries without subscribers are removed.
// Subscribed entries stay registered with their data cleared and receive an
// idle snapshot. A fetch in flight at reset time has its data discarded, but
// an error it returns still reaches the entry's subscribers.
func (c *Cache) Reset() {
	c.mu.Lock()
	var notes []notification
	kept := make(map[Key]*entry)
	c.tags = make(map[Tag]map[Key]struct{})
	for key, e := range c.entries {
		if e.gcTimer != nil {
			e.gcTimer.Stop()
			e.gcTimer = nil
		}
		if len(e.subs) == 0 {
			continue
		}
		if e.inFlight {
			e.cutGen = e.flightGen
		}
		c.nextGen++
		e.gen = c.nextGen
		e.data, e.hasData, e.err = nil, false, nil
		e.stale = false
		e.updated = time.Time{}
		e.status = StatusIdle
		kept[key] = e
		for tag := range e.tags {
			if c.tags[tag] == nil {
				c.tags[tag] = make(map[Key]struct{})
			}
			c.tags[tag][key] = struct{}{}
		}
		notes = append(notes, e.notifications()...)
	}
	c.entries = kept
	c.logger.Debug("cache reset", slog.Int("kept", len(kept)))
	c.unlockAndNotify(notes)
}

// ensure returns the entry for key, creating it and indexing its tags.
// Callers hold c.mu.
func (c *Cache) ensure(key Key, tags []Tag, fetch Fetcher) *entry {
	e, ok := c.entries[key]
	if !ok {
		c.nextGen++
		e = &entry{
			key:  key,
			tags: make(map[Tag]struct{}),
			subs: make(map[uint64]func(Snapshot)),
			gen:  c.nextGen,
		}
		c.entries[key] = e
	}
	if fetch != nil {
		e.fetch = fetch
	}
	for _, tag := range tags {
		if _, ok := e.tags[tag]; ok {
			continue
		}
		e.tags[tag] = struct{}{}
		if c.tags[tag] == nil {
			c.tags[tag] = make(map[Key]struct{})
		}
		c.tags[tag][key] = struct{}{}
	}
	return e
}

// start joins the running flight for the entry's current generation or
// launches a new one under a fresh generation. Callers hold c.mu.
func (c *Cache) start(ctx context.Context, e *entry) (<-chan singleflight.Result, bool, []notification) {
	joined := e.inFlight && e.flightGen == e.gen

	var notes []notification
	if !joined {
		// A finished flight may still be registered under the old key.
		c.nextGen++
		e.gen = c.nextGen
		e.inFlight = true
		e.flightGen = e.gen
		if e.status != StatusPending {
			e.status = StatusPending
			notes = e.notifications()
		}
	}

	gen := e.gen
	fetch := e.fetch
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%s#%d", e.key, gen), func() (any, error) {
		if fetch == nil {
			err := fmt.Errorf("no fetcher registered for %s", e.key)
			c.complete(e, gen, nil, err)
			return nil, err
		}
		v, err := fetch(flightCtx)
		c.complete(e, gen, v, err)
		return v, err
	})
	return ch, joined, notes
}

// complete stores a flight result unless the entry moved on to a newer
// generation or was dropped.
func (c *Cache) complete(e *entry, gen uint64, v any, err error) {
	c.mu.Lock()
	if e.flightGen == gen {
		e.inFlight = false
	}
	if c.entries[e.key] != e {
		c.mu.Unlock()
		return
	}
	cut := gen != 0 && gen == e.cutGen
	if cut {
		e.cutGen = 0
	}
	if e.gen != gen {
		var notes []notification
		switch {
		case cut && err != nil && !e.inFlight:
			e.err = err
			e.status = StatusError
			e.updated = time.Now()
			notes = e.notifications()
		case !(e.inFlight && e.flightGen == e.gen) && e.status == StatusPending:
			c.logger.Debug("discarding outdated result", slog.String("key", e.key.String()))
			e.status = e.settled()
			notes = e.notifications()
		default:
			c.logger.Debug("discarding outdated result", slog.String("key", e.key.String()))
		}
		c.unlockAndNotify(notes)
		return
	}

	if err != nil {
		e.err = err
		e.status = StatusError
	} else {
		e.data = v
		e.hasData = true
		e.err = nil
		e.status = StatusSuccess
	}
	e.stale = false
	e.updated = time.Now()
	notes := e.notifications()
	c.unlockAndNotify(notes)
}

// scheduleGC (re)arms the collection timer for e. Callers hold c.mu.
func (c *Cache) scheduleGC(e *entry) {
	if e.gcTimer != nil {
		e.gcTimer.Stop()
	}
	e.gcTimer = time.AfterFunc(c.grace, func() { c.collect(e) })
}

func (c *Cache) collect(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[e.key] != e || len(e.subs) > 0 {
		return
	}
	if e.inFlight {
		c.scheduleGC(e)
		return
	}
	delete(c.entries, e.key)
	for tag := range e.tags {
		delete(c.tags[tag], e.key)
		if len(c.tags[tag]) == 0 {
			delete(c.tags, tag)
		}
	}
	metrics.IncCache(e.key.Endpoint, metrics.CacheEvict)
	c.logger.Debug("cache entry collected", slog.String("key", e.key.String()))
}

// unlockAndNotify releases c.mu and delivers notes in order.
func (c *Cache) unlockAndNotify(notes []notification) {
	if len(notes) == 0 {
		c.mu.Unlock()
		return
	}
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	for _, n := range notes {
		n.fn(n.snap)
	}
}

func wait(ctx context.Context, ch <-chan singleflight.Result) (any, error) {
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
