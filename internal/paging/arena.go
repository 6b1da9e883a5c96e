package paging

import (
	"sync"
	"time"

	"github.com/roach88/osq/internal/qerr"
)

// DefaultScrollTTL is how long an idle scroll cursor survives.
const DefaultScrollTTL = 5 * time.Minute

// Lease is exclusive access to one scroll cursor, granted by Acquire and
// ended by Release.
type Lease[S any] struct {
	ID       string
	State    S
	Snapshot int64
	Offset   int
}

type cursor[S any] struct {
	state      S
	snapshot   int64
	offset     int
	lastAccess time.Time
	inUse      bool
}

// Arena holds the server-side scroll cursors, keyed by scroll id. S is the
// caller's resumable request state.
//
// Thread-safety: Arena is safe for concurrent use; each cursor admits one
// lease at a time.
type Arena[S any] struct {
	mu      sync.Mutex
	cursors map[string]*cursor[S]
	ttl     time.Duration
	clock   Clock
	ids     IDGenerator
	onSize  func(int)
}

// ArenaOption configures an Arena.
type ArenaOption func(*arenaConfig)

type arenaConfig struct {
	ttl    time.Duration
	clock  Clock
	ids    IDGenerator
	onSize func(int)
}

// WithTTL sets the idle time after which a cursor expires.
//
// Default: DefaultScrollTTL.
func WithTTL(ttl time.Duration) ArenaOption {
	return func(c *arenaConfig) {
		c.ttl = ttl
	}
}

// WithClock sets the clock used for expiry.
func WithClock(clock Clock) ArenaOption {
	return func(c *arenaConfig) {
		c.clock = clock
	}
}

// WithIDGenerator sets how scroll ids are minted.
//
// Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) ArenaOption {
	return func(c *arenaConfig) {
		c.ids = ids
	}
}

// WithSizeObserver registers fn to receive the number of live cursors
// after every change.
func WithSizeObserver(fn func(int)) ArenaOption {
	return func(c *arenaConfig) {
		c.onSize = fn
	}
}

// NewArena creates an empty arena.
func NewArena[S any](opts ...ArenaOption) *Arena[S] {
	cfg := arenaConfig{ttl: DefaultScrollTTL, clock: SystemClock{}, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Arena[S]{
		cursors: make(map[string]*cursor[S]),
		ttl:     cfg.ttl,
		clock:   cfg.clock,
		ids:     cfg.ids,
		onSize:  cfg.onSize,
	}
}

// Open registers a cursor over state, pinned at snapshot, and returns its
// scroll id.
func (a *Arena[S]) Open(state S, snapshot int64) string {
	a.mu.Lock()
	id := a.ids.Generate()
	a.cursors[id] = &cursor[S]{state: state, snapshot: snapshot, lastAccess: a.clock.Now()}
	n := len(a.cursors)
	a.mu.Unlock()

	a.observe(n)
	return id
}

// Acquire leases the cursor with id. Unknown and expired ids fail with
// SCROLL_EXPIRED; a cursor already leased fails with CONCURRENT_SCROLL.
func (a *Arena[S]) Acquire(id string) (*Lease[S], error) {
	a.mu.Lock()
	c, ok := a.cursors[id]
	if !ok {
		a.mu.Unlock()
		return nil, qerr.Resource(qerr.CodeScrollExpired, "scroll %q is unknown or has expired", id)
	}
	if c.inUse {
		a.mu.Unlock()
		return nil, qerr.Usage(qerr.CodeConcurrentScroll, "scroll %q is already being advanced", id)
	}
	now := a.clock.Now()
	if a.expired(c, now) {
		delete(a.cursors, id)
		n := len(a.cursors)
		a.mu.Unlock()
		a.observe(n)
		return nil, qerr.Resource(qerr.CodeScrollExpired, "scroll %q expired after %s idle", id, a.ttl)
	}
	c.inUse = true
	c.lastAccess = now
	lease := &Lease[S]{ID: id, State: c.state, Snapshot: c.snapshot, Offset: c.offset}
	a.mu.Unlock()
	return lease, nil
}

// Release ends l, moving the cursor forward by advanced objects. An
// exhausted cursor is dropped.
func (a *Arena[S]) Release(l *Lease[S], advanced int, exhausted bool) {
	a.mu.Lock()
	c, ok := a.cursors[l.ID]
	if !ok {
		a.mu.Unlock()
		return
	}
	if exhausted {
		delete(a.cursors, l.ID)
	} else {
		c.offset = l.Offset + advanced
		c.inUse = false
		c.lastAccess = a.clock.Now()
	}
	n := len(a.cursors)
	a.mu.Unlock()
	a.observe(n)
}

// Sweep drops every expired cursor that is not leased and returns how many
// were dropped.
func (a *Arena[S]) Sweep() int {
	a.mu.Lock()
	now := a.clock.Now()
	dropped := 0
	for id, c := range a.cursors {
		if !c.inUse && a.expired(c, now) {
			delete(a.cursors, id)
			dropped++
		}
	}
	n := len(a.cursors)
	a.mu.Unlock()

	if dropped > 0 {
		a.observe(n)
	}
	return dropped
}

// Len returns the number of live cursors, expired or not.
func (a *Arena[S]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cursors)
}

func (a *Arena[S]) expired(c *cursor[S], now time.Time) bool {
	return a.ttl > 0 && now.Sub(c.lastAccess) > a.ttl
}

func (a *Arena[S]) observe(n int) {
	if a.onSize != nil {
		a.onSize(n)
	}
}
