package requests

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/ports"
)

type lookupTable map[string]request.LookupEntry

// LookupEvent is delivered to observers after a table was replaced, or with
// Err set when a subscription reported a transport error. Err events leave
// the table untouched.
type LookupEvent struct {
	Kind request.LookupKind
	Err  error
}

// LookupCache keeps the building, room and category tables in memory. Each
// table is swapped as a whole, so readers never lock and never observe a
// partially applied snapshot. One cache is shared by every consumer of a
// session.
type LookupCache struct {
	store ports.DocumentStore

	buildings  atomic.Pointer[lookupTable]
	rooms      atomic.Pointer[lookupTable]
	categories atomic.Pointer[lookupTable]

	mu        sync.Mutex
	observers map[int]func(LookupEvent)
	nextID    int
	live      *LookupSubscription
}

func NewLookupCache(store ports.DocumentStore) *LookupCache {
	return &LookupCache{
		store:     store,
		observers: make(map[int]func(LookupEvent)),
	}
}

// LookupSubscription is the handle of the three live table subscriptions.
type LookupSubscription struct {
	cache  *LookupCache
	subs   []ports.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Subscribe opens live subscriptions for all three tables. Buildings and
// rooms are limited to active entries; categories are unfiltered. Only one
// handle can be live at a time; a second call returns ErrAlreadySubscribed
// until the first handle is unsubscribed.
func (c *LookupCache) Subscribe(ctx context.Context) (*LookupSubscription, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	subCtx, cancel := context.WithCancel(ctx)
	handle := &LookupSubscription{cache: c, cancel: cancel}

	c.mu.Lock()
	if c.live != nil {
		c.mu.Unlock()
		cancel()
		return nil, ErrAlreadySubscribed
	}
	c.live = handle
	c.mu.Unlock()

	for _, kind := range request.LookupKinds {
		var predicates []ports.Predicate
		if kind != request.LookupCategory {
			predicates = append(predicates, ports.Equal(fieldActive, true))
		}
		sub, err := c.store.Subscribe(subCtx, LookupCollection(kind), predicates...)
		if err != nil {
			c.Unsubscribe(handle)
			return nil, errs.Wrapf(err, "subscribe %s", LookupCollection(kind))
		}
		handle.subs = append(handle.subs, sub)

		handle.wg.Add(1)
		go func(kind request.LookupKind, sub ports.Subscription) {
			defer handle.wg.Done()
			c.consume(subCtx, kind, sub)
		}(kind, sub)
	}
	return handle, nil
}

// Unsubscribe cancels the handle's subscriptions, waits for their goroutines
// and clears the tables. It is safe to call more than once and with a nil
// handle. It must not be called from an Observe callback.
func (c *LookupCache) Unsubscribe(handle *LookupSubscription) {
	if handle == nil {
		return
	}
	handle.close()

	c.mu.Lock()
	if c.live == handle {
		c.live = nil
	}
	c.mu.Unlock()

	for _, kind := range request.LookupKinds {
		c.table(kind).Store(nil)
	}
}

// Live reports whether a subscription currently keeps the tables fresh.
func (c *LookupCache) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}

// Refresh reads every table once. It serves one-shot callers that do not hold
// a live subscription.
func (c *LookupCache) Refresh(ctx context.Context) error {
	for _, kind := range request.LookupKinds {
		var predicates []ports.Predicate
		if kind != request.LookupCategory {
			predicates = append(predicates, ports.Equal(fieldActive, true))
		}
		docs, err := c.store.Query(ctx, LookupCollection(kind), predicates...)
		if err != nil {
			return connectivityError("read "+LookupCollection(kind), err)
		}
		c.replace(ctx, kind, docs)
	}
	return nil
}

// Resolve looks id up in the table of kind. It never blocks.
func (c *LookupCache) Resolve(kind request.LookupKind, id string) request.Resolution {
	ptr := c.table(kind)
	if ptr == nil || id == "" {
		return request.NotFound()
	}
	table := ptr.Load()
	if table == nil {
		return request.NotFound()
	}
	entry, ok := (*table)[id]
	if !ok {
		return request.NotFound()
	}
	return request.Resolved(entry.DisplayName)
}

// Name returns the display name of id, or the kind's sentinel.
func (c *LookupCache) Name(kind request.LookupKind, id string) string {
	return c.Resolve(kind, id).NameOr(kind.Sentinel())
}

// Entries returns the current table of kind ordered by display name.
func (c *LookupCache) Entries(kind request.LookupKind) []request.LookupEntry {
	ptr := c.table(kind)
	if ptr == nil {
		return nil
	}
	table := ptr.Load()
	if table == nil {
		return nil
	}
	out := make([]request.LookupEntry, 0, len(*table))
	for _, entry := range *table {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].ID < out[j].ID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// Observe registers fn for every table replacement and transport error.
// fn runs on a subscription goroutine. It must not block and must not call
// Unsubscribe, which waits for that goroutine. The returned function removes
// the registration.
func (c *LookupCache) Observe(fn func(LookupEvent)) func() {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

func (c *LookupCache) consume(ctx context.Context, kind request.LookupKind, sub ports.Subscription) {
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "requests.lookup_cache"),
		slog.String("kind", string(kind)),
	)
	for snapshot := range sub.Snapshots() {
		if ctx.Err() != nil {
			return
		}
		if snapshot.Err != nil {
			err := connectivityError("subscribe "+LookupCollection(kind), snapshot.Err)
			logging.Warn(logCtx, "lookup subscription error, keeping previous table", slog.Any("err", errs.Loggable(err)))
			c.emit(LookupEvent{Kind: kind, Err: err})
			continue
		}
		c.replace(logCtx, kind, snapshot.Documents)
	}
}

func (c *LookupCache) replace(ctx context.Context, kind request.LookupKind, docs []ports.Document) {
	table := make(lookupTable, len(docs))
	skipped := 0
	for _, doc := range docs {
		entry, err := DecodeLookupEntry(doc)
		if err != nil {
			skipped++
			continue
		}
		table[entry.ID] = entry
	}
	if skipped > 0 {
		logging.Warn(ctx, "skipped undecodable lookup entries",
			slog.String("kind", string(kind)),
			slog.Int("skipped", skipped),
			slog.Int("kept", len(table)),
		)
	}

	c.table(kind).Store(&table)
	c.emit(LookupEvent{Kind: kind})
}

func (c *LookupCache) emit(event LookupEvent) {
	c.mu.Lock()
	observers := make([]func(LookupEvent), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(event)
	}
}

func (c *LookupCache) table(kind request.LookupKind) *atomic.Pointer[lookupTable] {
	switch kind {
	case request.LookupBuilding:
		return &c.buildings
	case request.LookupRoom:
		return &c.rooms
	case request.LookupCategory:
		return &c.categories
	default:
		return nil
	}
}

func (h *LookupSubscription) close() {
	h.once.Do(func() {
		h.cancel()
		for _, sub := range h.subs {
			sub.Close()
		}
		h.wg.Wait()
	})
}
