package requests

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/ports"
)

// ListUpdate is one rebuilt projection. Err carries a connectivity failure
// for display; Requests then still holds the last good projection.
type ListUpdate struct {
	Requests []request.ProjectedRequest
	Err      error
}

type feedMsg struct {
	list []request.RawRequest
}

type errMsg struct {
	err error
}

// Coordinator fans in the request feed and the lookup cache. A single
// goroutine owns the raw list and rebuilds the whole projection whenever
// either source reports a change, in whatever order they arrive.
type Coordinator struct {
	lookups *LookupCache
	feed    *RequestFeed

	inbox   chan any
	lookup  chan struct{}
	updates chan ListUpdate

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	unobserve func()
}

func NewCoordinator(lookups *LookupCache, store ports.DocumentStore) *Coordinator {
	c := &Coordinator{
		lookups: lookups,
		inbox:   make(chan any, 16),
		lookup:  make(chan struct{}, 1),
		updates: make(chan ListUpdate, 1),
	}
	c.feed = NewRequestFeed(store, WithFeedErrorHandler(c.reportError))
	return c
}

// Updates delivers the latest projection. A slow reader only ever sees the
// newest pending update.
func (c *Coordinator) Updates() <-chan ListUpdate {
	return c.updates
}

// Start begins listening for technicianID. The first update is published
// once the feed delivered its first list.
func (c *Coordinator) Start(ctx context.Context, technicianID string) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	unobserve := c.lookups.Observe(func(event LookupEvent) {
		if event.Err != nil {
			c.send(runCtx, errMsg{err: event.Err})
			return
		}
		select {
		case c.lookup <- struct{}{}:
		default:
		}
	})
	c.mu.Lock()
	c.unobserve = unobserve
	c.mu.Unlock()

	go c.run(runCtx)

	err := c.feed.StartListening(runCtx, technicianID, func(list []request.RawRequest) {
		c.send(runCtx, feedMsg{list: list})
	})
	if err != nil {
		c.Stop()
		return err
	}
	return nil
}

// Stop cancels the feed and the rebuild loop. It is idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	unobserve := c.unobserve
	c.cancel = nil
	c.unobserve = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	c.feed.StopListening()
	if unobserve != nil {
		unobserve()
	}
	cancel()
	<-done
}

func (c *Coordinator) reportError(err error) {
	c.mu.Lock()
	running := c.cancel != nil
	c.mu.Unlock()
	if !running || err == nil {
		return
	}
	select {
	case c.inbox <- errMsg{err: err}:
	default:
	}
}

func (c *Coordinator) send(ctx context.Context, msg any) {
	select {
	case c.inbox <- msg:
	case <-ctx.Done():
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	logCtx := logging.WithAttrs(ctx, slog.String("component", "requests.coordinator"))
	var (
		raw      []request.RawRequest
		haveFeed bool
		last     []request.ProjectedRequest
	)
	rebuild := func() {
		last = Rebuild(raw, c.lookups)
		c.publish(ListUpdate{Requests: last})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.inbox:
			switch m := msg.(type) {
			case feedMsg:
				raw = m.list
				haveFeed = true
				rebuild()
			case errMsg:
				logging.Warn(logCtx, "publishing connectivity error", slog.Any("err", errs.Loggable(m.err)))
				c.publish(ListUpdate{Requests: last, Err: m.err})
			}
		case <-c.lookup:
			if haveFeed {
				rebuild()
			}
		}
	}
}

func (c *Coordinator) publish(update ListUpdate) {
	for {
		select {
		case c.updates <- update:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}
