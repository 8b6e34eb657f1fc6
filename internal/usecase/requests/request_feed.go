package requests

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/ports"
)

// RequestFeed keeps one live subscription to the active requests assigned
// to a technician.
type RequestFeed struct {
	store   ports.DocumentStore
	onError func(error)

	mu     sync.Mutex
	sub    ports.Subscription
	cancel context.CancelFunc
	gen    uint64
}

type RequestFeedOption func(*RequestFeed)

// WithFeedErrorHandler receives transport errors. No list is delivered for
// the failed event.
func WithFeedErrorHandler(fn func(error)) RequestFeedOption {
	return func(f *RequestFeed) {
		f.onError = fn
	}
}

func NewRequestFeed(store ports.DocumentStore, opts ...RequestFeedOption) *RequestFeed {
	feed := &RequestFeed{store: store}
	for _, opt := range opts {
		opt(feed)
	}
	return feed
}

// StartListening replaces any previous subscription. onChange receives the
// complete current list, newest first, once per snapshot.
func (f *RequestFeed) StartListening(ctx context.Context, technicianID string, onChange func([]request.RawRequest)) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	technicianID = strings.TrimSpace(technicianID)
	if technicianID == "" {
		return errors.New("technician id is required")
	}
	if onChange == nil {
		return errors.New("onChange is required")
	}

	f.StopListening()

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := f.store.Subscribe(subCtx, CollectionRequests,
		ports.Equal(fieldServicerID, technicianID),
		ports.Equal(fieldActive, true),
	)
	if err != nil {
		cancel()
		return connectivityError("subscribe requests", err)
	}

	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.sub = sub
	f.cancel = cancel
	f.mu.Unlock()

	logCtx := logging.WithAttrs(subCtx,
		slog.String("component", "requests.feed"),
		slog.String("technician_id", technicianID),
	)
	go f.consume(logCtx, gen, sub, onChange)
	return nil
}

// StopListening cancels the subscription. It is safe to call when not
// listening and from inside onChange.
func (f *RequestFeed) StopListening() {
	f.mu.Lock()
	sub := f.sub
	cancel := f.cancel
	f.sub = nil
	f.cancel = nil
	f.gen++
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}
}

func (f *RequestFeed) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen == gen
}

func (f *RequestFeed) consume(ctx context.Context, gen uint64, sub ports.Subscription, onChange func([]request.RawRequest)) {
	for snapshot := range sub.Snapshots() {
		if !f.current(gen) {
			return
		}
		if snapshot.Err != nil {
			err := connectivityError("subscribe requests", snapshot.Err)
			logging.Warn(ctx, "request feed error, keeping last list", slog.Any("err", errs.Loggable(err)))
			if f.onError != nil {
				f.onError(err)
			}
			continue
		}

		list := DecodeRequests(ctx, snapshot.Documents)
		if !f.current(gen) {
			return
		}
		onChange(list)
	}
}

// DecodeRequests decodes docs, dropping records that fail validation, and
// orders the result newest first.
func DecodeRequests(ctx context.Context, docs []ports.Document) []request.RawRequest {
	list := make([]request.RawRequest, 0, len(docs))
	dropped := 0
	for _, doc := range docs {
		item, err := DecodeRequest(doc)
		if err != nil {
			dropped++
			continue
		}
		list = append(list, item)
	}
	if dropped > 0 {
		logging.Warn(ctx, "dropped undecodable requests", slog.Int("dropped", dropped), slog.Int("kept", len(list)))
	}
	SortNewestFirst(list)
	return list
}

func SortNewestFirst(list []request.RawRequest) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedOn.Equal(list[j].CreatedOn) {
			return list[i].CreatedOn.After(list[j].CreatedOn)
		}
		return list[i].RequestNo > list[j].RequestNo
	})
}
