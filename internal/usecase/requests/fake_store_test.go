package requests

import (
	"context"
	"sync"

	"crms/internal/ports"
)

// fakeStore hands out subscriptions whose snapshots the test pushes by hand.
type fakeStore struct {
	ports.DocumentStore

	mu         sync.Mutex
	subs       map[string][]*fakeSubscription
	predicates map[string][]ports.Predicate
	docs       map[string][]ports.Document
	queryErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:       make(map[string][]*fakeSubscription),
		predicates: make(map[string][]ports.Predicate),
		docs:       make(map[string][]ports.Document),
	}
}

type fakeSubscription struct {
	ch   chan ports.Snapshot
	once sync.Once
}

func (s *fakeSubscription) Snapshots() <-chan ports.Snapshot { return s.ch }

func (s *fakeSubscription) Close() {
	s.once.Do(func() { close(s.ch) })
}

func (f *fakeStore) Subscribe(_ context.Context, collection string, predicates ...ports.Predicate) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{ch: make(chan ports.Snapshot, 8)}
	f.subs[collection] = append(f.subs[collection], sub)
	f.predicates[collection] = predicates
	return sub, nil
}

func (f *fakeStore) Query(_ context.Context, collection string, _ ...ports.Predicate) ([]ports.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.docs[collection], nil
}

// push delivers snapshot to the newest subscription of collection.
func (f *fakeStore) push(collection string, snapshot ports.Snapshot) {
	f.mu.Lock()
	subs := f.subs[collection]
	f.mu.Unlock()
	if len(subs) == 0 {
		panic("no subscription for " + collection)
	}
	snapshot.Collection = collection
	subs[len(subs)-1].ch <- snapshot
}

func (f *fakeStore) predicatesFor(collection string) []ports.Predicate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.predicates[collection]
}

func lookupDoc(id string, name string) ports.Document {
	return ports.Document{ID: id, Fields: map[string]any{"name": name, "active": true}}
}

func requestDoc(id string, requestNo string, createdOn string, buildingID string) ports.Document {
	return ports.Document{ID: id, Fields: map[string]any{
		"requestNo":  requestNo,
		"status":     "assigned",
		"priority":   "high",
		"createdOn":  createdOn,
		"buildingId": buildingID,
		"roomId":     "room-1",
		"categoryId": "cat-1",
		"servicerId": "tech-1",
		"active":     true,
	}}
}
