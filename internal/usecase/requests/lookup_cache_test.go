package requests

import (
	"context"
	"errors"
	"testing"
	"time"

	"crms/internal/domain/request"
	"crms/internal/ports"
)

func waitLookupEvent(t *testing.T, events <-chan LookupEvent) LookupEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for lookup event")
	}
	return LookupEvent{}
}

func subscribedCache(t *testing.T) (*LookupCache, *fakeStore, *LookupSubscription, <-chan LookupEvent) {
	t.Helper()
	store := newFakeStore()
	cache := NewLookupCache(store)
	events := make(chan LookupEvent, 16)
	cache.Observe(func(event LookupEvent) { events <- event })

	handle, err := cache.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	t.Cleanup(func() { cache.Unsubscribe(handle) })
	return cache, store, handle, events
}

func TestLookupCacheSkipsUndecodableEntries(t *testing.T) {
	cache, store, _, events := subscribedCache(t)

	store.push(CollectionBuildings, ports.Snapshot{Documents: []ports.Document{
		lookupDoc("b1", "Main Hall"),
		{ID: "b2", Fields: map[string]any{"name": 42}},
		lookupDoc("b3", "Library"),
	}})
	if event := waitLookupEvent(t, events); event.Kind != request.LookupBuilding || event.Err != nil {
		t.Fatalf("event = %+v", event)
	}

	if got := len(cache.Entries(request.LookupBuilding)); got != 2 {
		t.Fatalf("Entries() len = %d, want 2", got)
	}
	if got := cache.Name(request.LookupBuilding, "b3"); got != "Library" {
		t.Fatalf("Name(b3) = %q", got)
	}
	if res := cache.Resolve(request.LookupBuilding, "b2"); res.Found {
		t.Fatalf("Resolve(b2) = %+v, want not found", res)
	}
	if got := cache.Name(request.LookupBuilding, "b2"); got != request.UnknownBuilding {
		t.Fatalf("Name(b2) = %q, want sentinel", got)
	}
}

func TestLookupCacheSubscriptionPredicates(t *testing.T) {
	_, store, _, _ := subscribedCache(t)

	for _, collection := range []string{CollectionBuildings, CollectionRooms} {
		preds := store.predicatesFor(collection)
		if len(preds) != 1 || preds[0] != ports.Equal("active", true) {
			t.Fatalf("%s predicates = %+v", collection, preds)
		}
	}
	if preds := store.predicatesFor(CollectionCategories); len(preds) != 0 {
		t.Fatalf("categories predicates = %+v, want none", preds)
	}
}

func TestLookupCacheKeepsTableOnTransportError(t *testing.T) {
	cache, store, _, events := subscribedCache(t)

	store.push(CollectionRooms, ports.Snapshot{Documents: []ports.Document{lookupDoc("r1", "101")}})
	waitLookupEvent(t, events)

	store.push(CollectionRooms, ports.Snapshot{Err: errors.New("unreachable")})
	event := waitLookupEvent(t, events)
	if !errors.Is(event.Err, request.ErrConnectivity) {
		t.Fatalf("event err = %v, want connectivity", event.Err)
	}
	if got := cache.Name(request.LookupRoom, "r1"); got != "101" {
		t.Fatalf("Name(r1) after error = %q", got)
	}
}

func TestLookupCacheReplacesWholeTable(t *testing.T) {
	cache, store, _, events := subscribedCache(t)

	store.push(CollectionCategories, ports.Snapshot{Documents: []ports.Document{lookupDoc("c1", "Plumbing"), lookupDoc("c2", "Electrical")}})
	waitLookupEvent(t, events)
	store.push(CollectionCategories, ports.Snapshot{Documents: []ports.Document{lookupDoc("c2", "Electric")}})
	waitLookupEvent(t, events)

	if res := cache.Resolve(request.LookupCategory, "c1"); res.Found {
		t.Fatalf("c1 should be gone after replacement")
	}
	if got := cache.Name(request.LookupCategory, "c2"); got != "Electric" {
		t.Fatalf("Name(c2) = %q", got)
	}
}

func TestLookupCacheUnsubscribeClearsAndIsIdempotent(t *testing.T) {
	cache, store, handle, events := subscribedCache(t)

	store.push(CollectionBuildings, ports.Snapshot{Documents: []ports.Document{lookupDoc("b1", "Main Hall")}})
	waitLookupEvent(t, events)
	if !cache.Live() {
		t.Fatalf("Live() = false while subscribed")
	}

	cache.Unsubscribe(handle)
	cache.Unsubscribe(handle)
	cache.Unsubscribe(nil)

	if cache.Live() {
		t.Fatalf("Live() = true after unsubscribe")
	}
	if got := cache.Name(request.LookupBuilding, "b1"); got != request.UnknownBuilding {
		t.Fatalf("Name(b1) after unsubscribe = %q", got)
	}
}

func TestLookupCacheRejectsSecondSubscribe(t *testing.T) {
	cache, store, handle, events := subscribedCache(t)

	if second, err := cache.Subscribe(context.Background()); !errors.Is(err, ErrAlreadySubscribed) || second != nil {
		t.Fatalf("second Subscribe() = %v, %v, want ErrAlreadySubscribed", second, err)
	}
	if got := len(store.subs[CollectionBuildings]); got != 1 {
		t.Fatalf("building subscriptions = %d, want 1", got)
	}

	cache.Unsubscribe(handle)
	again, err := cache.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe() after unsubscribe error = %v", err)
	}
	t.Cleanup(func() { cache.Unsubscribe(again) })

	store.push(CollectionBuildings, ports.Snapshot{Documents: []ports.Document{lookupDoc("b1", "Main Hall")}})
	waitLookupEvent(t, events)
	if got := cache.Name(request.LookupBuilding, "b1"); got != "Main Hall" {
		t.Fatalf("Name(b1) after resubscribe = %q", got)
	}
}

func TestLookupCacheRefresh(t *testing.T) {
	store := newFakeStore()
	store.docs[CollectionBuildings] = []ports.Document{lookupDoc("b1", "Main Hall")}
	cache := NewLookupCache(store)

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := cache.Name(request.LookupBuilding, "b1"); got != "Main Hall" {
		t.Fatalf("Name(b1) = %q", got)
	}

	store.queryErr = errors.New("offline")
	if err := cache.Refresh(context.Background()); !errors.Is(err, request.ErrConnectivity) {
		t.Fatalf("Refresh() error = %v, want connectivity", err)
	}
	if got := cache.Name(request.LookupBuilding, "b1"); got != "Main Hall" {
		t.Fatalf("failed refresh should keep table, got %q", got)
	}
}
