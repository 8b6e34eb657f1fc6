package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crms/internal/infrastructure/persistence/sqlite/model"
	"crms/internal/infrastructure/persistence/sqlite/uow"
	"crms/internal/ports"
)

func setupDocumentDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "crms.sqlite") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&model.Document{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// signalNotifier is a minimal ChangeNotifier for store tests.
type signalNotifier struct {
	ch       chan struct{}
	notified chan string
}

func newSignalNotifier() *signalNotifier {
	return &signalNotifier{
		ch:       make(chan struct{}, 1),
		notified: make(chan string, 16),
	}
}

func (n *signalNotifier) Notify(_ context.Context, collection string) error {
	n.notified <- collection
	select {
	case n.ch <- struct{}{}:
	default:
	}
	return nil
}

func (n *signalNotifier) Watch(context.Context, string) (<-chan struct{}, func(), error) {
	return n.ch, func() {}, nil
}

func nextSnapshot(t *testing.T, sub ports.Subscription) ports.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return snap
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return ports.Snapshot{}
}

func TestDocumentStoreCRUD(t *testing.T) {
	store := NewDocumentStore(setupDocumentDB(t), nil, WithIDGenerator(func() string { return "generated-1" }))
	ctx := context.Background()

	id, err := store.AddDocument(ctx, "requests", map[string]any{"requestNo": "REQ-00001", "active": true})
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if id != "generated-1" {
		t.Fatalf("AddDocument() id = %q", id)
	}

	if err := store.UpdateFields(ctx, "requests", id, map[string]any{"status": "assigned", "active": nil}); err != nil {
		t.Fatalf("UpdateFields() error = %v", err)
	}

	doc, err := store.GetDocument(ctx, "requests", id)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Fields["status"] != "assigned" || doc.Fields["requestNo"] != "REQ-00001" {
		t.Fatalf("GetDocument() fields = %#v", doc.Fields)
	}
	if _, ok := doc.Fields["active"]; ok {
		t.Fatalf("nil update should remove field, got %#v", doc.Fields)
	}

	if err := store.SetDocument(ctx, "requests", id, map[string]any{"requestNo": "REQ-00002"}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}
	doc, err = store.GetDocument(ctx, "requests", id)
	if err != nil {
		t.Fatalf("GetDocument() after set error = %v", err)
	}
	if len(doc.Fields) != 1 || doc.Fields["requestNo"] != "REQ-00002" {
		t.Fatalf("SetDocument() should replace fields, got %#v", doc.Fields)
	}

	if err := store.DeleteDocument(ctx, "requests", id); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if _, err := store.GetDocument(ctx, "requests", id); !errors.Is(err, ports.ErrDocumentNotFound) {
		t.Fatalf("GetDocument() after delete error = %v, want ErrDocumentNotFound", err)
	}
	if err := store.DeleteDocument(ctx, "requests", id); !errors.Is(err, ports.ErrDocumentNotFound) {
		t.Fatalf("DeleteDocument() twice error = %v, want ErrDocumentNotFound", err)
	}
	if err := store.UpdateFields(ctx, "requests", "missing", map[string]any{"x": 1}); !errors.Is(err, ports.ErrDocumentNotFound) {
		t.Fatalf("UpdateFields() missing error = %v, want ErrDocumentNotFound", err)
	}
}

func TestDocumentStoreQueryPredicates(t *testing.T) {
	store := NewDocumentStore(setupDocumentDB(t), nil)
	ctx := context.Background()

	seed := map[string]map[string]any{
		"r1": {"servicerId": "tech-1", "active": true, "tags": []any{"hvac", "urgent"}, "floor": 2},
		"r2": {"servicerId": "tech-1", "active": false, "tags": []any{"hvac"}, "floor": 3},
		"r3": {"servicerId": "tech-2", "active": true, "tags": []any{"plumbing"}, "floor": 2},
	}
	for id, fields := range seed {
		if err := store.SetDocument(ctx, "requests", id, fields); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	cases := []struct {
		name       string
		predicates []ports.Predicate
		want       []string
	}{
		{name: "no predicates", want: []string{"r1", "r2", "r3"}},
		{name: "equal", predicates: []ports.Predicate{ports.Equal("servicerId", "tech-1")}, want: []string{"r1", "r2"}},
		{name: "conjunction", predicates: []ports.Predicate{ports.Equal("servicerId", "tech-1"), ports.Equal("active", true)}, want: []string{"r1"}},
		{name: "array contains", predicates: []ports.Predicate{ports.ArrayContains("tags", "hvac")}, want: []string{"r1", "r2"}},
		{name: "numeric equality", predicates: []ports.Predicate{ports.Equal("floor", 2)}, want: []string{"r1", "r3"}},
		{name: "missing field", predicates: []ports.Predicate{ports.Equal("nope", "x")}, want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			docs, err := store.Query(ctx, "requests", tc.predicates...)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(docs) != len(tc.want) {
				t.Fatalf("Query() len = %d, want %d", len(docs), len(tc.want))
			}
			for i, doc := range docs {
				if doc.ID != tc.want[i] {
					t.Fatalf("Query()[%d] = %s, want %s", i, doc.ID, tc.want[i])
				}
			}
		})
	}
}

func TestDocumentStoreSubscribeDeliversFreshSnapshots(t *testing.T) {
	notifier := newSignalNotifier()
	store := NewDocumentStore(setupDocumentDB(t), notifier, WithPollInterval(0))
	ctx := context.Background()

	if err := store.SetDocument(ctx, "buildings", "b1", map[string]any{"name": "Main Hall", "active": true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	<-notifier.notified

	sub, err := store.Subscribe(ctx, "buildings", ports.Equal("active", true))
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	first := nextSnapshot(t, sub)
	if first.Err != nil || len(first.Documents) != 1 {
		t.Fatalf("initial snapshot = %+v", first)
	}

	if err := store.SetDocument(ctx, "buildings", "b2", map[string]any{"name": "Annex", "active": false}); err != nil {
		t.Fatalf("add inactive: %v", err)
	}
	if err := store.SetDocument(ctx, "buildings", "b3", map[string]any{"name": "Library", "active": true}); err != nil {
		t.Fatalf("add active: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-sub.Snapshots():
			if snap.Err != nil {
				t.Fatalf("snapshot error = %v", snap.Err)
			}
			for _, doc := range snap.Documents {
				if doc.ID == "b2" {
					t.Fatalf("inactive document leaked into snapshot")
				}
			}
			if len(snap.Documents) == 2 {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot with b3")
		}
	}
}

func TestDocumentStoreNotifiesAfterCommit(t *testing.T) {
	db := setupDocumentDB(t)
	notifier := newSignalNotifier()
	store := NewDocumentStore(db, notifier)
	unit := uow.NewUnitOfWork(db)
	ctx := context.Background()

	wantErr := fmt.Errorf("abort")
	err := unit.WithTx(ctx, func(txCtx context.Context) error {
		if err := store.SetDocument(txCtx, "requests", "r1", map[string]any{"status": "assigned"}); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithTx() error = %v", err)
	}
	select {
	case collection := <-notifier.notified:
		t.Fatalf("rolled back write notified %s", collection)
	default:
	}
	if _, err := store.GetDocument(ctx, "requests", "r1"); !errors.Is(err, ports.ErrDocumentNotFound) {
		t.Fatalf("rolled back write persisted: %v", err)
	}

	err = unit.WithTx(ctx, func(txCtx context.Context) error {
		if err := store.SetDocument(txCtx, "requests", "r1", map[string]any{"status": "assigned"}); err != nil {
			return err
		}
		select {
		case <-notifier.notified:
			t.Fatalf("notified before commit")
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() commit error = %v", err)
	}
	select {
	case collection := <-notifier.notified:
		if collection != "requests" {
			t.Fatalf("notified collection = %s", collection)
		}
	default:
		t.Fatalf("committed write did not notify")
	}
}

func TestDocumentStoreSubscribeCloseIsIdempotent(t *testing.T) {
	store := NewDocumentStore(setupDocumentDB(t), nil, WithPollInterval(10*time.Millisecond))
	sub, err := store.Subscribe(context.Background(), "rooms")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	_ = nextSnapshot(t, sub)
	sub.Close()
	sub.Close()

	for range sub.Snapshots() {
	}
}
