package requests

import (
	"context"
	"errors"
	"testing"
	"time"

	"crms/internal/domain/request"
	"crms/internal/ports"
)

// flakyStore fails writes while failWrites is set.
type flakyStore struct {
	ports.DocumentStore
	failWrites bool
	failReads  bool
}

var errFlaky = errors.New("write rejected")

func (s *flakyStore) UpdateFields(ctx context.Context, collection string, id string, fields map[string]any) error {
	if s.failWrites {
		return errFlaky
	}
	return s.DocumentStore.UpdateFields(ctx, collection, id, fields)
}

func (s *flakyStore) GetDocument(ctx context.Context, collection string, id string) (ports.Document, error) {
	if s.failReads {
		return ports.Document{}, errFlaky
	}
	return s.DocumentStore.GetDocument(ctx, collection, id)
}

func TestDetailLoadAppliesAutoStatus(t *testing.T) {
	svc, store, clock := setupService(t)
	ctx := context.Background()
	seedLookups(t, store)
	created := createTestRequest(t, svc, "tech-1")

	base := clock.now
	if err := svc.Schedule(ctx, ScheduleInput{RequestID: created.ID, From: base.Add(-3 * time.Hour), To: base.Add(-time.Hour), Actor: "tech-1"}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	detail := NewDetail(svc, created.ID, "tech-1")
	if err := detail.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, ok := detail.Request()
	if !ok {
		t.Fatalf("Request() not loaded")
	}
	if got.Status != request.StatusDelayed {
		t.Fatalf("status after load = %s, want delayed", got.Status)
	}
	if got.BuildingName != "Main Hall" {
		t.Fatalf("BuildingName = %q", got.BuildingName)
	}
}

func TestDetailActionsReload(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	seedLookups(t, store)
	created := createTestRequest(t, svc, "tech-1")

	detail := NewDetail(svc, created.ID, "tech-1")
	if err := detail.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := detail.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got, _ := detail.Request(); got.Status != request.StatusInProgress {
		t.Fatalf("status after start = %s", got.Status)
	}
	if err := detail.SendBack(ctx, "Needs parts"); err != nil {
		t.Fatalf("SendBack() error = %v", err)
	}
	got, _ := detail.Request()
	if got.Status != request.StatusOnHold || got.SendBackReason != "Needs parts" {
		t.Fatalf("after send back = %+v", got)
	}
}

func TestDetailFailedMutationKeepsState(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	created := createTestRequest(t, svc, "tech-1")

	flaky := &flakyStore{DocumentStore: store}
	svc.store = flaky

	detail := NewDetail(svc, created.ID, "tech-1")
	if err := detail.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	flaky.failWrites = true
	if err := detail.Complete(ctx); !errors.Is(err, request.ErrConnectivity) {
		t.Fatalf("Complete() error = %v, want connectivity", err)
	}
	if got, _ := detail.Request(); got.Status != request.StatusSubmitted {
		t.Fatalf("status after failed complete = %s", got.Status)
	}

	flaky.failWrites = false
	flaky.failReads = true
	if err := detail.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got, _ := detail.Request(); got.Status != request.StatusSubmitted {
		t.Fatalf("failed reload should keep last state, got %s", got.Status)
	}
	if err := detail.Load(ctx); err == nil {
		t.Fatalf("Load() expected error when reads fail")
	}
}

func TestDetailClose(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	created := createTestRequest(t, svc, "tech-1")

	detail := NewDetail(svc, created.ID, "tech-1")
	if err := detail.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	detail.Close()
	detail.Close()

	if err := detail.Start(ctx); !errors.Is(err, ErrDetailClosed) {
		t.Fatalf("Start() after close error = %v", err)
	}
	if err := detail.Load(ctx); !errors.Is(err, ErrDetailClosed) {
		t.Fatalf("Load() after close error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		detail.RunAutoUpdates(ctx, time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("RunAutoUpdates() did not stop after Close")
	}
}
