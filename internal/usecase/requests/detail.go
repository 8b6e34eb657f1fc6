package requests

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
)

// DefaultAutoStatusInterval is how often an open detail re-evaluates the
// time-window rule.
const DefaultAutoStatusInterval = 60 * time.Second

// Detail is the view-model of one open request. Actions are awaited with
// the caller's context; once Close has run, results that arrive late are
// dropped instead of being applied.
type Detail struct {
	svc       *Service
	requestID string
	actor     string

	mu      sync.Mutex
	current *request.ProjectedRequest
	closed  bool
}

func NewDetail(svc *Service, requestID string, actor string) *Detail {
	return &Detail{
		svc:       svc,
		requestID: strings.TrimSpace(requestID),
		actor:     strings.TrimSpace(actor),
	}
}

func (d *Detail) RequestID() string {
	return d.requestID
}

// Request returns the last successfully loaded state.
func (d *Detail) Request() (request.ProjectedRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return request.ProjectedRequest{}, false
	}
	return *d.current, true
}

// Load reads the request and then evaluates the auto-status rule. A failed
// read keeps the previous state and is returned.
func (d *Detail) Load(ctx context.Context) error {
	if d.isClosed() {
		return ErrDetailClosed
	}
	if err := d.reload(ctx); err != nil {
		return err
	}
	_, _, err := d.AutoUpdate(ctx)
	return err
}

func (d *Detail) Schedule(ctx context.Context, from time.Time, to time.Time) error {
	return d.act(ctx, func(ctx context.Context) error {
		return d.svc.Schedule(ctx, ScheduleInput{RequestID: d.requestID, From: from, To: to, Actor: d.actor})
	})
}

func (d *Detail) Start(ctx context.Context) error {
	return d.act(ctx, func(ctx context.Context) error {
		return d.svc.Start(ctx, ActionInput{RequestID: d.requestID, Actor: d.actor})
	})
}

func (d *Detail) Complete(ctx context.Context) error {
	return d.act(ctx, func(ctx context.Context) error {
		return d.svc.Complete(ctx, ActionInput{RequestID: d.requestID, Actor: d.actor})
	})
}

func (d *Detail) SendBack(ctx context.Context, reason string) error {
	return d.act(ctx, func(ctx context.Context) error {
		return d.svc.SendBack(ctx, SendBackInput{RequestID: d.requestID, Reason: reason, Actor: d.actor})
	})
}

// AutoUpdate applies the time-window rule to the loaded state. The store is
// only written when the rule says a transition is due.
func (d *Detail) AutoUpdate(ctx context.Context) (request.Status, bool, error) {
	current, ok := d.Request()
	if !ok || d.isClosed() {
		return "", false, nil
	}
	if _, due := request.NextAutoStatus(current.Status, d.svc.now(), current.EstimatedStart, current.EstimatedEnd); !due {
		return current.Status, false, nil
	}

	next, changed, err := d.svc.ApplyAutoStatus(ctx, d.requestID)
	if err != nil {
		d.logWarn(ctx, "auto status update failed", err)
		return current.Status, false, err
	}
	if changed {
		d.reloadQuietly(ctx)
	}
	return next, changed, nil
}

// RunAutoUpdates evaluates the rule every interval until ctx ends or the
// detail is closed.
func (d *Detail) RunAutoUpdates(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAutoStatusInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.isClosed() {
				return
			}
			_, _, _ = d.AutoUpdate(ctx)
		}
	}
}

// Close tears the view-model down. It is idempotent.
func (d *Detail) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Detail) act(ctx context.Context, mutate func(context.Context) error) error {
	if d.isClosed() {
		return ErrDetailClosed
	}
	if err := mutate(ctx); err != nil {
		d.logWarn(ctx, "request action failed", err)
		return err
	}
	d.reloadQuietly(ctx)
	return nil
}

func (d *Detail) reload(ctx context.Context) error {
	item, err := d.svc.GetProjected(ctx, d.requestID)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDetailClosed
	}
	d.current = &item
	return nil
}

// reloadQuietly keeps the last good state when the read fails.
func (d *Detail) reloadQuietly(ctx context.Context) {
	if err := d.reload(ctx); err != nil && err != ErrDetailClosed {
		d.logWarn(ctx, "reload after action failed", err)
	}
}

func (d *Detail) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Detail) logWarn(ctx context.Context, msg string, err error) {
	logging.Warn(
		logging.WithAttrs(ctx,
			slog.String("component", "requests.detail"),
			slog.String("request_id", d.requestID),
		),
		msg,
		slog.Any("err", errs.Loggable(err)),
	)
}
