package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
	"crms/internal/ports"
)

const DefaultSubjectPrefix = "crms.changes"

// NATS publishes change signals on "<prefix>.<collection>" so several
// processes sharing one database see each other's writes without waiting
// for the poll interval.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

var _ ports.ChangeNotifier = (*NATS)(nil)

func DialNATS(url string, subjectPrefix string) (*NATS, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("crms"))
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %s", url)
	}
	return NewNATS(conn, subjectPrefix), nil
}

func NewNATS(conn *nats.Conn, subjectPrefix string) *NATS {
	subjectPrefix = strings.Trim(strings.TrimSpace(subjectPrefix), ".")
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	return &NATS{conn: conn, prefix: subjectPrefix}
}

func (n *NATS) Subject(collection string) string {
	return n.prefix + "." + strings.TrimSpace(collection)
}

func (n *NATS) Notify(ctx context.Context, collection string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if strings.TrimSpace(collection) == "" {
		return errors.New("collection is required")
	}
	if n.conn == nil || n.conn.IsClosed() {
		return ErrClosed
	}
	if err := n.conn.Publish(n.Subject(collection), nil); err != nil {
		return errs.Wrapf(err, "publish change for %s", collection)
	}
	return nil
}

func (n *NATS) Watch(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, nil, errors.New("collection is required")
	}
	if n.conn == nil || n.conn.IsClosed() {
		return nil, nil, ErrClosed
	}

	ch := make(chan struct{}, 1)
	var (
		mu      sync.Mutex
		stopped bool
	)
	sub, err := n.conn.Subscribe(n.Subject(collection), func(*nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, nil, errs.Wrapf(err, "subscribe changes for %s", collection)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				logging.Warn(
					logging.WithAttrs(ctx, slog.String("component", "notify.nats")),
					"unsubscribe failed",
					slog.String("collection", collection),
					slog.Any("err", errs.Loggable(err)),
				)
			}
			mu.Lock()
			stopped = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, stop, nil
}

// Close drains pending publishes and closes the connection.
func (n *NATS) Close() error {
	if n.conn == nil || n.conn.IsClosed() {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return errs.Wrap(err, "drain nats connection")
	}
	return nil
}
