package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
	"crms/internal/infrastructure/persistence/sqlite/model"
	"crms/internal/ports"
)

const defaultPollInterval = 2 * time.Second

// DocumentStore implements ports.DocumentStore on a single sqlite table.
// Live subscriptions re-read their collection after every change signal and
// on a poll interval, so writes from other processes are picked up as well.
type DocumentStore struct {
	db           *gorm.DB
	notifier     ports.ChangeNotifier
	pollInterval time.Duration
	newID        func() string
}

var _ ports.DocumentStore = (*DocumentStore)(nil)

type DocumentStoreOption func(*DocumentStore)

// WithPollInterval sets the re-read interval of live subscriptions. Zero or
// negative disables polling; subscriptions then rely on the notifier only.
func WithPollInterval(interval time.Duration) DocumentStoreOption {
	return func(s *DocumentStore) {
		s.pollInterval = interval
	}
}

func WithIDGenerator(newID func() string) DocumentStoreOption {
	return func(s *DocumentStore) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func NewDocumentStore(db *gorm.DB, notifier ports.ChangeNotifier, opts ...DocumentStoreOption) *DocumentStore {
	store := &DocumentStore{
		db:           db,
		notifier:     notifier,
		pollInterval: defaultPollInterval,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *DocumentStore) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return s.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (s *DocumentStore) Query(ctx context.Context, collection string, predicates ...ports.Predicate) ([]ports.Document, error) {
	docs, _, err := s.queryDocuments(ctx, collection, predicates)
	return docs, err
}

func (s *DocumentStore) GetDocument(ctx context.Context, collection string, id string) (ports.Document, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.Document{}, err
	}
	collection, id, err = validateKey(collection, id)
	if err != nil {
		return ports.Document{}, err
	}

	var row model.Document
	if err := db.Where("collection = ? AND doc_id = ?", collection, id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Document{}, fmt.Errorf("%w: %s/%s", ports.ErrDocumentNotFound, collection, id)
		}
		return ports.Document{}, errs.WithStack(errs.Wrap(err, "query document"))
	}

	fields, err := decodeFields(row.Data)
	if err != nil {
		return ports.Document{}, errs.Wrapf(err, "decode document %s/%s", collection, id)
	}
	return ports.Document{ID: row.DocID, Fields: fields}, nil
}

func (s *DocumentStore) SetDocument(ctx context.Context, collection string, id string, fields map[string]any) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}
	collection, id, err = validateKey(collection, id)
	if err != nil {
		return err
	}

	data, err := encodeFields(fields)
	if err != nil {
		return err
	}

	now := nowUTCString()
	row := model.Document{
		Collection: collection,
		DocID:      id,
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"data":       row.Data,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert document")
	}

	s.notifyAfterCommit(ctx, collection)
	return nil
}

// UpdateFields merges fields into an existing document. A nil value removes the field.
func (s *DocumentStore) UpdateFields(ctx context.Context, collection string, id string, fields map[string]any) error {
	if ports.TxFromContext(ctx) != nil {
		db, err := s.dbFromContext(ctx)
		if err != nil {
			return err
		}
		collection, id, err = validateKey(collection, id)
		if err != nil {
			return err
		}

		var row model.Document
		if err := db.Where("collection = ? AND doc_id = ?", collection, id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s/%s", ports.ErrDocumentNotFound, collection, id)
			}
			return errs.Wrap(err, "query document for update")
		}

		current, err := decodeFields(row.Data)
		if err != nil {
			return errs.Wrapf(err, "decode document %s/%s", collection, id)
		}
		for key, value := range fields {
			if value == nil {
				delete(current, key)
				continue
			}
			current[key] = value
		}

		data, err := encodeFields(current)
		if err != nil {
			return err
		}
		if err := db.Model(&model.Document{}).
			Where("collection = ? AND doc_id = ?", collection, id).
			Updates(map[string]any{
				"data":       data,
				"updated_at": nowUTCString(),
			}).Error; err != nil {
			return errs.Wrap(err, "update document fields")
		}

		s.notifyAfterCommit(ctx, collection)
		return nil
	}

	hookCtx, hooks := ports.WithCommitHooks(ctx)
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.UpdateFields(ports.WithTxContext(hookCtx, tx), collection, id, fields)
	}); err != nil {
		return err
	}
	hooks.Run()
	return nil
}

func (s *DocumentStore) AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return "", err
	}

	id := s.newID()
	collection, id, err = validateKey(collection, id)
	if err != nil {
		return "", err
	}

	data, err := encodeFields(fields)
	if err != nil {
		return "", err
	}

	now := nowUTCString()
	row := model.Document{
		Collection: collection,
		DocID:      id,
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.Create(&row).Error; err != nil {
		return "", errs.Wrap(err, "insert document")
	}

	s.notifyAfterCommit(ctx, collection)
	return id, nil
}

func (s *DocumentStore) DeleteDocument(ctx context.Context, collection string, id string) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}
	collection, id, err = validateKey(collection, id)
	if err != nil {
		return err
	}

	result := db.Where("collection = ? AND doc_id = ?", collection, id).Delete(&model.Document{})
	if result.Error != nil {
		return errs.Wrap(result.Error, "delete document")
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", ports.ErrDocumentNotFound, collection, id)
	}

	s.notifyAfterCommit(ctx, collection)
	return nil
}

// Subscribe opens a live subscription. The first snapshot is the current
// matching set; later snapshots are sent only when the matching set changed.
// A failed read yields one snapshot with Err set; the next successful read
// always produces a fresh snapshot.
func (s *DocumentStore) Subscribe(ctx context.Context, collection string, predicates ...ports.Predicate) (ports.Subscription, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("collection is required")
	}

	subCtx, cancel := context.WithCancel(ctx)

	var signals <-chan struct{}
	stopWatch := func() {}
	if s.notifier != nil {
		watched, stop, err := s.notifier.Watch(subCtx, collection)
		if err != nil {
			cancel()
			return nil, errs.Wrapf(err, "watch collection %s", collection)
		}
		signals = watched
		stopWatch = stop
	}

	sub := &subscription{
		snapshots: make(chan ports.Snapshot, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	preds := append([]ports.Predicate(nil), predicates...)
	go s.runSubscription(subCtx, sub, collection, preds, signals, stopWatch)
	return sub, nil
}

func (s *DocumentStore) runSubscription(
	ctx context.Context,
	sub *subscription,
	collection string,
	predicates []ports.Predicate,
	signals <-chan struct{},
	stopWatch func(),
) {
	defer close(sub.done)
	defer close(sub.snapshots)
	defer stopWatch()

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "persistence.document_store"),
		slog.String("collection", collection),
	)

	var poll <-chan time.Time
	if s.pollInterval > 0 {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	first := true
	lastFingerprint := ""
	lastFailed := false
	emit := func() bool {
		docs, fingerprint, err := s.queryDocuments(ctx, collection, predicates)
		if ctx.Err() != nil {
			return false
		}

		var snapshot ports.Snapshot
		if err != nil {
			if lastFailed {
				return true
			}
			lastFailed = true
			lastFingerprint = ""
			logging.Warn(logCtx, "subscription read failed", slog.Any("err", errs.Loggable(err)))
			snapshot = ports.Snapshot{Collection: collection, Err: err}
		} else {
			if !first && !lastFailed && fingerprint == lastFingerprint {
				logging.Debug(logCtx, "snapshot unchanged, skipped")
				return true
			}
			lastFailed = false
			lastFingerprint = fingerprint
			snapshot = ports.Snapshot{Collection: collection, Documents: docs}
		}
		first = false

		select {
		case sub.snapshots <- snapshot:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			if !emit() {
				return
			}
		case <-poll:
			if !emit() {
				return
			}
		}
	}
}

func (s *DocumentStore) queryDocuments(ctx context.Context, collection string, predicates []ports.Predicate) ([]ports.Document, string, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, "", err
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, "", errors.New("collection is required")
	}

	var rows []model.Document
	if err := db.Where("collection = ?", collection).Order("doc_id asc").Find(&rows).Error; err != nil {
		return nil, "", errs.WithStack(errs.Wrap(err, "query documents"))
	}

	var fingerprint strings.Builder
	docs := make([]ports.Document, 0, len(rows))
	for _, row := range rows {
		fields, err := decodeFields(row.Data)
		if err != nil {
			logging.Warn(
				logging.WithAttrs(ctx, slog.String("component", "persistence.document_store")),
				"skip undecodable document",
				slog.String("collection", collection),
				slog.String("doc_id", row.DocID),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		if !matchesAll(fields, predicates) {
			continue
		}
		docs = append(docs, ports.Document{ID: row.DocID, Fields: fields})
		fingerprint.WriteString(row.DocID)
		fingerprint.WriteByte(0)
		fingerprint.WriteString(row.Data)
		fingerprint.WriteByte(0)
	}
	return docs, fingerprint.String(), nil
}

func (s *DocumentStore) notifyAfterCommit(ctx context.Context, collection string) {
	if s.notifier == nil {
		return
	}

	notifyCtx := context.WithoutCancel(ctx)
	ports.AfterCommit(ctx, func() {
		if err := s.notifier.Notify(notifyCtx, collection); err != nil {
			logging.Warn(
				logging.WithAttrs(notifyCtx, slog.String("component", "persistence.document_store")),
				"change notification failed",
				slog.String("collection", collection),
				slog.Any("err", errs.Loggable(err)),
			)
		}
	})
}

type subscription struct {
	snapshots chan ports.Snapshot
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

func (s *subscription) Snapshots() <-chan ports.Snapshot {
	return s.snapshots
}

// Close stops the subscription and waits for its reader goroutine to exit.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func validateKey(collection string, id string) (string, string, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return "", "", errors.New("collection is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", errors.New("document id is required")
	}
	return collection, id, nil
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", errs.Wrap(err, "encode document fields")
	}
	return string(raw), nil
}

func decodeFields(data string) (map[string]any, error) {
	fields := make(map[string]any)
	if strings.TrimSpace(data) == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func nowUTCString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
