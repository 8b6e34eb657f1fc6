package ports

import (
	"context"
	"errors"
)

var ErrDocumentNotFound = errors.New("document not found")

// Document is one record of a collection: an opaque id plus its field map.
// Field values follow JSON decoding (string, float64, bool, []any, map[string]any).
// Timestamps travel as RFC3339Nano strings.
type Document struct {
	ID     string
	Fields map[string]any
}

type PredicateOp string

const (
	OpEqual         PredicateOp = "=="
	OpArrayContains PredicateOp = "array-contains"
)

// Predicate is a server-side filter clause. All predicates of a query must hold.
type Predicate struct {
	Field string
	Op    PredicateOp
	Value any
}

func Equal(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpEqual, Value: value}
}

func ArrayContains(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpArrayContains, Value: value}
}

// Snapshot is the complete current matching set of a subscription, or the
// transport error that prevented reading it.
type Snapshot struct {
	Collection string
	Documents  []Document
	Err        error
}

// Subscription delivers snapshots in arrival order until Close.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Close()
}

type DocumentStore interface {
	Subscribe(ctx context.Context, collection string, predicates ...Predicate) (Subscription, error)
	Query(ctx context.Context, collection string, predicates ...Predicate) ([]Document, error)
	GetDocument(ctx context.Context, collection string, id string) (Document, error)
	SetDocument(ctx context.Context, collection string, id string, fields map[string]any) error
	UpdateFields(ctx context.Context, collection string, id string, fields map[string]any) error
	AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error)
	DeleteDocument(ctx context.Context, collection string, id string) error
}
