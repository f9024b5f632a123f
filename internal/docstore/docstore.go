// Package docstore is the persistence abstraction shared by every usecase: a
// collection-addressed document store with all-or-nothing batch writes.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrAlreadyExists      = errors.New("document already exists")
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrConflict means the backend aborted the commit because of a
	// concurrent writer. Nothing was written; the batch may be retried.
	ErrConflict = errors.New("write conflict")
	// ErrCommitUnknown means the store could not tell whether the commit
	// was applied.
	ErrCommitUnknown = errors.New("commit outcome unknown")
	ErrUnsupportedOp = errors.New("unsupported batch op")
	ErrInvalidOp     = errors.New("invalid batch op")
)

type Document struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Filter is an equality predicate on a top-level field of the document data.
type Filter struct {
	Field string
	Value string
}

func Eq(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

type OpKind int

const (
	OpInsert OpKind = iota + 1
	OpInsertIfAbsent
	OpUpdate
	OpDelete
	OpDeleteIfExists
	OpDeleteWhere
	OpAssertExists
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpInsertIfAbsent:
		return "insert_if_absent"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpDeleteIfExists:
		return "delete_if_exists"
	case OpDeleteWhere:
		return "delete_where"
	case OpAssertExists:
		return "assert_exists"
	default:
		return "unknown"
	}
}

// Op is one entry of a batch. Value is marshalled to JSON by the backend.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Value      any
	Filters    []Filter
}

func Insert(collection, id string, value any) Op {
	return Op{Kind: OpInsert, Collection: collection, ID: id, Value: value}
}

func InsertIfAbsent(collection, id string, value any) Op {
	return Op{Kind: OpInsertIfAbsent, Collection: collection, ID: id, Value: value}
}

func Update(collection, id string, value any) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Value: value}
}

func Delete(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

func DeleteIfExists(collection, id string) Op {
	return Op{Kind: OpDeleteIfExists, Collection: collection, ID: id}
}

func DeleteWhere(collection string, filters ...Filter) Op {
	return Op{Kind: OpDeleteWhere, Collection: collection, Filters: filters}
}

func AssertExists(collection, id string) Op {
	return Op{Kind: OpAssertExists, Collection: collection, ID: id}
}

func (op Op) Payload() (json.RawMessage, error) {
	if raw, ok := op.Value.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(op.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s/%s: %w", op.Collection, op.ID, err)
	}
	return b, nil
}

// Validate rejects ops a backend must never apply, such as a DeleteWhere
// without filters.
func (op Op) Validate() error {
	if op.Collection == "" {
		return fmt.Errorf("%w: missing collection", ErrInvalidOp)
	}
	switch op.Kind {
	case OpDeleteWhere:
		if len(op.Filters) == 0 {
			return fmt.Errorf("%w: delete_where without filters", ErrInvalidOp)
		}
	case OpInsert, OpInsertIfAbsent, OpUpdate, OpDelete, OpDeleteIfExists, OpAssertExists:
		if op.ID == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidOp)
		}
	default:
		return ErrUnsupportedOp
	}
	return nil
}

// OpError identifies the batch entry that aborted a commit.
type OpError struct {
	Index int
	Op    Op
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("batch op %d (%s %s/%s): %v", e.Index, e.Op.Kind, e.Op.Collection, e.Op.ID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Store is implemented by every backend. BatchWrite applies all ops or none.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	BatchWrite(ctx context.Context, ops []Op) error
}

func Decode[T any](doc Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return v, nil
}

func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := Decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Match reports whether data satisfies every filter. String fields are
// compared by value, anything else by its JSON text.
func Match(data json.RawMessage, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, err
	}
	for _, f := range filters {
		raw, ok := fields[f.Field]
		if !ok {
			return false, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != f.Value {
				return false, nil
			}
			continue
		}
		if string(raw) != f.Value {
			return false, nil
		}
	}
	return true, nil
}

// SortDocuments orders by creation time, then id.
func SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
