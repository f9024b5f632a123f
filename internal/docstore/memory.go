package docstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps every collection in process memory. A batch is applied
// to cloned collections which replace the live ones only when every op
// succeeds.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Document
	for _, doc := range s.collections[collection] {
		ok, err := Match(doc.Data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, cloneDocument(doc))
		}
	}
	SortDocuments(result)
	return result, nil
}

func (s *MemoryStore) BatchWrite(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := make(map[string]map[string]Document)
	coll := func(name string) map[string]Document {
		if c, ok := work[name]; ok {
			return c
		}
		c := make(map[string]Document, len(s.collections[name]))
		for k, v := range s.collections[name] {
			c[k] = v
		}
		work[name] = c
		return c
	}

	now := s.now()
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return &OpError{Index: i, Op: op, Err: err}
		}
		if err := applyMemoryOp(coll(op.Collection), op, now); err != nil {
			return &OpError{Index: i, Op: op, Err: err}
		}
	}

	for name, c := range work {
		s.collections[name] = c
	}
	return nil
}

func applyMemoryOp(c map[string]Document, op Op, now time.Time) error {
	switch op.Kind {
	case OpInsert, OpInsertIfAbsent:
		if _, exists := c[op.ID]; exists {
			if op.Kind == OpInsertIfAbsent {
				return nil
			}
			return ErrAlreadyExists
		}
		data, err := op.Payload()
		if err != nil {
			return err
		}
		c[op.ID] = Document{Collection: op.Collection, ID: op.ID, Data: data, CreatedAt: now, UpdatedAt: now}
	case OpUpdate:
		existing, exists := c[op.ID]
		if !exists {
			return ErrPreconditionFailed
		}
		data, err := op.Payload()
		if err != nil {
			return err
		}
		existing.Data = data
		existing.UpdatedAt = now
		c[op.ID] = existing
	case OpDelete:
		delete(c, op.ID)
	case OpDeleteIfExists:
		if _, exists := c[op.ID]; !exists {
			return ErrPreconditionFailed
		}
		delete(c, op.ID)
	case OpDeleteWhere:
		for id, doc := range c {
			ok, err := Match(doc.Data, op.Filters)
			if err != nil {
				return err
			}
			if ok {
				delete(c, id)
			}
		}
	case OpAssertExists:
		if _, exists := c[op.ID]; !exists {
			return ErrPreconditionFailed
		}
	default:
		return ErrUnsupportedOp
	}
	return nil
}

func cloneDocument(doc Document) Document {
	data := make([]byte, len(doc.Data))
	copy(data, doc.Data)
	doc.Data = data
	return doc
}

var _ Store = (*MemoryStore)(nil)
