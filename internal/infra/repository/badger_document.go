package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
)

const badgerDocPrefix = "doc/"

// BadgerDocumentRepository is the embedded backend. Each batch is a single
// read-write badger transaction, so reads inside a batch take part in
// badger's conflict detection. Delete reads its key and AssertExists
// rewrites it, which makes a cascade delete and an insert guarded by
// AssertExists on the same document conflict.
type BadgerDocumentRepository struct {
	db  *badger.DB
	now func() time.Time
}

func NewBadgerDocumentRepository(db *badger.DB) *BadgerDocumentRepository {
	return &BadgerDocumentRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func badgerKey(collection, id string) []byte {
	return []byte(badgerDocPrefix + collection + "/" + id)
}

func badgerPrefix(collection string) []byte {
	return []byte(badgerDocPrefix + collection + "/")
}

func (r *BadgerDocumentRepository) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}

	var doc docstore.Document
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = readDocument(txn, collection, id)
		return err
	})
	return doc, err
}

func (r *BadgerDocumentRepository) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []docstore.Document
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		docs, err = scanDocuments(txn, collection, filters)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}
	docstore.SortDocuments(docs)
	return docs, nil
}

func (r *BadgerDocumentRepository) BatchWrite(ctx context.Context, ops []docstore.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := r.db.NewTransaction(true)
	defer txn.Discard()

	if err := r.stage(txn, ops); err != nil {
		return err
	}
	return commitBadger(txn)
}

// stage applies ops to an open transaction without committing it.
func (r *BadgerDocumentRepository) stage(txn *badger.Txn, ops []docstore.Op) error {
	now := r.now()
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return &docstore.OpError{Index: i, Op: op, Err: err}
		}
		if err := applyBadgerOp(txn, op, now); err != nil {
			return &docstore.OpError{Index: i, Op: op, Err: err}
		}
	}
	return nil
}

func commitBadger(txn *badger.Txn) error {
	err := txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return errors.Wrap(docstore.ErrConflict, err.Error())
	}
	if err != nil {
		return errors.Wrap(docstore.ErrCommitUnknown, err.Error())
	}
	return nil
}

func applyBadgerOp(txn *badger.Txn, op docstore.Op, now time.Time) error {
	key := badgerKey(op.Collection, op.ID)

	switch op.Kind {
	case docstore.OpInsert, docstore.OpInsertIfAbsent:
		_, err := txn.Get(key)
		if err == nil {
			if op.Kind == docstore.OpInsertIfAbsent {
				return nil
			}
			return docstore.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := op.Payload()
		if err != nil {
			return err
		}
		return writeDocument(txn, docstore.Document{
			Collection: op.Collection,
			ID:         op.ID,
			Data:       data,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	case docstore.OpUpdate:
		existing, err := readDocument(txn, op.Collection, op.ID)
		if errors.Is(err, docstore.ErrNotFound) {
			return docstore.ErrPreconditionFailed
		}
		if err != nil {
			return err
		}
		data, err := op.Payload()
		if err != nil {
			return err
		}
		existing.Data = data
		existing.UpdatedAt = now
		return writeDocument(txn, existing)
	case docstore.OpDelete:
		// read first so a batch that asserted the key after our read
		// conflicts with this delete
		if _, err := txn.Get(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(key)
	case docstore.OpDeleteIfExists:
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return docstore.ErrPreconditionFailed
		}
		if err != nil {
			return err
		}
		return txn.Delete(key)
	case docstore.OpAssertExists:
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return docstore.ErrPreconditionFailed
		}
		if err != nil {
			return err
		}
		// rewrite the unchanged value so a concurrent delete that read the
		// key sees a write and aborts
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	case docstore.OpDeleteWhere:
		matches, err := scanDocuments(txn, op.Collection, op.Filters)
		if err != nil {
			return err
		}
		for _, doc := range matches {
			if err := txn.Delete(badgerKey(doc.Collection, doc.ID)); err != nil {
				return err
			}
		}
		return nil
	default:
		return docstore.ErrUnsupportedOp
	}
}

func readDocument(txn *badger.Txn, collection, id string) (docstore.Document, error) {
	item, err := txn.Get(badgerKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, errors.Wrapf(err, "get %s/%s", collection, id)
	}

	var doc docstore.Document
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return docstore.Document{}, errors.Wrapf(err, "decode %s/%s", collection, id)
	}
	return doc, nil
}

func writeDocument(txn *badger.Txn, doc docstore.Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return txn.Set(badgerKey(doc.Collection, doc.ID), b)
}

func scanDocuments(txn *badger.Txn, collection string, filters []docstore.Filter) ([]docstore.Document, error) {
	prefix := badgerPrefix(collection)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var docs []docstore.Document
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var doc docstore.Document
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		}); err != nil {
			return nil, err
		}
		ok, err := docstore.Match(doc.Data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

var _ docstore.Store = (*BadgerDocumentRepository)(nil)
