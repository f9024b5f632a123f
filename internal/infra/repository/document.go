package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/infra/database/models"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// DocumentRepository stores every collection in the documents table. A batch
// runs inside one database transaction.
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var row models.Document
	err := r.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	return toDocument(row), nil
}

func (r *DocumentRepository) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	var rows []models.Document
	err := withFilters(r.db.WithContext(ctx).Where("collection = ?", collection), filters).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, toDocument(row))
	}
	return docs, nil
}

func (r *DocumentRepository) BatchWrite(ctx context.Context, ops []docstore.Op) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range ops {
			if err := op.Validate(); err != nil {
				return &docstore.OpError{Index: i, Op: op, Err: err}
			}
			if err := applyOp(tx, op, now); err != nil {
				return &docstore.OpError{Index: i, Op: op, Err: err}
			}
		}
		return nil
	})
	return translateError(err)
}

func applyOp(tx *gorm.DB, op docstore.Op, now time.Time) error {
	switch op.Kind {
	case docstore.OpInsert, docstore.OpInsertIfAbsent:
		data, err := op.Payload()
		if err != nil {
			return err
		}
		row := models.Document{
			Collection: op.Collection,
			ID:         op.ID,
			Data:       datatypes.JSON(data),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 && op.Kind == docstore.OpInsert {
			return docstore.ErrAlreadyExists
		}
	case docstore.OpUpdate:
		data, err := op.Payload()
		if err != nil {
			return err
		}
		res := tx.Model(&models.Document{}).
			Where("collection = ? AND id = ?", op.Collection, op.ID).
			Updates(map[string]any{"data": datatypes.JSON(data), "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return docstore.ErrPreconditionFailed
		}
	case docstore.OpDelete, docstore.OpDeleteIfExists:
		res := tx.Where("collection = ? AND id = ?", op.Collection, op.ID).
			Delete(&models.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 && op.Kind == docstore.OpDeleteIfExists {
			return docstore.ErrPreconditionFailed
		}
	case docstore.OpDeleteWhere:
		res := withFilters(tx.Where("collection = ?", op.Collection), op.Filters).
			Delete(&models.Document{})
		if res.Error != nil {
			return res.Error
		}
	case docstore.OpAssertExists:
		// FOR SHARE keeps a concurrent delete of the row waiting until this
		// transaction ends.
		var row models.Document
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("collection", "id").
			Where("collection = ? AND id = ?", op.Collection, op.ID).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return docstore.ErrPreconditionFailed
		}
		if err != nil {
			return err
		}
	default:
		return docstore.ErrUnsupportedOp
	}
	return nil
}

func withFilters(q *gorm.DB, filters []docstore.Filter) *gorm.DB {
	for _, f := range filters {
		q = q.Where(datatypes.JSONQuery("data").Equals(f.Value, f.Field))
	}
	return q
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return errors.Wrap(docstore.ErrConflict, pgErr.Message)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrap(docstore.ErrConflict, "concurrent insert")
	}
	if pgconn.Timeout(err) {
		return errors.Wrap(docstore.ErrCommitUnknown, err.Error())
	}
	return err
}

func toDocument(row models.Document) docstore.Document {
	return docstore.Document{
		Collection: row.Collection,
		ID:         row.ID,
		Data:       []byte(row.Data),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

var _ docstore.Store = (*DocumentRepository)(nil)
