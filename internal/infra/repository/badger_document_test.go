package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/docstore/storetest"
	"github.com/isey69/sale-forces-crm-sub000/internal/infra/database"
)

func newBadgerStore(t *testing.T) docstore.Store {
	return newBadgerRepo(t)
}

func newBadgerRepo(t *testing.T) *BadgerDocumentRepository {
	t.Helper()
	db, err := database.NewBadger("", true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBadgerDocumentRepository(db)
}

type edge struct {
	Owner string `json:"owner"`
	Other string `json:"other"`
}

func cascadeOps(id string) []docstore.Op {
	return []docstore.Op{
		docstore.Delete("customers", id),
		docstore.DeleteWhere("edges", docstore.Eq("owner", id)),
		docstore.DeleteWhere("edges", docstore.Eq("other", id)),
	}
}

func linkOps(a, b string) []docstore.Op {
	return []docstore.Op{
		docstore.AssertExists("customers", a),
		docstore.AssertExists("customers", b),
		docstore.InsertIfAbsent("edges", a+":"+b, edge{Owner: a, Other: b}),
		docstore.InsertIfAbsent("edges", b+":"+a, edge{Owner: b, Other: a}),
	}
}

func seedCustomers(t *testing.T, r *BadgerDocumentRepository, ids ...string) {
	t.Helper()
	ops := make([]docstore.Op, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, docstore.Insert("customers", id, edge{Owner: id}))
	}
	require.NoError(t, r.BatchWrite(context.Background(), ops))
}

func edgesMentioning(t *testing.T, r *BadgerDocumentRepository, id string) int {
	t.Helper()
	ctx := context.Background()
	owned, err := r.Query(ctx, "edges", docstore.Eq("owner", id))
	require.NoError(t, err)
	other, err := r.Query(ctx, "edges", docstore.Eq("other", id))
	require.NoError(t, err)
	return len(owned) + len(other)
}

func TestBadgerCascadeConflictsWithLinkCommittedMeanwhile(t *testing.T) {
	r := newBadgerRepo(t)
	ctx := context.Background()
	seedCustomers(t, r, "a", "b")

	txn := r.db.NewTransaction(true)
	defer txn.Discard()
	require.NoError(t, r.stage(txn, cascadeOps("a")))

	require.NoError(t, r.BatchWrite(ctx, linkOps("a", "b")))

	err := commitBadger(txn)
	require.ErrorIs(t, err, docstore.ErrConflict)

	// the caller retries the cascade and sweeps the new edges
	require.NoError(t, r.BatchWrite(ctx, cascadeOps("a")))
	_, err = r.Get(ctx, "customers", "a")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Zero(t, edgesMentioning(t, r, "a"))
}

func TestBadgerLinkConflictsWithCascadeCommittedMeanwhile(t *testing.T) {
	r := newBadgerRepo(t)
	ctx := context.Background()
	seedCustomers(t, r, "a", "b")

	txn := r.db.NewTransaction(true)
	defer txn.Discard()
	require.NoError(t, r.stage(txn, linkOps("a", "b")))

	require.NoError(t, r.BatchWrite(ctx, cascadeOps("a")))

	err := commitBadger(txn)
	require.ErrorIs(t, err, docstore.ErrConflict)

	err = r.BatchWrite(ctx, linkOps("a", "b"))
	assert.ErrorIs(t, err, docstore.ErrPreconditionFailed)
	assert.Zero(t, edgesMentioning(t, r, "a"))
}

func TestBadgerConcurrentAssertsOnSameKeyConflict(t *testing.T) {
	r := newBadgerRepo(t)
	seedCustomers(t, r, "a")

	txn := r.db.NewTransaction(true)
	defer txn.Discard()
	require.NoError(t, r.stage(txn, []docstore.Op{
		docstore.AssertExists("customers", "a"),
		docstore.Insert("calls", "1", edge{Owner: "a"}),
	}))

	require.NoError(t, r.BatchWrite(context.Background(), []docstore.Op{
		docstore.AssertExists("customers", "a"),
		docstore.Insert("calls", "2", edge{Owner: "a"}),
	}))

	assert.ErrorIs(t, commitBadger(txn), docstore.ErrConflict)
}

func TestBadgerDocumentRepository(t *testing.T) {
	storetest.Run(t, newBadgerStore)
}

func TestBadgerCollectionsDoNotOverlap(t *testing.T) {
	s := newBadgerStore(t)
	ctx := context.Background()

	require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
		docstore.Insert("call", "1", map[string]string{"k": "a"}),
		docstore.Insert("calls", "1", map[string]string{"k": "b"}),
	}))

	docs, err := s.Query(ctx, "call")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"k":"a"}`, string(docs[0].Data))
}
