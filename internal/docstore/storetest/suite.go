// Package storetest holds the behaviour every docstore backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
)

type item struct {
	Owner string `json:"owner"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// Run executes the conformance suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
			docstore.Insert("items", "a", item{Owner: "x", Kind: "k", Count: 1}),
		}))

		doc, err := s.Get(ctx, "items", "a")
		require.NoError(t, err)
		assert.Equal(t, "items", doc.Collection)
		assert.Equal(t, "a", doc.ID)
		assert.False(t, doc.CreatedAt.IsZero())

		got, err := docstore.Decode[item](doc)
		require.NoError(t, err)
		assert.Equal(t, item{Owner: "x", Kind: "k", Count: 1}, got)

		_, err = s.Get(ctx, "items", "missing")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("BatchIsAllOrNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
			docstore.Insert("items", "a", item{Owner: "x"}),
		}))

		err := s.BatchWrite(ctx, []docstore.Op{
			docstore.Insert("items", "b", item{Owner: "x"}),
			docstore.Delete("items", "a"),
			docstore.Insert("items", "a", item{Owner: "y"}),
			docstore.DeleteIfExists("items", "missing"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, docstore.ErrPreconditionFailed)

		var opErr *docstore.OpError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, 3, opErr.Index)

		_, err = s.Get(ctx, "items", "b")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		doc, err := s.Get(ctx, "items", "a")
		require.NoError(t, err)
		got, err := docstore.Decode[item](doc)
		require.NoError(t, err)
		assert.Equal(t, "x", got.Owner)
	})

	t.Run("InsertExistingFails", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Insert("items", "a", item{Owner: "x"})}))
		err := s.BatchWrite(ctx, []docstore.Op{docstore.Insert("items", "a", item{Owner: "y"})})
		assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
	})

	t.Run("InsertIfAbsentKeepsFirstWrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, owner := range []string{"first", "second"} {
			require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
				docstore.InsertIfAbsent("items", "a", item{Owner: owner}),
			}))
		}

		docs, err := s.Query(ctx, "items")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		got, err := docstore.Decode[item](docs[0])
		require.NoError(t, err)
		assert.Equal(t, "first", got.Owner)
	})

	t.Run("UpdateRequiresDocument", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.BatchWrite(ctx, []docstore.Op{docstore.Update("items", "a", item{Owner: "x"})})
		assert.ErrorIs(t, err, docstore.ErrPreconditionFailed)

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Insert("items", "a", item{Owner: "x"})}))
		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Update("items", "a", item{Owner: "y"})}))

		doc, err := s.Get(ctx, "items", "a")
		require.NoError(t, err)
		got, err := docstore.Decode[item](doc)
		require.NoError(t, err)
		assert.Equal(t, "y", got.Owner)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Insert("items", "a", item{})}))
		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Delete("items", "a")}))
		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Delete("items", "a")}))

		_, err := s.Get(ctx, "items", "a")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("DeleteWhereAndQuery", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
			docstore.Insert("items", "a", item{Owner: "x", Kind: "red"}),
			docstore.Insert("items", "b", item{Owner: "x", Kind: "blue"}),
			docstore.Insert("items", "c", item{Owner: "y", Kind: "red"}),
			docstore.Insert("other", "d", item{Owner: "x", Kind: "red"}),
		}))

		docs, err := s.Query(ctx, "items", docstore.Eq("owner", "x"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, ids(docs))

		docs, err = s.Query(ctx, "items", docstore.Eq("owner", "x"), docstore.Eq("kind", "red"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(docs))

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
			docstore.DeleteWhere("items", docstore.Eq("kind", "red")),
		}))

		docs, err = s.Query(ctx, "items")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(docs))

		docs, err = s.Query(ctx, "other")
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, ids(docs))
	})

	t.Run("DeleteWhereRequiresFilters", func(t *testing.T) {
		s := newStore(t)
		err := s.BatchWrite(context.Background(), []docstore.Op{docstore.DeleteWhere("items")})
		assert.ErrorIs(t, err, docstore.ErrInvalidOp)
	})

	t.Run("AssertExists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.BatchWrite(ctx, []docstore.Op{
			docstore.AssertExists("items", "a"),
			docstore.Insert("items", "b", item{}),
		})
		assert.ErrorIs(t, err, docstore.ErrPreconditionFailed)
		_, err = s.Get(ctx, "items", "b")
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Insert("items", "a", item{})}))
		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
			docstore.AssertExists("items", "a"),
			docstore.Insert("items", "b", item{}),
		}))
	})

	t.Run("ConcurrentConditionalDeleteHasOneWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Insert("calls", "c1", item{})}))

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes []int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.BatchWrite(ctx, []docstore.Op{
					docstore.Insert("history", "h", item{Count: i}),
					docstore.DeleteIfExists("calls", "c1"),
				})
				if err == nil {
					mu.Lock()
					successes = append(successes, i)
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		require.Len(t, successes, 1)
		docs, err := s.Query(ctx, "history")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		got, err := docstore.Decode[item](docs[0])
		require.NoError(t, err)
		assert.Equal(t, successes[0], got.Count)
	})

	t.Run("CascadeDeleteRacingEdgeInsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 10; i++ {
			a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
			require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
				docstore.Insert("customers", a, item{}),
				docstore.Insert("customers", b, item{}),
			}))

			var (
				wg         sync.WaitGroup
				cascadeErr error
				linkErr    error
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				cascadeErr = untilNoConflict(func() error {
					return s.BatchWrite(ctx, []docstore.Op{
						docstore.Delete("customers", a),
						docstore.DeleteWhere("edges", docstore.Eq("owner", a)),
						docstore.DeleteWhere("edges", docstore.Eq("kind", a)),
					})
				})
			}()
			go func() {
				defer wg.Done()
				linkErr = untilNoConflict(func() error {
					return s.BatchWrite(ctx, []docstore.Op{
						docstore.AssertExists("customers", a),
						docstore.AssertExists("customers", b),
						docstore.InsertIfAbsent("edges", a+":"+b, item{Owner: a, Kind: b}),
						docstore.InsertIfAbsent("edges", b+":"+a, item{Owner: b, Kind: a}),
					})
				})
			}()
			wg.Wait()

			require.NoError(t, cascadeErr)
			if linkErr != nil {
				require.ErrorIs(t, linkErr, docstore.ErrPreconditionFailed)
			}

			_, err := s.Get(ctx, "customers", a)
			require.ErrorIs(t, err, docstore.ErrNotFound)
			owned, err := s.Query(ctx, "edges", docstore.Eq("owner", a))
			require.NoError(t, err)
			assert.Empty(t, owned, "edges owned by %s", a)
			pointing, err := s.Query(ctx, "edges", docstore.Eq("kind", a))
			require.NoError(t, err)
			assert.Empty(t, pointing, "edges pointing at %s", a)
		}
	})
}

// untilNoConflict reruns fn while the store reports a write conflict.
func untilNoConflict(fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, docstore.ErrConflict) {
			return err
		}
	}
}

func ids(docs []docstore.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}
