package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/docstore/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		return docstore.NewMemoryStore()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := docstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.BatchWrite(ctx, []docstore.Op{docstore.Insert("items", "a", map[string]string{"k": "v"})}))

	doc, err := s.Get(ctx, "items", "a")
	require.NoError(t, err)
	doc.Data[0] = 'X'

	again, err := s.Get(ctx, "items", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(again.Data))
}

func TestMatch(t *testing.T) {
	data := []byte(`{"owner":"a","count":3,"flag":true}`)

	cases := []struct {
		name    string
		filters []docstore.Filter
		want    bool
	}{
		{"no filters", nil, true},
		{"string match", []docstore.Filter{docstore.Eq("owner", "a")}, true},
		{"string mismatch", []docstore.Filter{docstore.Eq("owner", "b")}, false},
		{"number as text", []docstore.Filter{docstore.Eq("count", "3")}, true},
		{"bool as text", []docstore.Filter{docstore.Eq("flag", "true")}, true},
		{"missing field", []docstore.Filter{docstore.Eq("nope", "a")}, false},
		{"all must hold", []docstore.Filter{docstore.Eq("owner", "a"), docstore.Eq("count", "4")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := docstore.Match(data, tc.filters)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOpValidate(t *testing.T) {
	assert.ErrorIs(t, docstore.Insert("", "a", nil).Validate(), docstore.ErrInvalidOp)
	assert.ErrorIs(t, docstore.Delete("items", "").Validate(), docstore.ErrInvalidOp)
	assert.ErrorIs(t, docstore.Op{Collection: "items", ID: "a"}.Validate(), docstore.ErrUnsupportedOp)
	assert.NoError(t, docstore.DeleteWhere("items", docstore.Eq("a", "b")).Validate())
}
