package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/docstore/storetest"
)

func TestInstrumentedStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		return NewInstrumentedStore(docstore.NewMemoryStore(), NewStoreMetrics(prometheus.NewRegistry()))
	})
}

func TestInstrumentedStoreCounts(t *testing.T) {
	metrics := NewStoreMetrics(prometheus.NewRegistry())
	s := NewInstrumentedStore(docstore.NewMemoryStore(), metrics)
	ctx := context.Background()

	require.NoError(t, s.BatchWrite(ctx, []docstore.Op{
		docstore.Insert("customers", "a", map[string]string{"name": "A"}),
		docstore.InsertIfAbsent("relationships", "a|b:a", map[string]string{}),
	}))
	err := s.BatchWrite(ctx, []docstore.Op{docstore.DeleteIfExists("scheduled_calls", "missing")})
	require.Error(t, err)
	_, _ = s.Get(ctx, "customers", "a")
	_, _ = s.Query(ctx, "customers")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchOps.WithLabelValues("insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchOps.WithLabelValues("insert_if_absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Commits.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Commits.WithLabelValues("precondition")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Reads.WithLabelValues("get", "customers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Reads.WithLabelValues("query", "customers")))
}

func TestCommitResult(t *testing.T) {
	assert.Equal(t, "conflict", commitResult(docstore.ErrConflict))
	assert.Equal(t, "unknown", commitResult(docstore.ErrCommitUnknown))
	assert.Equal(t, "error", commitResult(docstore.ErrInvalidOp))
}
