package telemetry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
)

type StoreMetrics struct {
	BatchOps      *prometheus.CounterVec
	Commits       *prometheus.CounterVec
	CommitSeconds prometheus.Histogram
	Reads         *prometheus.CounterVec
}

func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	factory := promauto.With(reg)
	return &StoreMetrics{
		BatchOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crm",
				Subsystem: "store",
				Name:      "batch_ops_total",
				Help:      "Batch operations submitted, by kind",
			},
			[]string{"kind"},
		),
		Commits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crm",
				Subsystem: "store",
				Name:      "commits_total",
				Help:      "Batch commits, by result",
			},
			[]string{"result"},
		),
		CommitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "crm",
				Subsystem: "store",
				Name:      "commit_seconds",
				Help:      "Duration of batch commits in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		Reads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crm",
				Subsystem: "store",
				Name:      "reads_total",
				Help:      "Reads, by operation and collection",
			},
			[]string{"op", "collection"},
		),
	}
}

// InstrumentedStore counts and times every call into the wrapped store.
type InstrumentedStore struct {
	next    docstore.Store
	metrics *StoreMetrics
}

func NewInstrumentedStore(next docstore.Store, metrics *StoreMetrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, metrics: metrics}
}

func (s *InstrumentedStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.metrics.Reads.WithLabelValues("get", collection).Inc()
	return s.next.Get(ctx, collection, id)
}

func (s *InstrumentedStore) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	s.metrics.Reads.WithLabelValues("query", collection).Inc()
	return s.next.Query(ctx, collection, filters...)
}

func (s *InstrumentedStore) BatchWrite(ctx context.Context, ops []docstore.Op) error {
	for _, op := range ops {
		s.metrics.BatchOps.WithLabelValues(op.Kind.String()).Inc()
	}

	start := time.Now()
	err := s.next.BatchWrite(ctx, ops)
	s.metrics.CommitSeconds.Observe(time.Since(start).Seconds())
	s.metrics.Commits.WithLabelValues(commitResult(err)).Inc()
	return err
}

func commitResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, docstore.ErrConflict):
		return "conflict"
	case errors.Is(err, docstore.ErrCommitUnknown):
		return "unknown"
	case errors.Is(err, docstore.ErrPreconditionFailed), errors.Is(err, docstore.ErrAlreadyExists):
		return "precondition"
	default:
		return "error"
	}
}

var _ docstore.Store = (*InstrumentedStore)(nil)
