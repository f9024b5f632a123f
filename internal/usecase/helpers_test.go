package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/retry"
)

// faultyStore fails the next n batch writes with err before delegating.
type faultyStore struct {
	docstore.Store
	mu      sync.Mutex
	failing int
	err     error
	batches int
	// commitThenFail applies the batch and still reports err
	commitThenFail bool
	// beforeBatch runs once ahead of the next batch write
	beforeBatch func()
}

func (s *faultyStore) interleave(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeBatch = fn
}

func (s *faultyStore) failNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = n
	s.err = err
}

func (s *faultyStore) BatchWrite(ctx context.Context, ops []docstore.Op) error {
	s.mu.Lock()
	s.batches++
	fail := s.failing > 0
	if fail {
		s.failing--
	}
	err := s.err
	commit := s.commitThenFail
	before := s.beforeBatch
	s.beforeBatch = nil
	s.mu.Unlock()

	if before != nil {
		before()
	}

	if !fail {
		return s.Store.BatchWrite(ctx, ops)
	}
	if commit {
		if cerr := s.Store.BatchWrite(ctx, ops); cerr != nil {
			return cerr
		}
	}
	return err
}

type mockPublisher struct {
	mu     sync.Mutex
	events []crm.Event
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, event crm.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockPublisher) types(customerID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		if e.CustomerID == customerID {
			out = append(out, e.Type)
		}
	}
	return out
}

var (
	errInjectedConflict = fmt.Errorf("injected: %w", docstore.ErrConflict)
	errInjectedUnknown  = fmt.Errorf("injected: %w", docstore.ErrCommitUnknown)
	errPublish          = errors.New("redis down")
)

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

type fixture struct {
	store         *faultyStore
	publisher     *mockPublisher
	customers     *CustomerUsecase
	relationships *RelationshipUsecase
	calls         *CallUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &faultyStore{Store: docstore.NewMemoryStore()}
	pub := &mockPublisher{}
	logger := zap.NewNop()

	rel := NewRelationshipUsecase(store, pub, fastRetry(), logger)
	return &fixture{
		store:         store,
		publisher:     pub,
		relationships: rel,
		customers:     NewCustomerUsecase(store, pub, rel, fastRetry(), logger),
		calls:         NewCallUsecase(store, pub, fastRetry(), logger),
	}
}

func (f *fixture) customer(t *testing.T, name string) string {
	t.Helper()
	c, err := f.customers.Create(context.Background(), crm.CustomerRequest{Name: name, Type: "CPA"})
	if err != nil {
		t.Fatalf("create customer %s: %v", name, err)
	}
	return c.ID
}

func (f *fixture) scheduled(t *testing.T, customerID string) string {
	t.Helper()
	call, err := f.calls.ScheduleCall(context.Background(), crm.ScheduleCallRequest{
		CustomerID:    customerID,
		ScheduledDate: "2024-05-01",
		ScheduledTime: "10:30",
		Priority:      "high",
		Purpose:       "renewal",
	})
	if err != nil {
		t.Fatalf("schedule call: %v", err)
	}
	return call.ID
}
