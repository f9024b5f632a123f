package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
	"github.com/isey69/sale-forces-crm-sub000/internal/retry"
)

var fastRetry = &retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

type recorder struct {
	mu   sync.Mutex
	keys []string
	hits int
}

func (r *recorder) record(req *http.Request) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, req.Header.Get(headerIdempotencyKey))
	r.hits++
	return r.hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestMutationRetriesKeepIdempotencyKey(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch rec.record(r) {
		case 1:
			writeJSON(w, http.StatusServiceUnavailable, crm.ErrorResponse{Error: "down", Kind: "internal"})
		case 2:
			writeJSON(w, http.StatusConflict, crm.ErrorResponse{Error: "retry the operation", Kind: "consistency"})
		default:
			writeJSON(w, http.StatusCreated, domain.ScheduledCall{ID: "call-1", CustomerID: "c1"})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(fastRetry))
	call, err := c.ScheduleCall(context.Background(), crm.ScheduleCallRequest{CustomerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "call-1", call.ID)

	require.Len(t, rec.keys, 3)
	assert.NotEmpty(t, rec.keys[0])
	assert.Equal(t, rec.keys[0], rec.keys[1])
	assert.Equal(t, rec.keys[0], rec.keys[2])
}

func TestNotFoundIsNotRetried(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeJSON(w, http.StatusNotFound, crm.ErrorResponse{Error: "scheduled call not found: x", Kind: "not_found"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(fastRetry))
	_, err := c.LogOutcome(context.Background(), "x", crm.LogOutcomeRequest{Status: "completed"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.NotFound())
	assert.Equal(t, "not_found", apiErr.Kind)
	assert.Equal(t, 1, rec.hits)
}

func TestReadsCarryNoIdempotencyKey(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		assert.Equal(t, "/customers/c1/statistics", r.URL.Path)
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, domain.CallStatistics{CustomerID: "c1", TotalCalls: 2})
	}))
	defer srv.Close()

	stats, err := New(srv.URL).Statistics(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCalls)
	assert.Equal(t, []string{""}, rec.keys)
}

func TestGetCustomerAlwaysReadsServer(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeJSON(w, http.StatusOK, domain.Customer{ID: "c1", Name: "Alice"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	for i := 0; i < 2; i++ {
		customer, err := c.GetCustomer(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", customer.Name)
	}
	assert.Equal(t, 2, rec.hits)
}

func TestRemoveRelationshipEncodesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "a b", r.URL.Query().Get("a"))
		assert.Equal(t, "c", r.URL.Query().Get("b"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).RemoveRelationship(context.Background(), "a b", "c"))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&APIError{Status: http.StatusConflict}))
	assert.True(t, retryable(&APIError{Status: http.StatusBadGateway}))
	assert.False(t, retryable(&APIError{Status: http.StatusBadRequest}))
	assert.False(t, retryable(context.Canceled))
}
