package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
)

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCustomerCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/customers", r.URL.Path)
		var req crm.CustomerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Alice", req.Name)
		assert.Equal(t, "NonCPA", req.Type)
		assert.Equal(t, []string{"vip", "tax"}, req.Labels)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.Customer{ID: "c1", Name: req.Name})
	}))
	defer srv.Close()

	out, err := run(t, srv.URL, "customer", "create", "--name", "Alice", "--type", "NonCPA", "--label", "vip", "--label", "tax")
	require.NoError(t, err)

	var customer domain.Customer
	require.NoError(t, json.Unmarshal([]byte(out), &customer))
	assert.Equal(t, "c1", customer.ID)
}

func TestCallLogSendsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calls/call-1/outcome", r.URL.Path)
		var req crm.LogOutcomeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "no_answer", req.Status)
		assert.Equal(t, 5, req.Duration)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.CallHistoryEntry{ID: "h1", Status: domain.CallStatusNoAnswer})
	}))
	defer srv.Close()

	_, err := run(t, srv.URL, "call", "log", "call-1", "--status", "no_answer", "--duration", "5")
	require.NoError(t, err)
}

func TestRelationshipAddReportsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(crm.ErrorResponse{Error: "customer not found: b", Kind: "not_found"})
	}))
	defer srv.Close()

	_, err := run(t, srv.URL, "relationship", "add", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer not found: b")
}
