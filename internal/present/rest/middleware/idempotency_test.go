package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
	"github.com/isey69/sale-forces-crm-sub000/internal/infra/gateway"
)

type failingStore struct{}

func (failingStore) Reserve(ctx context.Context, key string, fp uint64, ttl time.Duration) (domain.IdempotencyRecord, bool, error) {
	return domain.IdempotencyRecord{}, false, errors.New("memcached down")
}
func (failingStore) Complete(ctx context.Context, key string, r domain.IdempotencyRecord, ttl time.Duration) error {
	return nil
}
func (failingStore) Release(ctx context.Context, key string) error { return nil }

func newServer(store IdempotencyStore, status int, calls *int) *echo.Echo {
	e := echo.New()
	mw := NewIdempotencyMiddleware(store, time.Minute, zap.NewNop())
	e.POST("/calls", func(c echo.Context) error {
		*calls++
		return c.JSON(status, map[string]int{"n": *calls})
	}, mw.Handle)
	e.GET("/calls", func(c echo.Context) error {
		*calls++
		return c.JSON(http.StatusOK, map[string]int{"n": *calls})
	}, mw.Handle)
	return e
}

func do(e *echo.Echo, method, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/calls", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIdempotentReplay(t *testing.T) {
	calls := 0
	e := newServer(gateway.NewCacheIdempotencyStore(time.Minute), http.StatusCreated, &calls)

	first := do(e, http.MethodPost, "k1", `{"a":1}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := do(e, http.MethodPost, "k1", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyKeyReuseWithDifferentBody(t *testing.T) {
	calls := 0
	e := newServer(gateway.NewCacheIdempotencyStore(time.Minute), http.StatusCreated, &calls)

	do(e, http.MethodPost, "k1", `{"a":1}`)
	rec := do(e, http.MethodPost, "k1", `{"a":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyPendingKeyConflicts(t *testing.T) {
	store := gateway.NewCacheIdempotencyStore(time.Minute)
	body := `{"a":1}`
	_, reserved, err := store.Reserve(context.Background(), StorageKey("k1"), Fingerprint(http.MethodPost, "/calls", []byte(body)), time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)

	calls := 0
	e := newServer(store, http.StatusCreated, &calls)
	rec := do(e, http.MethodPost, "k1", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, calls)
}

func TestIdempotencyRetryableResponsesAreNotStored(t *testing.T) {
	calls := 0
	e := newServer(gateway.NewCacheIdempotencyStore(time.Minute), http.StatusConflict, &calls)

	do(e, http.MethodPost, "k1", `{}`)
	rec := do(e, http.MethodPost, "k1", `{}`)
	assert.Empty(t, rec.Header().Get(HeaderReplayed))
	assert.Equal(t, 2, calls)
}

func TestIdempotencyIgnoresReadsAndMissingKeys(t *testing.T) {
	calls := 0
	e := newServer(gateway.NewCacheIdempotencyStore(time.Minute), http.StatusCreated, &calls)

	do(e, http.MethodGet, "k1", "")
	do(e, http.MethodGet, "k1", "")
	do(e, http.MethodPost, "", `{}`)
	do(e, http.MethodPost, "", `{}`)
	assert.Equal(t, 4, calls)
}

func TestIdempotencyFailsOpen(t *testing.T) {
	calls := 0
	e := newServer(failingStore{}, http.StatusCreated, &calls)

	rec := do(e, http.MethodPost, "k1", `{}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestFingerprintCoversMethodPathAndBody(t *testing.T) {
	base := Fingerprint(http.MethodPost, "/calls", []byte("x"))
	assert.Equal(t, base, Fingerprint(http.MethodPost, "/calls", []byte("x")))
	assert.NotEqual(t, base, Fingerprint(http.MethodPut, "/calls", []byte("x")))
	assert.NotEqual(t, base, Fingerprint(http.MethodPost, "/calls/1", []byte("x")))
	assert.NotEqual(t, base, Fingerprint(http.MethodPost, "/calls", []byte("y")))
	assert.Len(t, StorageKey("anything at all"), 32)
}
