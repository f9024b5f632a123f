package presenter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
)

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"not found", domain.NotFoundError{Resource: "customer", ID: "c1"}, http.StatusNotFound, KindNotFound},
		{"validation", domain.ValidationError{Field: "priority", Message: "bad"}, http.StatusBadRequest, KindValidation},
		{"consistency", domain.ConsistencyError{Op: "log outcome", Err: errors.New("conflict")}, http.StatusConflict, KindConsistency},
		{"other", errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}

	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, Error(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)

			var body crm.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.kind, body.Kind)
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, InternalError(c, errors.New("dsn=secret")))
	assert.NotContains(t, rec.Body.String(), "secret")
}
