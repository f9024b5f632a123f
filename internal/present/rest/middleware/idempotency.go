package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
	"github.com/isey69/sale-forces-crm-sub000/internal/present/rest/presenter"
)

var tracer = otel.Tracer("crm/middleware")

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, fingerprint uint64, ttl time.Duration) (domain.IdempotencyRecord, bool, error)
	Complete(ctx context.Context, key string, record domain.IdempotencyRecord, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// IdempotencyMiddleware replays the stored response of a mutating request
// whose Idempotency-Key was seen before. The key is bound to a fingerprint
// of method, path and body.
type IdempotencyMiddleware struct {
	store  IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewIdempotencyMiddleware(store IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		store:  store,
		ttl:    ttl,
		logger: logger.Named("idempotency"),
	}
}

func (m *IdempotencyMiddleware) Handle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		key := req.Header.Get(HeaderIdempotencyKey)
		if key == "" || !isMutation(req.Method) {
			return next(c)
		}

		ctx, span := tracer.Start(req.Context(), "Idempotency.Middleware.Handle")
		defer span.End()

		body, err := io.ReadAll(req.Body)
		if err != nil {
			return presenter.BadRequest(c, err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := Fingerprint(req.Method, req.URL.RequestURI(), body)
		storageKey := StorageKey(key)
		span.SetAttributes(attribute.String("idempotency.key", storageKey))

		record, reserved, err := m.store.Reserve(ctx, storageKey, fingerprint, m.ttl)
		if err != nil {
			// without a replay store the request is handled as if no key was sent
			m.logger.Warn("idempotency store unavailable", zap.Error(err))
			span.RecordError(err)
			return next(c)
		}

		if !reserved {
			switch {
			case record.Fingerprint != fingerprint:
				return c.JSON(http.StatusUnprocessableEntity, crm.ErrorResponse{
					Error: "idempotency key reused with a different request",
					Kind:  presenter.KindValidation,
				})
			case record.Pending():
				return presenter.Conflict(c, "a request with this idempotency key is in progress")
			default:
				span.SetAttributes(attribute.Bool("idempotency.replayed", true))
				c.Response().Header().Set(HeaderReplayed, "true")
				if len(record.Body) == 0 {
					return c.NoContent(record.Status)
				}
				return c.Blob(record.Status, record.ContentType, record.Body)
			}
		}

		var captured []byte
		handler := echomw.BodyDump(func(c echo.Context, reqBody, resBody []byte) {
			captured = resBody
		})(next)

		herr := handler(c)
		status := c.Response().Status
		if herr != nil || !c.Response().Committed || !replayable(status) {
			if err := m.store.Release(context.WithoutCancel(ctx), storageKey); err != nil {
				m.logger.Warn("failed to release idempotency key", zap.Error(err))
			}
			return herr
		}

		err = m.store.Complete(context.WithoutCancel(ctx), storageKey, domain.IdempotencyRecord{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: c.Response().Header().Get(echo.HeaderContentType),
			Body:        captured,
		}, m.ttl)
		if err != nil {
			m.logger.Warn("failed to store idempotent response", zap.Error(err))
		}
		return nil
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// replayable excludes outcomes a retry may change: 409 asks for a retry and
// 5xx may be transient.
func replayable(status int) bool {
	return status != http.StatusConflict && status < http.StatusInternalServerError
}

func Fingerprint(method, uri string, body []byte) uint64 {
	h := xxh3.New()
	_, _ = h.WriteString(method)
	_, _ = h.WriteString("\n")
	_, _ = h.WriteString(uri)
	_, _ = h.WriteString("\n")
	_, _ = h.Write(body)
	return h.Sum64()
}

// StorageKey hashes the client key so any header value is a valid cache key.
func StorageKey(key string) string {
	sum := xxh3.HashString128(key).Bytes()
	return hex.EncodeToString(sum[:])
}
