package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
)

var tracer = otel.Tracer("crm/usecase")

// EventPublisher announces committed changes to listeners of a customer.
type EventPublisher interface {
	Publish(ctx context.Context, event crm.Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event crm.Event) error { return nil }

// deps is shared by every usecase.
type deps struct {
	store     docstore.Store
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func newDeps(store docstore.Store, publisher EventPublisher, logger *zap.Logger, name string) deps {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return deps{
		store:     store,
		publisher: publisher,
		logger:    logger.Named(name),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// emit publishes after a commit. The write already happened, so a failed
// publish is only logged.
func (d deps) emit(ctx context.Context, eventType, customerID, resourceID string) {
	event := crm.Event{
		Type:       eventType,
		CustomerID: customerID,
		ResourceID: resourceID,
		Timestamp:  d.now(),
	}
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Warn("failed to publish event",
			zap.String("type", eventType),
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
	}
}

// fail records err on the span and returns it.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	return err
}

// translateStoreError maps store errors onto the domain error kinds. A batch
// op that failed its existence precondition names the missing document.
func translateStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrPreconditionFailed):
		var opErr *docstore.OpError
		if errors.As(err, &opErr) {
			return domain.NotFoundError{Resource: resourceName(opErr.Op.Collection), ID: opErr.Op.ID}
		}
		return domain.NotFoundError{}
	case errors.Is(err, docstore.ErrConflict), errors.Is(err, docstore.ErrCommitUnknown):
		return domain.ConsistencyError{Op: op, Err: err}
	default:
		return errors.Wrap(err, op)
	}
}

func resourceName(collection string) string {
	switch collection {
	case domain.CollectionCustomers:
		return "customer"
	case domain.CollectionRelationships:
		return "relationship"
	case domain.CollectionScheduledCalls:
		return "scheduled call"
	case domain.CollectionCallHistory:
		return "call history entry"
	default:
		return collection
	}
}

// isConflict reports a commit the store rejected without writing anything,
// which is always safe to re-run.
func isConflict(err error) bool {
	return errors.Is(err, docstore.ErrConflict)
}

// isConsistency also admits commits with an unknown outcome. Only idempotent
// operations retry on it.
func isConsistency(err error) bool {
	return errors.Is(err, domain.ErrConsistency)
}
