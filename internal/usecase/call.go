package usecase

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
	"github.com/isey69/sale-forces-crm-sub000/internal/retry"
)

// CallUsecase drives a scheduled call to exactly one terminal state:
// cancelled, or logged into a single history entry.
type CallUsecase struct {
	deps
	retry *retry.Config
}

func NewCallUsecase(
	store docstore.Store,
	publisher EventPublisher,
	retryConfig *retry.Config,
	logger *zap.Logger,
) *CallUsecase {
	return &CallUsecase{
		deps:  newDeps(store, publisher, logger, "call"),
		retry: retryConfig,
	}
}

// ScheduleCall creates a new scheduled call for an existing customer.
// Several calls may share a customer and slot.
func (uc *CallUsecase) ScheduleCall(ctx context.Context, input crm.ScheduleCallRequest) (domain.ScheduledCall, error) {
	ctx, span := tracer.Start(ctx, "Call.Usecase.ScheduleCall",
		trace.WithAttributes(attribute.String("customer.id", input.CustomerID)))
	defer span.End()

	if err := validateInput(input); err != nil {
		return domain.ScheduledCall{}, fail(span, err)
	}

	call := domain.ScheduledCall{
		ID:            crm.NewID(),
		CustomerID:    input.CustomerID,
		ScheduledDate: input.ScheduledDate,
		ScheduledTime: input.ScheduledTime,
		Priority:      domain.Priority(input.Priority),
		Purpose:       input.Purpose,
		Status:        domain.CallStatusScheduled,
		CreatedAt:     uc.now(),
	}

	err := retry.Do(ctx, uc.retry, isConflict, func() error {
		return translateStoreError("schedule call", uc.store.BatchWrite(ctx, []docstore.Op{
			docstore.AssertExists(domain.CollectionCustomers, call.CustomerID),
			docstore.Insert(domain.CollectionScheduledCalls, call.ID, call),
		}))
	})
	if err != nil {
		return domain.ScheduledCall{}, fail(span, err)
	}

	span.SetAttributes(attribute.String("call.id", call.ID))
	uc.emit(ctx, crm.EventCallScheduled, call.CustomerID, call.ID)
	return call, nil
}

func (uc *CallUsecase) GetScheduledCall(ctx context.Context, id string) (domain.ScheduledCall, error) {
	ctx, span := tracer.Start(ctx, "Call.Usecase.GetScheduledCall", trace.WithAttributes(attribute.String("call.id", id)))
	defer span.End()

	call, err := uc.getScheduledCall(ctx, id)
	if err != nil {
		return domain.ScheduledCall{}, fail(span, err)
	}
	return call, nil
}

func (uc *CallUsecase) getScheduledCall(ctx context.Context, id string) (domain.ScheduledCall, error) {
	doc, err := uc.store.Get(ctx, domain.CollectionScheduledCalls, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.ScheduledCall{}, domain.NotFoundError{Resource: "scheduled call", ID: id}
	}
	if err != nil {
		return domain.ScheduledCall{}, translateStoreError("get scheduled call", err)
	}
	return docstore.Decode[domain.ScheduledCall](doc)
}

// ListScheduledCalls returns the open calls of a customer, soonest first.
func (uc *CallUsecase) ListScheduledCalls(ctx context.Context, customerID string) ([]domain.ScheduledCall, error) {
	ctx, span := tracer.Start(ctx, "Call.Usecase.ListScheduledCalls",
		trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	calls, err := uc.scheduledCalls(ctx, customerID)
	if err != nil {
		return nil, fail(span, err)
	}
	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].ScheduledDate != calls[j].ScheduledDate {
			return calls[i].ScheduledDate < calls[j].ScheduledDate
		}
		return calls[i].ScheduledTime < calls[j].ScheduledTime
	})
	return calls, nil
}

// LogOutcome converts a scheduled call into its history entry. The entry id
// is derived from the call id and the call is removed with a conditional
// delete in the same batch, so of two racing loggers only one succeeds and
// the other gets a NotFoundError.
func (uc *CallUsecase) LogOutcome(ctx context.Context, id string, input crm.LogOutcomeRequest) (domain.CallHistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "Call.Usecase.LogOutcome", trace.WithAttributes(attribute.String("call.id", id)))
	defer span.End()

	if id == "" {
		return domain.CallHistoryEntry{}, fail(span, domain.ValidationError{Field: "id", Message: "is required"})
	}
	if err := validateInput(input); err != nil {
		return domain.CallHistoryEntry{}, fail(span, err)
	}

	entry, err := retry.DoWithResult(ctx, uc.retry, isConflict, func() (domain.CallHistoryEntry, error) {
		call, err := uc.getScheduledCall(ctx, id)
		if err != nil {
			return domain.CallHistoryEntry{}, err
		}

		now := uc.now()
		date, clock := uc.effectiveDateTime(input.Date, input.Time)
		linked := call.ID
		entry := domain.CallHistoryEntry{
			ID:                    crm.LinkedHistoryID(call.ID),
			CustomerID:            call.CustomerID,
			Date:                  date,
			Time:                  clock,
			Duration:              input.Duration,
			Status:                domain.CallStatus(input.Status),
			Notes:                 input.Notes,
			CallType:              domain.CallTypeOutbound,
			LinkedScheduledCallID: &linked,
			CreatedAt:             now,
		}

		err = uc.store.BatchWrite(ctx, []docstore.Op{
			docstore.Insert(domain.CollectionCallHistory, entry.ID, entry),
			docstore.DeleteIfExists(domain.CollectionScheduledCalls, call.ID),
		})
		if errors.Is(err, docstore.ErrAlreadyExists) || errors.Is(err, docstore.ErrPreconditionFailed) {
			// another logger or a cancel got there first
			return domain.CallHistoryEntry{}, domain.NotFoundError{Resource: "scheduled call", ID: id}
		}
		return entry, translateStoreError("log outcome", err)
	})
	if err != nil {
		return domain.CallHistoryEntry{}, fail(span, err)
	}

	uc.logger.Debug("call logged", zap.String("call_id", id), zap.String("status", input.Status))
	uc.emit(ctx, crm.EventCallLogged, entry.CustomerID, entry.ID)
	return entry, nil
}

// CancelScheduledCall deletes a scheduled call without creating history.
// Cancelling a call that is already gone is a no-op, and only the caller
// that actually removed the call emits the cancel event.
func (uc *CallUsecase) CancelScheduledCall(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Call.Usecase.CancelScheduledCall", trace.WithAttributes(attribute.String("call.id", id)))
	defer span.End()

	if id == "" {
		return fail(span, domain.ValidationError{Field: "id", Message: "is required"})
	}

	call, err := uc.getScheduledCall(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fail(span, err)
	}

	cancelled := false
	err = retry.Do(ctx, uc.retry, isConflict, func() error {
		err := uc.store.BatchWrite(ctx, []docstore.Op{
			docstore.DeleteIfExists(domain.CollectionScheduledCalls, id),
		})
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			// logged or cancelled by someone else since the read
			cancelled = false
			return nil
		}
		cancelled = err == nil
		return translateStoreError("cancel scheduled call", err)
	})
	if err != nil {
		return fail(span, err)
	}

	if cancelled {
		uc.emit(ctx, crm.EventCallCancelled, call.CustomerID, id)
	}
	return nil
}

// AddAdHocHistoryEntry records a call that was never scheduled.
func (uc *CallUsecase) AddAdHocHistoryEntry(ctx context.Context, customerID string, input crm.HistoryEntryRequest) (domain.CallHistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "Call.Usecase.AddAdHocHistoryEntry",
		trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	if customerID == "" {
		return domain.CallHistoryEntry{}, fail(span, domain.ValidationError{Field: "customerId", Message: "is required"})
	}
	if err := validateInput(input); err != nil {
		return domain.CallHistoryEntry{}, fail(span, err)
	}

	callType := domain.CallTypeOutbound
	if input.CallType != "" {
		callType = domain.CallType(input.CallType)
	}
	date, clock := uc.effectiveDateTime(input.Date, input.Time)
	entry := domain.CallHistoryEntry{
		ID:         crm.NewID(),
		CustomerID: customerID,
		Date:       date,
		Time:       clock,
		Duration:   input.Duration,
		Status:     domain.CallStatus(input.Status),
		Notes:      input.Notes,
		CallType:   callType,
		CreatedAt:  uc.now(),
	}

	err := retry.Do(ctx, uc.retry, isConflict, func() error {
		return translateStoreError("add history entry", uc.store.BatchWrite(ctx, []docstore.Op{
			docstore.AssertExists(domain.CollectionCustomers, customerID),
			docstore.Insert(domain.CollectionCallHistory, entry.ID, entry),
		}))
	})
	if err != nil {
		return domain.CallHistoryEntry{}, fail(span, err)
	}

	uc.emit(ctx, crm.EventHistoryAdded, customerID, entry.ID)
	return entry, nil
}

// ListCallHistory returns the history of a customer, newest first.
func (uc *CallUsecase) ListCallHistory(ctx context.Context, customerID string) ([]domain.CallHistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "Call.Usecase.ListCallHistory",
		trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	entries, err := uc.history(ctx, customerID)
	if err != nil {
		return nil, fail(span, err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date > entries[j].Date
		}
		if entries[i].Time != entries[j].Time {
			return entries[i].Time > entries[j].Time
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// DeleteHistoryEntry is the only way a history entry is ever removed.
func (uc *CallUsecase) DeleteHistoryEntry(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Call.Usecase.DeleteHistoryEntry", trace.WithAttributes(attribute.String("history.id", id)))
	defer span.End()

	if id == "" {
		return fail(span, domain.ValidationError{Field: "id", Message: "is required"})
	}

	var entry domain.CallHistoryEntry
	err := retry.Do(ctx, uc.retry, isConflict, func() error {
		doc, err := uc.store.Get(ctx, domain.CollectionCallHistory, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.NotFoundError{Resource: "call history entry", ID: id}
		}
		if err != nil {
			return translateStoreError("delete history entry", err)
		}
		if entry, err = docstore.Decode[domain.CallHistoryEntry](doc); err != nil {
			return err
		}
		return translateStoreError("delete history entry", uc.store.BatchWrite(ctx, []docstore.Op{
			docstore.DeleteIfExists(domain.CollectionCallHistory, id),
		}))
	})
	if err != nil {
		return fail(span, err)
	}

	uc.emit(ctx, crm.EventHistoryDeleted, entry.CustomerID, id)
	return nil
}

// GetStatistics counts the stored history and open calls of a customer on
// every request. TotalCalls counts history entries only.
func (uc *CallUsecase) GetStatistics(ctx context.Context, customerID string) (domain.CallStatistics, error) {
	ctx, span := tracer.Start(ctx, "Call.Usecase.GetStatistics",
		trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	entries, err := uc.history(ctx, customerID)
	if err != nil {
		return domain.CallStatistics{}, fail(span, err)
	}
	calls, err := uc.scheduledCalls(ctx, customerID)
	if err != nil {
		return domain.CallStatistics{}, fail(span, err)
	}

	stats := domain.CallStatistics{
		CustomerID: customerID,
		TotalCalls: len(entries),
		Scheduled:  len(calls),
	}
	for _, entry := range entries {
		switch entry.Status {
		case domain.CallStatusCompleted:
			stats.Completed++
		case domain.CallStatusNoAnswer:
			stats.NoAnswer++
		case domain.CallStatusPostponed:
			stats.Postponed++
		}
	}
	return stats, nil
}

func (uc *CallUsecase) scheduledCalls(ctx context.Context, customerID string) ([]domain.ScheduledCall, error) {
	if customerID == "" {
		return nil, domain.ValidationError{Field: "customerId", Message: "is required"}
	}
	docs, err := uc.store.Query(ctx, domain.CollectionScheduledCalls, docstore.Eq("customerId", customerID))
	if err != nil {
		return nil, translateStoreError("list scheduled calls", err)
	}
	return docstore.DecodeAll[domain.ScheduledCall](docs)
}

func (uc *CallUsecase) history(ctx context.Context, customerID string) ([]domain.CallHistoryEntry, error) {
	if customerID == "" {
		return nil, domain.ValidationError{Field: "customerId", Message: "is required"}
	}
	docs, err := uc.store.Query(ctx, domain.CollectionCallHistory, docstore.Eq("customerId", customerID))
	if err != nil {
		return nil, translateStoreError("list call history", err)
	}
	return docstore.DecodeAll[domain.CallHistoryEntry](docs)
}

// effectiveDateTime uses the explicit date and time only when both are
// given, and the current time otherwise.
func (uc *CallUsecase) effectiveDateTime(date, clock string) (string, string) {
	if date != "" && clock != "" {
		return date, clock
	}
	now := uc.now()
	return now.Format(domain.DateLayout), now.Format(domain.TimeLayout)
}
