package usecase

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
	"github.com/isey69/sale-forces-crm-sub000/internal/retry"
)

// CustomerUsecase is plain single-document CRUD except for Delete, which
// goes through the relationship graph so no edge outlives its customer.
type CustomerUsecase struct {
	deps
	relationships *RelationshipUsecase
	retry         *retry.Config
}

func NewCustomerUsecase(
	store docstore.Store,
	publisher EventPublisher,
	relationships *RelationshipUsecase,
	retryConfig *retry.Config,
	logger *zap.Logger,
) *CustomerUsecase {
	return &CustomerUsecase{
		deps:          newDeps(store, publisher, logger, "customer"),
		relationships: relationships,
		retry:         retryConfig,
	}
}

func (uc *CustomerUsecase) Create(ctx context.Context, input crm.CustomerRequest) (domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.Create")
	defer span.End()

	if err := validateInput(input); err != nil {
		return domain.Customer{}, fail(span, err)
	}

	now := uc.now()
	customer := applyCustomerRequest(domain.Customer{
		ID:        crm.NewID(),
		CreatedAt: now,
	}, input)
	customer.UpdatedAt = now

	err := retry.Do(ctx, uc.retry, isConflict, func() error {
		return translateStoreError("create customer", uc.store.BatchWrite(ctx, []docstore.Op{
			docstore.Insert(domain.CollectionCustomers, customer.ID, customer),
		}))
	})
	if err != nil {
		return domain.Customer{}, fail(span, err)
	}

	span.SetAttributes(attribute.String("customer.id", customer.ID))
	return customer, nil
}

func (uc *CustomerUsecase) Get(ctx context.Context, id string) (domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.Get", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	customer, err := uc.get(ctx, id)
	if err != nil {
		return domain.Customer{}, fail(span, err)
	}
	return customer, nil
}

func (uc *CustomerUsecase) get(ctx context.Context, id string) (domain.Customer, error) {
	doc, err := uc.store.Get(ctx, domain.CollectionCustomers, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Customer{}, domain.NotFoundError{Resource: "customer", ID: id}
	}
	if err != nil {
		return domain.Customer{}, translateStoreError("get customer", err)
	}
	return docstore.Decode[domain.Customer](doc)
}

// List returns customers in creation order, optionally restricted to one type.
func (uc *CustomerUsecase) List(ctx context.Context, customerType string) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.List")
	defer span.End()

	var filters []docstore.Filter
	if customerType != "" {
		switch domain.CustomerType(customerType) {
		case domain.CustomerTypeCPA, domain.CustomerTypeNonCPA:
		default:
			return nil, fail(span, domain.ValidationError{Field: "type", Message: "must be one of [CPA NonCPA]"})
		}
		filters = append(filters, docstore.Eq("type", customerType))
	}

	docs, err := uc.store.Query(ctx, domain.CollectionCustomers, filters...)
	if err != nil {
		return nil, fail(span, translateStoreError("list customers", err))
	}
	customers, err := docstore.DecodeAll[domain.Customer](docs)
	if err != nil {
		return nil, fail(span, err)
	}
	return customers, nil
}

// Update replaces the editable fields of a customer. Relationships are not
// part of the customer document and are untouched.
func (uc *CustomerUsecase) Update(ctx context.Context, id string, input crm.CustomerRequest) (domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.Update", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	if err := validateInput(input); err != nil {
		return domain.Customer{}, fail(span, err)
	}

	var updated domain.Customer
	err := retry.Do(ctx, uc.retry, isConflict, func() error {
		existing, err := uc.get(ctx, id)
		if err != nil {
			return err
		}
		updated = applyCustomerRequest(existing, input)
		updated.UpdatedAt = uc.now()
		return translateStoreError("update customer", uc.store.BatchWrite(ctx, []docstore.Op{
			docstore.Update(domain.CollectionCustomers, id, updated),
		}))
	})
	if err != nil {
		return domain.Customer{}, fail(span, err)
	}

	uc.emit(ctx, crm.EventCustomerUpdated, id, id)
	return updated, nil
}

// Delete removes the customer together with its relationships. Its calls and
// history are kept. Deleting an absent customer succeeds.
func (uc *CustomerUsecase) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.Delete", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	if err := uc.relationships.CascadeDeleteCustomer(ctx, id); err != nil {
		return fail(span, err)
	}
	uc.logger.Info("customer deleted", zap.String("customer_id", id))
	return nil
}

func applyCustomerRequest(customer domain.Customer, input crm.CustomerRequest) domain.Customer {
	customer.Name = input.Name
	customer.Type = domain.CustomerType(input.Type)
	customer.Email = input.Email
	customer.Phone = input.Phone
	customer.Company = input.Company
	customer.Notes = input.Notes
	customer.Labels = input.Labels
	customer.CustomFields = input.CustomFields
	return customer
}
