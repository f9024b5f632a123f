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

// RelationshipUsecase keeps the relationship graph symmetric. A relationship
// between A and B is the pair of edge documents EdgeID(A,B) and EdgeID(B,A),
// and every write touches both in one batch.
type RelationshipUsecase struct {
	deps
	retry *retry.Config
}

func NewRelationshipUsecase(
	store docstore.Store,
	publisher EventPublisher,
	retryConfig *retry.Config,
	logger *zap.Logger,
) *RelationshipUsecase {
	return &RelationshipUsecase{
		deps:  newDeps(store, publisher, logger, "relationship"),
		retry: retryConfig,
	}
}

func validatePair(a, b string) error {
	if a == "" {
		return domain.ValidationError{Field: "customerIdA", Message: "is required"}
	}
	if b == "" {
		return domain.ValidationError{Field: "customerIdB", Message: "is required"}
	}
	if a == b {
		return domain.ValidationError{Field: "customerIdB", Message: "must differ from customerIdA"}
	}
	return nil
}

// AddRelationship links two distinct existing customers. Adding an existing
// relationship is a no-op.
func (uc *RelationshipUsecase) AddRelationship(ctx context.Context, a, b string) error {
	ctx, span := tracer.Start(ctx, "Relationship.Usecase.AddRelationship",
		trace.WithAttributes(attribute.String("customer.a", a), attribute.String("customer.b", b)))
	defer span.End()

	if err := validatePair(a, b); err != nil {
		return fail(span, err)
	}

	for _, id := range []string{a, b} {
		if _, err := uc.store.Get(ctx, domain.CollectionCustomers, id); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return fail(span, domain.NotFoundError{Resource: "customer", ID: id})
			}
			return fail(span, translateStoreError("add relationship", err))
		}
	}

	err := retry.Do(ctx, uc.retry, isConflict, func() error {
		now := uc.now()
		ops := []docstore.Op{
			// the asserts keep a concurrent customer delete from
			// interleaving with the edge inserts
			docstore.AssertExists(domain.CollectionCustomers, a),
			docstore.AssertExists(domain.CollectionCustomers, b),
			docstore.InsertIfAbsent(domain.CollectionRelationships, crm.EdgeID(a, b), domain.RelationshipEdge{
				ID: crm.EdgeID(a, b), OwnerID: a, PartnerID: b, CreatedAt: now,
			}),
			docstore.InsertIfAbsent(domain.CollectionRelationships, crm.EdgeID(b, a), domain.RelationshipEdge{
				ID: crm.EdgeID(b, a), OwnerID: b, PartnerID: a, CreatedAt: now,
			}),
		}
		return translateStoreError("add relationship", uc.store.BatchWrite(ctx, ops))
	})
	if err != nil {
		return fail(span, err)
	}

	uc.logger.Debug("relationship added", zap.String("a", a), zap.String("b", b))
	uc.emit(ctx, crm.EventRelationshipAdded, a, b)
	uc.emit(ctx, crm.EventRelationshipAdded, b, a)
	return nil
}

// RemoveRelationship deletes every edge between a and b in either direction.
// Removing an absent relationship is not an error.
func (uc *RelationshipUsecase) RemoveRelationship(ctx context.Context, a, b string) error {
	ctx, span := tracer.Start(ctx, "Relationship.Usecase.RemoveRelationship",
		trace.WithAttributes(attribute.String("customer.a", a), attribute.String("customer.b", b)))
	defer span.End()

	if err := validatePair(a, b); err != nil {
		return fail(span, err)
	}

	removed := 0
	err := retry.Do(ctx, uc.retry, isConflict, func() error {
		var ops []docstore.Op
		for _, dir := range [][2]string{{a, b}, {b, a}} {
			edges, err := uc.store.Query(ctx, domain.CollectionRelationships,
				docstore.Eq("ownerId", dir[0]),
				docstore.Eq("partnerId", dir[1]),
			)
			if err != nil {
				return translateStoreError("remove relationship", err)
			}
			for _, edge := range edges {
				ops = append(ops, docstore.Delete(domain.CollectionRelationships, edge.ID))
			}
		}

		removed = len(ops)
		if removed == 0 {
			return nil
		}
		return translateStoreError("remove relationship", uc.store.BatchWrite(ctx, ops))
	})
	if err != nil {
		return fail(span, err)
	}
	if removed == 0 {
		return nil
	}

	uc.logger.Debug("relationship removed", zap.String("a", a), zap.String("b", b), zap.Int("edges", removed))
	uc.emit(ctx, crm.EventRelationshipRemoved, a, b)
	uc.emit(ctx, crm.EventRelationshipRemoved, b, a)
	return nil
}

// GetRelationships returns the customers one outgoing edge away from id,
// ordered by name. Partners that no longer exist are skipped.
func (uc *RelationshipUsecase) GetRelationships(ctx context.Context, id string) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Relationship.Usecase.GetRelationships",
		trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	partnerIDs, err := uc.partnerIDs(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}

	partners := make([]domain.Customer, 0, len(partnerIDs))
	for _, partnerID := range partnerIDs {
		doc, err := uc.store.Get(ctx, domain.CollectionCustomers, partnerID)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fail(span, translateStoreError("get relationships", err))
		}
		customer, err := docstore.Decode[domain.Customer](doc)
		if err != nil {
			return nil, fail(span, err)
		}
		partners = append(partners, customer)
	}

	sort.Slice(partners, func(i, j int) bool {
		if partners[i].Name != partners[j].Name {
			return partners[i].Name < partners[j].Name
		}
		return partners[i].ID < partners[j].ID
	})
	return partners, nil
}

// RebuildRelationshipCache derives the advisory partner list of id from the
// edge collection. The result is never written back.
func (uc *RelationshipUsecase) RebuildRelationshipCache(ctx context.Context, id string) (domain.RelationshipCache, error) {
	ctx, span := tracer.Start(ctx, "Relationship.Usecase.RebuildRelationshipCache",
		trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	partnerIDs, err := uc.partnerIDs(ctx, id)
	if err != nil {
		return domain.RelationshipCache{}, fail(span, err)
	}
	sort.Strings(partnerIDs)

	return domain.RelationshipCache{
		CustomerID: id,
		PartnerIDs: partnerIDs,
		BuiltAt:    uc.now(),
	}, nil
}

// partnerIDs lists the distinct partners of an existing customer.
func (uc *RelationshipUsecase) partnerIDs(ctx context.Context, id string) ([]string, error) {
	if id == "" {
		return nil, domain.ValidationError{Field: "id", Message: "is required"}
	}
	if _, err := uc.store.Get(ctx, domain.CollectionCustomers, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, domain.NotFoundError{Resource: "customer", ID: id}
		}
		return nil, translateStoreError("get relationships", err)
	}

	docs, err := uc.store.Query(ctx, domain.CollectionRelationships, docstore.Eq("ownerId", id))
	if err != nil {
		return nil, translateStoreError("get relationships", err)
	}
	edges, err := docstore.DecodeAll[domain.RelationshipEdge](docs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(edges))
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		if _, ok := seen[edge.PartnerID]; ok {
			continue
		}
		seen[edge.PartnerID] = struct{}{}
		ids = append(ids, edge.PartnerID)
	}
	return ids, nil
}

// CascadeDeleteCustomer deletes the customer document and every edge that
// mentions it in a single batch. The batch is idempotent, so an uncertain
// commit is retried as a whole before the error is surfaced.
func (uc *RelationshipUsecase) CascadeDeleteCustomer(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Relationship.Usecase.CascadeDeleteCustomer",
		trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	if id == "" {
		return fail(span, domain.ValidationError{Field: "id", Message: "is required"})
	}

	var partners []string
	err := retry.Do(ctx, uc.retry, isConsistency, func() error {
		// an earlier attempt may have committed, so keep what it saw
		found, err := uc.formerPartners(ctx, id)
		if err != nil {
			return err
		}
		partners = mergeIDs(partners, found)

		ops := []docstore.Op{
			docstore.Delete(domain.CollectionCustomers, id),
			docstore.DeleteWhere(domain.CollectionRelationships, docstore.Eq("ownerId", id)),
			docstore.DeleteWhere(domain.CollectionRelationships, docstore.Eq("partnerId", id)),
		}
		err = translateStoreError("cascade delete customer", uc.store.BatchWrite(ctx, ops))
		if isConsistency(err) {
			uc.logger.Warn("cascade delete not confirmed, retrying", zap.String("customer_id", id), zap.Error(err))
		}
		return err
	})
	if err != nil {
		uc.logger.Error("cascade delete failed", zap.String("customer_id", id), zap.Error(err))
		return fail(span, err)
	}

	span.SetAttributes(attribute.Int("relationships.removed", len(partners)))
	uc.emit(ctx, crm.EventCustomerDeleted, id, id)
	for _, partner := range partners {
		uc.emit(ctx, crm.EventRelationshipRemoved, partner, id)
	}
	return nil
}

// formerPartners collects partners from both edge directions, so a dangling
// half edge still yields a notification.
func (uc *RelationshipUsecase) formerPartners(ctx context.Context, id string) ([]string, error) {
	seen := map[string]struct{}{}
	var partners []string
	for _, q := range []struct{ self, other string }{{"ownerId", "partnerId"}, {"partnerId", "ownerId"}} {
		docs, err := uc.store.Query(ctx, domain.CollectionRelationships, docstore.Eq(q.self, id))
		if err != nil {
			return nil, translateStoreError("cascade delete customer", err)
		}
		edges, err := docstore.DecodeAll[domain.RelationshipEdge](docs)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			other := edge.PartnerID
			if q.other == "ownerId" {
				other = edge.OwnerID
			}
			if _, ok := seen[other]; ok {
				continue
			}
			seen[other] = struct{}{}
			partners = append(partners, other)
		}
	}
	return partners, nil
}

func mergeIDs(ids, more []string) []string {
	for _, id := range more {
		dup := false
		for _, have := range ids {
			if have == id {
				dup = true
				break
			}
		}
		if !dup {
			ids = append(ids, id)
		}
	}
	return ids
}
