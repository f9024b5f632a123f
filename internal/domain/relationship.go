package domain

import "time"

// RelationshipEdge is one directed half of a symmetric relationship.
type RelationshipEdge struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	PartnerID string    `json:"partnerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RelationshipCache is the advisory partner list of a customer, rebuilt from
// the edge collection on demand.
type RelationshipCache struct {
	CustomerID string    `json:"customerId"`
	PartnerIDs []string  `json:"partnerIds"`
	BuiltAt    time.Time `json:"builtAt"`
}
