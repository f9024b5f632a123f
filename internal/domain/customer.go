package domain

import "time"

// Customer is the root entity. It carries no relationship or call ids; those
// are derived from the edge and call collections.
type Customer struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         CustomerType   `json:"type"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Company      string         `json:"company,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
