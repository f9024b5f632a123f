package crm

import (
	"time"
)

const (
	EventRelationshipAdded   string = "relationship.added"
	EventRelationshipRemoved string = "relationship.removed"
	EventCustomerDeleted     string = "customer.deleted"
	EventCustomerUpdated     string = "customer.updated"
	EventCallScheduled       string = "call.scheduled"
	EventCallLogged          string = "call.logged"
	EventCallCancelled       string = "call.cancelled"
	EventHistoryAdded        string = "history.added"
	EventHistoryDeleted      string = "history.deleted"
)

type CustomerRequest struct {
	Name         string         `json:"name" validate:"required,max=200"`
	Type         string         `json:"type" validate:"required,oneof=CPA NonCPA"`
	Email        string         `json:"email,omitempty" validate:"omitempty,email"`
	Phone        string         `json:"phone,omitempty" validate:"omitempty,max=40"`
	Company      string         `json:"company,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
}

type RelationshipRequest struct {
	CustomerIDA string `json:"customerIdA" validate:"required"`
	CustomerIDB string `json:"customerIdB" validate:"required"`
}

type ScheduleCallRequest struct {
	CustomerID    string `json:"customerId" validate:"required"`
	ScheduledDate string `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	ScheduledTime string `json:"scheduledTime" validate:"required,datetime=15:04"`
	Priority      string `json:"priority" validate:"required,oneof=low medium high"`
	Purpose       string `json:"purpose,omitempty" validate:"max=500"`
}

// LogOutcomeRequest closes a scheduled call. Date and Time come as a pair;
// when both are empty the call is stamped with the current time.
type LogOutcomeRequest struct {
	Status   string `json:"status" validate:"required,oneof=completed no_answer postponed"`
	Notes    string `json:"notes,omitempty"`
	Duration int    `json:"duration" validate:"min=0"`
	Date     string `json:"date,omitempty" validate:"required_with=Time,omitempty,datetime=2006-01-02"`
	Time     string `json:"time,omitempty" validate:"required_with=Date,omitempty,datetime=15:04"`
}

type HistoryEntryRequest struct {
	Status   string `json:"status" validate:"required,oneof=completed no_answer postponed"`
	Notes    string `json:"notes,omitempty"`
	Duration int    `json:"duration" validate:"min=0"`
	Date     string `json:"date,omitempty" validate:"required_with=Time,omitempty,datetime=2006-01-02"`
	Time     string `json:"time,omitempty" validate:"required_with=Date,omitempty,datetime=15:04"`
	CallType string `json:"callType,omitempty" validate:"omitempty,oneof=inbound outbound"`
}

// Event is published after a committed mutation so that clients can refetch
// the affected customer.
type Event struct {
	Type       string    `json:"type"`
	CustomerID string    `json:"customerId"`
	ResourceID string    `json:"resourceId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
