package domain

const (
	CollectionCustomers      = "customers"
	CollectionRelationships  = "relationships"
	CollectionScheduledCalls = "scheduled_calls"
	CollectionCallHistory    = "call_history"
)

type CustomerType string

const (
	CustomerTypeCPA    CustomerType = "CPA"
	CustomerTypeNonCPA CustomerType = "NonCPA"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// CallStatus covers both the single live state of a scheduled call and the
// outcomes recorded on history entries.
type CallStatus string

const (
	CallStatusScheduled CallStatus = "scheduled"
	CallStatusCompleted CallStatus = "completed"
	CallStatusNoAnswer  CallStatus = "no_answer"
	CallStatusPostponed CallStatus = "postponed"
)

func (s CallStatus) IsOutcome() bool {
	switch s {
	case CallStatusCompleted, CallStatusNoAnswer, CallStatusPostponed:
		return true
	default:
		return false
	}
}

type CallType string

const (
	CallTypeInbound  CallType = "inbound"
	CallTypeOutbound CallType = "outbound"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
