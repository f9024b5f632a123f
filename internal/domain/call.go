package domain

import "time"

type ScheduledCall struct {
	ID            string     `json:"id"`
	CustomerID    string     `json:"customerId"`
	ScheduledDate string     `json:"scheduledDate"`
	ScheduledTime string     `json:"scheduledTime"`
	Priority      Priority   `json:"priority"`
	Purpose       string     `json:"purpose,omitempty"`
	Status        CallStatus `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// CallHistoryEntry is append-only. LinkedScheduledCallID is set exactly when
// the entry was produced by logging a scheduled call.
type CallHistoryEntry struct {
	ID                    string     `json:"id"`
	CustomerID            string     `json:"customerId"`
	Date                  string     `json:"date"`
	Time                  string     `json:"time"`
	Duration              int        `json:"duration"`
	Status                CallStatus `json:"status"`
	Notes                 string     `json:"notes,omitempty"`
	CallType              CallType   `json:"callType"`
	LinkedScheduledCallID *string    `json:"linkedScheduledCallId"`
	CreatedAt             time.Time  `json:"createdAt"`
}

type CallStatistics struct {
	CustomerID string `json:"customerId"`
	TotalCalls int    `json:"totalCalls"`
	Completed  int    `json:"completed"`
	NoAnswer   int    `json:"noAnswer"`
	Postponed  int    `json:"postponed"`
	Scheduled  int    `json:"scheduled"`
}
