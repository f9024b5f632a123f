package crm

import (
	"strings"

	"github.com/google/uuid"
)

const (
	customerChannelPrefix = "crm:customer:"
	pairSeparator         = "|"
)

// linkedHistoryNamespace scopes the v5 ids of history entries created from a
// scheduled call.
var linkedHistoryNamespace = uuid.MustParse("6f1d3c52-8a0e-4c0b-9b57-2f1f7d0c4e21")

// PairKey returns the order-independent identity of the relationship between
// a and b.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + pairSeparator + b
}

// EdgeID returns the document id of the directed half owner->partner. Both
// halves share the same PairKey prefix.
func EdgeID(owner, partner string) string {
	return PairKey(owner, partner) + ":" + owner
}

// LinkedHistoryID derives the id of the history entry produced by logging a
// scheduled call, so a scheduled call can map to at most one entry.
func LinkedHistoryID(scheduledCallID string) string {
	return uuid.NewSHA1(linkedHistoryNamespace, []byte(scheduledCallID)).String()
}

func NewID() string {
	return uuid.NewString()
}

func CustomerChannel(customerID string) string {
	return customerChannelPrefix + customerID
}

func ParseCustomerChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, customerChannelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, customerChannelPrefix)
	return id, id != ""
}
