package domain

// IdempotencyRecord is what a replay store keeps per Idempotency-Key. A zero
// Status marks a request that is still in flight.
type IdempotencyRecord struct {
	Fingerprint uint64 `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (r IdempotencyRecord) Pending() bool {
	return r.Status == 0
}
