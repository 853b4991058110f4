package alarm

import "time"

// RawStatusRecord is a flat status snapshot received from a device gateway.
// Values are booleans, numbers, strings or nil. The schema is known only by
// convention through a per-device allow-list of fault field names.
type RawStatusRecord map[string]any

// Candidate is a single fault field decoded from a RawStatusRecord.
type Candidate struct {
	// Field is the raw field name.
	Field string
	// HumanName is the field name without its prefix and separators.
	HumanName string
	// Active is true when the field value is truthy.
	Active bool
}

// SyncOutcome is the result of one sync request.
type SyncOutcome string

const (
	// SyncSuccess means the store acknowledged the sync request.
	SyncSuccess SyncOutcome = "success"
	// SyncFailure means the request failed or the store refused it.
	SyncFailure SyncOutcome = "failure"
)

// SyncOperation records a sync request against the backing store for one source.
// It is never persisted.
type SyncOperation struct {
	// SourceID is the source the sync was requested for.
	SourceID string `json:"source_id"`
	// RequestedAt is when the first attempt was issued.
	RequestedAt time.Time `json:"requested_at"`
	// Outcome is the final result after retries.
	Outcome SyncOutcome `json:"outcome"`
	// Err is the last error, empty on success.
	Err string `json:"error,omitempty"`
}

// Succeeded reports whether the operation succeeded.
func (o SyncOperation) Succeeded() bool {
	return o.Outcome == SyncSuccess
}
