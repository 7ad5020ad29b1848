package domain

import (
	"encoding/json"
	"time"
)

// JobEnvelope is the durable, tenant-tagged unit of asynchronous enhancement
// work. TenantID and CorrelationID never change after submission; only
// AttemptCount moves, and only upward.
type JobEnvelope struct {
	TenantID      string          `json:"tenant_id"`
	TicketID      string          `json:"ticket_id"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Payload       json.RawMessage `json:"payload"`
	AttemptCount  int             `json:"attempt_count"`
}

type OutcomeStatus string

const (
	OutcomeQueued  OutcomeStatus = "queued"
	OutcomeStarted OutcomeStatus = "started"
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// Terminal reports whether no further transition is allowed for the status.
func (s OutcomeStatus) Terminal() bool {
	return s == OutcomeSuccess || s == OutcomeFailure
}

// OutcomeRecord is the per-job row in the tenant-scoped store, keyed by
// correlation id (one envelope, one record).
type OutcomeRecord struct {
	TenantID      string
	TicketID      string
	CorrelationID string
	Status        OutcomeStatus
	StartedAt     time.Time
	CompletedAt   time.Time
	DurationMS    int64
	ErrorType     string
	ErrorMessage  string
}

// OutcomeListFilter narrows tenant-scoped outcome listings. The tenant itself
// comes from the bound scope, never from the filter.
type OutcomeListFilter struct {
	Status   OutcomeStatus
	TicketID string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
