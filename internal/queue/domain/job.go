// Package domain defines the job queue entities: units of asynchronous work referencing an
// incoming event action or an outgoing event.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobKind identifies the processor a job is routed to.
type JobKind string

const (
	// JobKindDispatchAction runs one incoming event action.
	JobKindDispatchAction JobKind = "dispatch_action"
	// JobKindDeliverOutgoing sends one outgoing event.
	JobKindDeliverOutgoing JobKind = "deliver_outgoing"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusFailed  JobStatus = "failed"
)

// Job is a scheduled unit of work. RunAt doubles as the lease expiry once a worker claims it.
type Job struct {
	ID        uuid.UUID
	Kind      JobKind
	RefID     uuid.UUID
	Status    JobStatus
	Attempts  int
	RunAt     time.Time
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a pending job that becomes due at runAt.
func NewJob(kind JobKind, refID uuid.UUID, runAt time.Time) *Job {
	return &Job{
		ID:     uuid.Must(uuid.NewV7()),
		Kind:   kind,
		RefID:  refID,
		Status: JobStatusPending,
		RunAt:  runAt,
	}
}
