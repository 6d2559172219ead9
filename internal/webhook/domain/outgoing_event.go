package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutgoingStatus is the delivery state of an outgoing event.
type OutgoingStatus string

// Outgoing event statuses.
const (
	OutgoingStatusPending    OutgoingStatus = "pending"
	OutgoingStatusProcessing OutgoingStatus = "processing"
	OutgoingStatusDelivered  OutgoingStatus = "delivered"
	OutgoingStatusFailed     OutgoingStatus = "failed"
)

// OutgoingEvent is one webhook delivery to a downstream endpoint.
type OutgoingEvent struct {
	ID uuid.UUID
	// Provider is the name of the outgoing endpoint configuration.
	Provider       string
	EventType      string
	TargetURL      string
	Headers        map[string]string
	Payload        []byte
	Status         OutgoingStatus
	AttemptCount   int
	FirstAttemptAt *time.Time
	LastAttemptAt  *time.Time
	ResponseCode   *int
	ResponseBody   *string
	ResponseTimeMs *int64
	ErrorMessage   *string
	LockVersion    int
	ArchivedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsArchived reports whether the event has been archived.
func (e *OutgoingEvent) IsArchived() bool {
	return e.ArchivedAt != nil
}
