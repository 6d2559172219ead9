package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the processing status of an incoming event.
type EventStatus string

// Incoming event statuses.
const (
	EventStatusReceived           EventStatus = "received"
	EventStatusProcessing         EventStatus = "processing"
	EventStatusProcessed          EventStatus = "processed"
	EventStatusPartiallyProcessed EventStatus = "partially_processed"
	EventStatusFailed             EventStatus = "failed"
)

// DedupState tells whether an incoming event is a first sighting, a repeat or a reprocessing.
type DedupState string

// Dedup states.
const (
	DedupStateUnique    DedupState = "unique"
	DedupStateDuplicate DedupState = "duplicate"
	DedupStateReplayed  DedupState = "replayed"
)

// IncomingEvent is one webhook received from a provider.
// (Provider, ExternalID) is unique and is the idempotency boundary.
type IncomingEvent struct {
	ID         uuid.UUID
	Provider   string
	ExternalID string
	EventType  string
	// Payload is the raw request body as received.
	Payload []byte
	// Headers holds the request headers, first value per name.
	Headers    map[string]string
	Status     EventStatus
	DedupState DedupState
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsArchived reports whether the event has been archived.
func (e *IncomingEvent) IsArchived() bool {
	return e.ArchivedAt != nil
}

// IsFinal reports whether no further handler work is expected for the event.
func (s EventStatus) IsFinal() bool {
	switch s {
	case EventStatusProcessed, EventStatusPartiallyProcessed, EventStatusFailed:
		return true
	default:
		return false
	}
}

// AggregateStatus derives the event status from its actions: processed when all actions are
// processed, failed when all failed, partially_processed when processed and failed actions
// coexist, and processing otherwise.
func AggregateStatus(actions []*IncomingEventAction) EventStatus {
	if len(actions) == 0 {
		return EventStatusProcessing
	}

	var processed, failed int
	for _, action := range actions {
		switch action.Status {
		case ActionStatusProcessed:
			processed++
		case ActionStatusFailed:
			failed++
		}
	}

	switch {
	case processed == len(actions):
		return EventStatusProcessed
	case failed == len(actions):
		return EventStatusFailed
	case processed > 0 && failed > 0:
		return EventStatusPartiallyProcessed
	default:
		return EventStatusProcessing
	}
}
