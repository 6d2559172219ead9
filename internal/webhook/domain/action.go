package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxErrorMessageLength is the number of characters kept from a handler or delivery error.
const MaxErrorMessageLength = 1000

// ActionStatus is the state of one handler invocation.
type ActionStatus string

// Action statuses.
const (
	ActionStatusPending      ActionStatus = "pending"
	ActionStatusProcessing   ActionStatus = "processing"
	ActionStatusProcessed    ActionStatus = "processed"
	ActionStatusFailed       ActionStatus = "failed"
	ActionStatusPendingRetry ActionStatus = "pending_retry"
)

// IsRunnable reports whether an action in this status may be locked for execution.
func (s ActionStatus) IsRunnable() bool {
	return s == ActionStatusPending || s == ActionStatusPendingRetry
}

// IncomingEventAction pairs an incoming event with one registered handler.
type IncomingEventAction struct {
	ID              uuid.UUID
	IncomingEventID uuid.UUID
	// Handler is the registered handler name.
	Handler string
	// Priority orders actions of the same event; lower runs first.
	Priority     int
	AttemptCount int
	MaxAttempts  int
	RetryDelays  []time.Duration
	Status       ActionStatus
	LockedBy     *string
	LockedAt     *time.Time
	ErrorMessage *string
	ProcessedAt  *time.Time
	// LockVersion is bumped on every write and guards all updates.
	LockVersion int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AttemptsExhausted reports whether the action reached its attempt ceiling.
func (a *IncomingEventAction) AttemptsExhausted() bool {
	return a.AttemptCount >= a.MaxAttempts
}

// NextRetryDelay returns the delay before the next attempt, indexed by the attempts made so far
// and clamped to the last entry of the schedule.
func (a *IncomingEventAction) NextRetryDelay() time.Duration {
	return RetryDelay(a.RetryDelays, a.AttemptCount)
}

// RetryDelay picks the delay for the given attempt number (1-based) from schedule, clamping to
// the last entry. An empty schedule yields zero.
func RetryDelay(schedule []time.Duration, attempt int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

// TruncateError returns the error text cut to MaxErrorMessageLength characters.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= MaxErrorMessageLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorMessageLength])
}
