package domain

import (
	"slices"
	"time"
)

// Endpoint is the configuration of a downstream consumer of outgoing events.
type Endpoint struct {
	Name   string
	URL    string
	Secret string `json:"-"`
	// Headers are added to every delivery.
	Headers map[string]string
	// EventTypes lists the event types relayed to this endpoint. Empty means none.
	EventTypes  []string
	MaxAttempts int
	RetryDelays []time.Duration
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Zero disables circuit breaking.
	FailureThreshold int
	// Cooldown is how long an open circuit blocks deliveries.
	Cooldown time.Duration
}

// CircuitEnabled reports whether deliveries to this endpoint go through the circuit breaker.
func (e *Endpoint) CircuitEnabled() bool {
	return e.FailureThreshold > 0
}

// Subscribes reports whether the endpoint wants events of the given type, or every type when
// EventTypes contains "*".
func (e *Endpoint) Subscribes(eventType string) bool {
	return slices.Contains(e.EventTypes, eventType) || slices.Contains(e.EventTypes, "*")
}
