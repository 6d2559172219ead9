package dto

import (
	"encoding/json"
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// Receive statuses.
const (
	ReceiveStatusReceived  = "received"
	ReceiveStatusDuplicate = "duplicate"
)

// ReceiveResponse is returned to webhook senders.
type ReceiveResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// IntakeErrorResponse is the body of a rejected webhook.
type IntakeErrorResponse struct {
	Error string `json:"error"`
}

// ActionResponse represents a handler action in API responses.
type ActionResponse struct {
	ID           string     `json:"id"`
	Handler      string     `json:"handler"`
	Priority     int        `json:"priority"`
	Status       string     `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	LockedBy     *string    `json:"locked_by,omitempty"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IncomingEventResponse represents an incoming event in API responses.
type IncomingEventResponse struct {
	ID         string            `json:"id"`
	Provider   string            `json:"provider"`
	ExternalID string            `json:"external_id"`
	EventType  string            `json:"event_type"`
	Status     string            `json:"status"`
	DedupState string            `json:"dedup_state"`
	Payload    json.RawMessage   `json:"payload"`
	Headers    map[string]string `json:"headers"`
	ArchivedAt *time.Time        `json:"archived_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Actions    []ActionResponse  `json:"actions,omitempty"`
}

// MapActionToResponse converts a domain action to an API response.
func MapActionToResponse(action *domain.IncomingEventAction) ActionResponse {
	return ActionResponse{
		ID:           action.ID.String(),
		Handler:      action.Handler,
		Priority:     action.Priority,
		Status:       string(action.Status),
		AttemptCount: action.AttemptCount,
		MaxAttempts:  action.MaxAttempts,
		LockedBy:     action.LockedBy,
		LockedAt:     action.LockedAt,
		ErrorMessage: action.ErrorMessage,
		ProcessedAt:  action.ProcessedAt,
		CreatedAt:    action.CreatedAt,
		UpdatedAt:    action.UpdatedAt,
	}
}

// MapIncomingEventToResponse converts a domain incoming event to an API response.
func MapIncomingEventToResponse(event *domain.IncomingEvent) IncomingEventResponse {
	return IncomingEventResponse{
		ID:         event.ID.String(),
		Provider:   event.Provider,
		ExternalID: event.ExternalID,
		EventType:  event.EventType,
		Status:     string(event.Status),
		DedupState: string(event.DedupState),
		Payload:    rawJSON(event.Payload),
		Headers:    event.Headers,
		ArchivedAt: event.ArchivedAt,
		CreatedAt:  event.CreatedAt,
		UpdatedAt:  event.UpdatedAt,
	}
}

// MapEventDetailToResponse converts an event with its actions to an API response.
func MapEventDetailToResponse(detail *usecase.EventDetail) IncomingEventResponse {
	response := MapIncomingEventToResponse(detail.Event)
	response.Actions = make([]ActionResponse, 0, len(detail.Actions))
	for _, action := range detail.Actions {
		response.Actions = append(response.Actions, MapActionToResponse(action))
	}
	return response
}

// ListIncomingEventsResponse represents a paginated list of incoming events.
type ListIncomingEventsResponse struct {
	Data []IncomingEventResponse `json:"data"`
}

// MapIncomingEventsToListResponse converts domain incoming events to a list API response.
func MapIncomingEventsToListResponse(events []*domain.IncomingEvent) ListIncomingEventsResponse {
	data := make([]IncomingEventResponse, 0, len(events))
	for _, event := range events {
		data = append(data, MapIncomingEventToResponse(event))
	}
	return ListIncomingEventsResponse{Data: data}
}

// OutgoingEventResponse represents an outgoing event in API responses.
type OutgoingEventResponse struct {
	ID             string            `json:"id"`
	Provider       string            `json:"provider"`
	EventType      string            `json:"event_type"`
	TargetURL      string            `json:"target_url"`
	Headers        map[string]string `json:"headers"`
	Payload        json.RawMessage   `json:"payload"`
	Status         string            `json:"status"`
	AttemptCount   int               `json:"attempt_count"`
	FirstAttemptAt *time.Time        `json:"first_attempt_at,omitempty"`
	LastAttemptAt  *time.Time        `json:"last_attempt_at,omitempty"`
	ResponseCode   *int              `json:"response_code,omitempty"`
	ResponseBody   *string           `json:"response_body,omitempty"`
	ResponseTimeMs *int64            `json:"response_time_ms,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	ArchivedAt     *time.Time        `json:"archived_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// MapOutgoingEventToResponse converts a domain outgoing event to an API response.
func MapOutgoingEventToResponse(event *domain.OutgoingEvent) OutgoingEventResponse {
	return OutgoingEventResponse{
		ID:             event.ID.String(),
		Provider:       event.Provider,
		EventType:      event.EventType,
		TargetURL:      event.TargetURL,
		Headers:        event.Headers,
		Payload:        rawJSON(event.Payload),
		Status:         string(event.Status),
		AttemptCount:   event.AttemptCount,
		FirstAttemptAt: event.FirstAttemptAt,
		LastAttemptAt:  event.LastAttemptAt,
		ResponseCode:   event.ResponseCode,
		ResponseBody:   event.ResponseBody,
		ResponseTimeMs: event.ResponseTimeMs,
		ErrorMessage:   event.ErrorMessage,
		ArchivedAt:     event.ArchivedAt,
		CreatedAt:      event.CreatedAt,
		UpdatedAt:      event.UpdatedAt,
	}
}

// ListOutgoingEventsResponse represents a paginated list of outgoing events.
type ListOutgoingEventsResponse struct {
	Data []OutgoingEventResponse `json:"data"`
}

// MapOutgoingEventsToListResponse converts domain outgoing events to a list API response.
func MapOutgoingEventsToListResponse(events []*domain.OutgoingEvent) ListOutgoingEventsResponse {
	data := make([]OutgoingEventResponse, 0, len(events))
	for _, event := range events {
		data = append(data, MapOutgoingEventToResponse(event))
	}
	return ListOutgoingEventsResponse{Data: data}
}

// ProviderResponse represents a provider in API responses (excludes token and secret).
type ProviderResponse struct {
	ID                        string    `json:"id"`
	Name                      string    `json:"name"`
	Verifier                  string    `json:"verifier"`
	WebhookURL                string    `json:"webhook_url,omitempty"`
	TimestampToleranceSeconds int64     `json:"timestamp_tolerance_seconds"`
	MaxPayloadSize            int64     `json:"max_payload_size"`
	RateLimitRequests         int       `json:"rate_limit_requests"`
	RateLimitPeriodSeconds    int64     `json:"rate_limit_period_seconds"`
	SignatureVerified         bool      `json:"signature_verified"`
	Active                    bool      `json:"active"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// MapProviderToResponse converts a domain provider to an API response.
func MapProviderToResponse(provider *domain.Provider) ProviderResponse {
	return ProviderResponse{
		ID:                        provider.ID.String(),
		Name:                      provider.Name,
		Verifier:                  provider.Verifier,
		WebhookURL:                provider.WebhookURL,
		TimestampToleranceSeconds: int64(provider.TimestampTolerance / time.Second),
		MaxPayloadSize:            provider.MaxPayloadSize,
		RateLimitRequests:         provider.RateLimitRequests,
		RateLimitPeriodSeconds:    int64(provider.RateLimitPeriod / time.Second),
		SignatureVerified:         !provider.SkipsSignature(),
		Active:                    provider.Active,
		CreatedAt:                 provider.CreatedAt,
		UpdatedAt:                 provider.UpdatedAt,
	}
}

// ListProvidersResponse represents the list of providers in API responses.
type ListProvidersResponse struct {
	Data []ProviderResponse `json:"data"`
}

// MapProvidersToListResponse converts domain providers to a list API response.
func MapProvidersToListResponse(providers []*domain.Provider) ListProvidersResponse {
	data := make([]ProviderResponse, 0, len(providers))
	for _, provider := range providers {
		data = append(data, MapProviderToResponse(provider))
	}
	return ListProvidersResponse{Data: data}
}

// rawJSON returns stored payload bytes as embedded JSON, or null when they are not valid JSON.
func rawJSON(payload []byte) json.RawMessage {
	if len(payload) == 0 || !json.Valid(payload) {
		return json.RawMessage("null")
	}
	return json.RawMessage(payload)
}
