// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"encoding/json"

	validation "github.com/jellydator/validation"

	customValidation "github.com/bowerbird-app/captain-hook-sub004/internal/validation"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

var (
	incomingStatuses = []interface{}{
		string(domain.EventStatusReceived),
		string(domain.EventStatusProcessing),
		string(domain.EventStatusProcessed),
		string(domain.EventStatusPartiallyProcessed),
		string(domain.EventStatusFailed),
	}
	outgoingStatuses = []interface{}{
		string(domain.OutgoingStatusPending),
		string(domain.OutgoingStatusProcessing),
		string(domain.OutgoingStatusDelivered),
		string(domain.OutgoingStatusFailed),
	}
)

// CreateOutgoingEventRequest contains the parameters for enqueuing an outgoing event.
type CreateOutgoingEventRequest struct {
	// Provider is the name of the configured outgoing endpoint.
	Provider  string            `json:"provider"`
	EventType string            `json:"event_type"`
	TargetURL string            `json:"target_url"`
	Payload   json.RawMessage   `json:"payload"`
	Headers   map[string]string `json:"headers"`
}

// Validate checks if the create outgoing event request is valid.
func (r *CreateOutgoingEventRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Provider,
			validation.Required,
			customValidation.ProviderName,
			validation.Length(1, 100),
		),
		validation.Field(&r.EventType,
			validation.Required,
			customValidation.NotBlank,
			customValidation.NoWhitespace,
			validation.Length(1, 255),
		),
		validation.Field(&r.TargetURL,
			customValidation.HTTPURL,
			validation.Length(0, 2048),
		),
		validation.Field(&r.Payload,
			validation.Required,
			customValidation.JSONObject,
		),
	)
}

// ToInput converts the request to the delivery use case input.
func (r *CreateOutgoingEventRequest) ToInput() usecase.EnqueueOutgoingInput {
	return usecase.EnqueueOutgoingInput{
		Provider:  r.Provider,
		EventType: r.EventType,
		TargetURL: r.TargetURL,
		Payload:   []byte(r.Payload),
		Headers:   r.Headers,
	}
}

// UpdateProviderRequest contains the parameters for enabling or disabling a provider.
type UpdateProviderRequest struct {
	Active *bool `json:"active"`
}

// Validate checks if the update provider request is valid.
func (r *UpdateProviderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Active, validation.NotNil),
	)
}

// IncomingEventFilter holds the list filters of GET /v1/incoming-events.
type IncomingEventFilter struct {
	Provider string
	Status   string
}

// Validate checks the filter values.
func (f *IncomingEventFilter) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Provider, customValidation.ProviderName),
		validation.Field(&f.Status, validation.In(incomingStatuses...)),
	)
}

// ToDomain converts the filter to its domain form.
func (f *IncomingEventFilter) ToDomain() domain.IncomingEventFilter {
	return domain.IncomingEventFilter{Provider: f.Provider, Status: domain.EventStatus(f.Status)}
}

// OutgoingEventFilter holds the list filters of GET /v1/outgoing-events.
type OutgoingEventFilter struct {
	Provider string
	Status   string
}

// Validate checks the filter values.
func (f *OutgoingEventFilter) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Provider, customValidation.ProviderName),
		validation.Field(&f.Status, validation.In(outgoingStatuses...)),
	)
}

// ToDomain converts the filter to its domain form.
func (f *OutgoingEventFilter) ToDomain() domain.OutgoingEventFilter {
	return domain.OutgoingEventFilter{Provider: f.Provider, Status: domain.OutgoingStatus(f.Status)}
}
