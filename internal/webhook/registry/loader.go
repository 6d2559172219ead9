package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	validation "github.com/jellydator/validation"
	"gopkg.in/yaml.v3"

	appvalidation "github.com/bowerbird-app/captain-hook-sub004/internal/validation"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/verifier"
)

// File is the structure of the webhook configuration file.
type File struct {
	Providers []ProviderConfig `yaml:"providers"`
	Handlers  []HandlerConfig  `yaml:"handlers"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// ProviderConfig declares one provider. Durations are in seconds; nil fields take the
// configured defaults, and an explicit zero disables the corresponding check.
type ProviderConfig struct {
	Name               string `yaml:"name"`
	Token              string `yaml:"token"`
	Secret             string `yaml:"secret"`
	Verifier           string `yaml:"verifier"`
	WebhookURL         string `yaml:"webhook_url"`
	TimestampTolerance *int   `yaml:"timestamp_tolerance"`
	MaxPayloadSize     *int64 `yaml:"max_payload_size"`
	RateLimitRequests  *int   `yaml:"rate_limit_requests"`
	RateLimitPeriod    *int   `yaml:"rate_limit_period"`
	Active             *bool  `yaml:"active"`
}

// HandlerConfig binds a registered handler to a (provider, event type) pair.
type HandlerConfig struct {
	Provider    string `yaml:"provider"`
	EventType   string `yaml:"event_type"`
	Handler     string `yaml:"handler"`
	Priority    int    `yaml:"priority"`
	Async       *bool  `yaml:"async"`
	MaxAttempts int    `yaml:"max_attempts"`
	RetryDelays []int  `yaml:"retry_delays"`
}

// EndpointConfig declares one outgoing endpoint.
type EndpointConfig struct {
	Name             string            `yaml:"name"`
	URL              string            `yaml:"url"`
	Secret           string            `yaml:"secret"`
	Headers          map[string]string `yaml:"headers"`
	EventTypes       []string          `yaml:"event_types"`
	MaxAttempts      int               `yaml:"max_attempts"`
	RetryDelays      []int             `yaml:"retry_delays"`
	FailureThreshold int               `yaml:"failure_threshold"`
	CooldownSeconds  int               `yaml:"cooldown_seconds"`
}

// Defaults fills the settings a configuration entry leaves out.
type Defaults struct {
	MaxPayloadSize     int64
	TimestampTolerance time.Duration
	RateLimitRequests  int
	RateLimitPeriod    time.Duration
	MaxAttempts        int
	RetryDelays        []time.Duration
}

// LoadFile reads and validates a configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("reading webhook config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration YAML. Unknown keys are rejected. An empty document
// yields an empty File.
func Parse(data []byte) (*File, error) {
	var file File

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing webhook config: %w", err)
	}

	for i := range file.Providers {
		if file.Providers[i].Verifier == "" {
			file.Providers[i].Verifier = verifier.NameWebhook
		}
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("validating webhook config: %w", err)
	}
	return &file, nil
}

// Validate checks every entry and the uniqueness of provider and endpoint names.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Providers))
	for i := range f.Providers {
		p := &f.Providers[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate provider %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	for i := range f.Handlers {
		if err := f.Handlers[i].Validate(); err != nil {
			return fmt.Errorf("handlers[%d]: %w", i, err)
		}
	}

	seen = make(map[string]bool, len(f.Endpoints))
	for i := range f.Endpoints {
		e := &f.Endpoints[i]
		if err := e.Validate(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		if seen[e.Name] {
			return fmt.Errorf("endpoints[%d]: duplicate endpoint %q", i, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// Validate checks a provider entry.
func (p *ProviderConfig) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required, appvalidation.ProviderName),
		validation.Field(&p.Token, validation.Required, appvalidation.NoWhitespace),
		validation.Field(&p.Verifier, validation.Required, validation.In(
			verifier.NameStripe,
			verifier.NameSquare,
			verifier.NameWebhook,
		)),
		validation.Field(&p.WebhookURL, appvalidation.HTTPURL),
		validation.Field(&p.TimestampTolerance, validation.Min(0)),
		validation.Field(&p.MaxPayloadSize, validation.Min(int64(0))),
		validation.Field(&p.RateLimitRequests, validation.Min(0)),
		validation.Field(&p.RateLimitPeriod, validation.Min(0)),
	)
}

// Validate checks a handler binding entry.
func (h *HandlerConfig) Validate() error {
	return validation.ValidateStruct(h,
		validation.Field(&h.Provider, validation.Required, appvalidation.ProviderName),
		validation.Field(&h.EventType, validation.Required, appvalidation.NoWhitespace),
		validation.Field(&h.Handler, validation.Required, appvalidation.NoWhitespace),
		validation.Field(&h.MaxAttempts, validation.Min(0)),
		validation.Field(&h.RetryDelays, validation.Each(validation.Min(0))),
	)
}

// Validate checks an endpoint entry.
func (e *EndpointConfig) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Name, validation.Required, appvalidation.ProviderName),
		validation.Field(&e.URL, validation.Required, appvalidation.HTTPURL),
		validation.Field(&e.EventTypes, validation.Each(validation.Required)),
		validation.Field(&e.MaxAttempts, validation.Min(0)),
		validation.Field(&e.RetryDelays, validation.Each(validation.Min(0))),
		validation.Field(&e.FailureThreshold, validation.Min(0)),
		validation.Field(&e.CooldownSeconds, validation.Min(0)),
	)
}

// ToDomain converts the entry into a provider, filling unset fields from defaults.
func (p *ProviderConfig) ToDomain(defaults Defaults) *domain.Provider {
	provider := &domain.Provider{
		Name:               p.Name,
		Token:              p.Token,
		Secret:             p.Secret,
		Verifier:           p.Verifier,
		WebhookURL:         p.WebhookURL,
		TimestampTolerance: defaults.TimestampTolerance,
		MaxPayloadSize:     defaults.MaxPayloadSize,
		RateLimitRequests:  defaults.RateLimitRequests,
		RateLimitPeriod:    defaults.RateLimitPeriod,
		Active:             true,
	}
	if p.TimestampTolerance != nil {
		provider.TimestampTolerance = seconds(*p.TimestampTolerance)
	}
	if p.MaxPayloadSize != nil {
		provider.MaxPayloadSize = *p.MaxPayloadSize
	}
	if p.RateLimitRequests != nil {
		provider.RateLimitRequests = *p.RateLimitRequests
	}
	if p.RateLimitPeriod != nil {
		provider.RateLimitPeriod = seconds(*p.RateLimitPeriod)
	}
	if p.Active != nil {
		provider.Active = *p.Active
	}
	return provider
}

// ToDomain converts the entry into an unresolved binding, filling unset fields from defaults.
// Handlers are async unless configured otherwise.
func (h *HandlerConfig) ToDomain(defaults Defaults) domain.HandlerBinding {
	binding := domain.HandlerBinding{
		Provider:    h.Provider,
		EventType:   h.EventType,
		Name:        h.Handler,
		Priority:    h.Priority,
		Async:       true,
		MaxAttempts: h.MaxAttempts,
		RetryDelays: secondsList(h.RetryDelays),
	}
	if h.Async != nil {
		binding.Async = *h.Async
	}
	if binding.MaxAttempts == 0 {
		binding.MaxAttempts = defaults.MaxAttempts
	}
	if len(binding.RetryDelays) == 0 {
		binding.RetryDelays = defaults.RetryDelays
	}
	return binding
}

// ToDomain converts the entry into an endpoint, filling unset fields from defaults.
func (e *EndpointConfig) ToDomain(defaults Defaults) *domain.Endpoint {
	endpoint := &domain.Endpoint{
		Name:             e.Name,
		URL:              e.URL,
		Secret:           e.Secret,
		Headers:          e.Headers,
		EventTypes:       e.EventTypes,
		MaxAttempts:      e.MaxAttempts,
		RetryDelays:      secondsList(e.RetryDelays),
		FailureThreshold: e.FailureThreshold,
		Cooldown:         seconds(e.CooldownSeconds),
	}
	if endpoint.MaxAttempts == 0 {
		endpoint.MaxAttempts = defaults.MaxAttempts
	}
	if len(endpoint.RetryDelays) == 0 {
		endpoint.RetryDelays = defaults.RetryDelays
	}
	return endpoint
}

// ProvidersToDomain converts all provider entries.
func (f *File) ProvidersToDomain(defaults Defaults) []*domain.Provider {
	providers := make([]*domain.Provider, 0, len(f.Providers))
	for i := range f.Providers {
		providers = append(providers, f.Providers[i].ToDomain(defaults))
	}
	return providers
}

// EndpointsToDomain converts all endpoint entries.
func (f *File) EndpointsToDomain(defaults Defaults) []*domain.Endpoint {
	endpoints := make([]*domain.Endpoint, 0, len(f.Endpoints))
	for i := range f.Endpoints {
		endpoints = append(endpoints, f.Endpoints[i].ToDomain(defaults))
	}
	return endpoints
}

// Apply binds the handler entries into handlers and replaces the contents of endpoints.
// Any binding that references an unregistered handler fails the whole call.
func (f *File) Apply(handlers *HandlerRegistry, endpoints *EndpointRegistry, defaults Defaults) error {
	handlers.ResetBindings()
	for i := range f.Handlers {
		if err := handlers.Bind(f.Handlers[i].ToDomain(defaults)); err != nil {
			return fmt.Errorf("handlers[%d]: %w", i, err)
		}
	}

	endpoints.Replace(f.EndpointsToDomain(defaults))
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func secondsList(values []int) []time.Duration {
	if len(values) == 0 {
		return nil
	}
	out := make([]time.Duration, len(values))
	for i, v := range values {
		out[i] = seconds(v)
	}
	return out
}
