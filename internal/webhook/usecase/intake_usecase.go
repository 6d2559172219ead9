package usecase

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/ratelimit"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/verifier"
)

// Headers never persisted with an incoming event: credentials and provider signatures.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},

	strings.ToLower(verifier.StripeSignatureHeader):  {},
	strings.ToLower(verifier.SquareSignatureHeader):  {},
	strings.ToLower(verifier.WebhookSignatureHeader): {},
}

// maxIdentifierLength is the widest external id or event type, in characters, the event
// tables hold.
const maxIdentifierLength = 255

// intakeUseCase implements the IntakeUseCase interface.
type intakeUseCase struct {
	txManager  database.TxManager
	providers  *registry.ProviderRegistry
	verifiers  *verifier.Registry
	handlers   *registry.HandlerRegistry
	limiter    *ratelimit.Limiter
	eventRepo  IncomingEventRepository
	actionRepo ActionRepository
	dispatcher DispatchUseCase
	logger     *slog.Logger
	now        func() time.Time
}

// Receive runs one inbound webhook through authentication, verification and persistence.
// Checks short-circuit in order and each failure maps to a distinct domain error.
func (i *intakeUseCase) Receive(ctx context.Context, input ReceiveInput) (*ReceiveResult, error) {
	provider, err := i.providers.Get(input.Provider)
	if err != nil {
		return nil, err
	}

	if !tokensEqual(input.Token, provider.Token) {
		return nil, domain.ErrInvalidToken
	}

	if !provider.Active {
		return nil, domain.ErrProviderInactive
	}

	if input.BodyTruncated {
		return nil, domain.ErrPayloadTooLarge
	}
	if provider.MaxPayloadSize > 0 && int64(len(input.Body)) > provider.MaxPayloadSize {
		return nil, domain.ErrPayloadTooLarge
	}

	if provider.RateLimited() {
		err := i.limiter.Record(provider.Name, provider.RateLimitRequests, provider.RateLimitPeriod)
		var limitErr *ratelimit.LimitError
		if errors.As(err, &limitErr) {
			i.logger.Warn("provider rate limit exceeded",
				slog.String("provider", provider.Name),
				slog.Int("limit", provider.RateLimitRequests),
				slog.Duration("retry_after", limitErr.RetryAfter),
			)
			return nil, &domain.RateLimitError{Provider: provider.Name, RetryAfter: limitErr.RetryAfter}
		}
	}

	v, err := i.verifiers.Get(provider.Verifier)
	if err != nil {
		return nil, err
	}
	if !v.VerifySignature(input.Body, input.Headers, provider) {
		i.logger.Warn("webhook signature rejected", slog.String("provider", provider.Name))
		return nil, domain.ErrInvalidSignature
	}

	var payload map[string]any
	if err := json.Unmarshal(input.Body, &payload); err != nil || payload == nil {
		return nil, domain.ErrInvalidJSON
	}

	eventType := v.ExtractEventType(payload)
	if !storableIdentifier(eventType) {
		return nil, domain.ErrInvalidEventType
	}

	now := i.now().UTC()
	event := &domain.IncomingEvent{
		ID:         uuid.Must(uuid.NewV7()),
		Provider:   provider.Name,
		ExternalID: externalIDKey(v.ExtractEventID(payload)),
		EventType:  eventType,
		Payload:    input.Body,
		Headers:    persistableHeaders(input.Headers),
		Status:     domain.EventStatusReceived,
		DedupState: domain.DedupStateUnique,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	actions := newActions(event, i.handlers.Bindings(event.Provider, event.EventType), now)

	err = i.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := i.eventRepo.Create(txCtx, event); err != nil {
			return err
		}
		for _, action := range actions {
			if err := i.actionRepo.Create(txCtx, action); err != nil {
				return err
			}
		}
		return i.dispatcher.Schedule(txCtx, event, actions)
	})
	if errors.Is(err, domain.ErrIncomingEventDuplicate) {
		return i.markDuplicate(ctx, event.Provider, event.ExternalID)
	}
	if err != nil {
		return nil, err
	}

	i.logger.Info("webhook received",
		slog.String("provider", event.Provider),
		slog.String("event_id", event.ID.String()),
		slog.String("external_id", event.ExternalID),
		slog.String("event_type", event.EventType),
		slog.Int("actions", len(actions)),
	)

	if len(actions) > 0 {
		if err := i.dispatcher.Run(ctx, event, actions); err != nil {
			i.logger.Error("failed to run inline actions",
				slog.String("event_id", event.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	return &ReceiveResult{EventID: event.ID, Actions: len(actions)}, nil
}

// markDuplicate runs after the failed insert has been rolled back, since PostgreSQL refuses
// further statements in an aborted transaction.
func (i *intakeUseCase) markDuplicate(ctx context.Context, provider, externalID string) (*ReceiveResult, error) {
	existing, err := i.eventRepo.GetByProviderExternalID(ctx, provider, externalID)
	if err != nil {
		return nil, err
	}
	if err := i.eventRepo.UpdateDedupState(ctx, existing.ID, domain.DedupStateDuplicate); err != nil {
		return nil, err
	}

	i.logger.Info("duplicate webhook ignored",
		slog.String("provider", provider),
		slog.String("event_id", existing.ID.String()),
		slog.String("external_id", externalID),
	)

	return &ReceiveResult{EventID: existing.ID, Duplicate: true}, nil
}

// newActions creates one pending action per binding. Attempt limits are copied from the binding
// so later configuration changes do not affect actions already in flight.
func newActions(
	event *domain.IncomingEvent,
	bindings []domain.HandlerBinding,
	now time.Time,
) []*domain.IncomingEventAction {
	actions := make([]*domain.IncomingEventAction, 0, len(bindings))
	for _, binding := range bindings {
		actions = append(actions, &domain.IncomingEventAction{
			ID:              uuid.Must(uuid.NewV7()),
			IncomingEventID: event.ID,
			Handler:         binding.Name,
			Priority:        binding.Priority,
			MaxAttempts:     binding.MaxAttempts,
			RetryDelays:     binding.RetryDelays,
			Status:          domain.ActionStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return actions
}

// storableIdentifier reports whether s fits the identifier columns as-is: valid UTF-8
// without NUL bytes and at most maxIdentifierLength characters.
func storableIdentifier(s string) bool {
	return utf8.ValidString(s) &&
		!strings.ContainsRune(s, 0) &&
		utf8.RuneCountInString(s) <= maxIdentifierLength
}

// externalIDKey replaces an external id the tables cannot hold with its SHA-256 digest.
// Equal ids still map to equal keys, so deduplication is unaffected.
func externalIDKey(id string) string {
	if storableIdentifier(id) {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// tokensEqual compares digests so neither content nor length of the expected token leaks
// through timing.
func tokensEqual(given, expected string) bool {
	a := sha256.Sum256([]byte(given))
	b := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// persistableHeaders lowercases header names, joins repeated values and drops credentials.
func persistableHeaders(headers map[string][]string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		key := strings.ToLower(name)
		if _, skip := sensitiveHeaders[key]; skip {
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}

// NewIntakeUseCase creates a new IntakeUseCase.
func NewIntakeUseCase(
	txManager database.TxManager,
	providers *registry.ProviderRegistry,
	verifiers *verifier.Registry,
	handlers *registry.HandlerRegistry,
	limiter *ratelimit.Limiter,
	eventRepo IncomingEventRepository,
	actionRepo ActionRepository,
	dispatcher DispatchUseCase,
	logger *slog.Logger,
) IntakeUseCase {
	return &intakeUseCase{
		txManager:  txManager,
		providers:  providers,
		verifiers:  verifiers,
		handlers:   handlers,
		limiter:    limiter,
		eventRepo:  eventRepo,
		actionRepo: actionRepo,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}
