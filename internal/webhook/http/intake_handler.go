// Package http provides HTTP handlers for webhook intake and the admin API.
package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bowerbird-app/captain-hook-sub004/internal/httputil"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/http/dto"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// Rejections returned to webhook senders, checked in order.
var intakeErrors = []struct {
	err     error
	status  int
	message string
}{
	{domain.ErrProviderNotFound, http.StatusNotFound, "Unknown provider"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{domain.ErrProviderInactive, http.StatusForbidden, "Provider is inactive"},
	{domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "Payload too large"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "Rate limit exceeded"},
	{domain.ErrInvalidSignature, http.StatusUnauthorized, "Invalid signature"},
	{domain.ErrInvalidJSON, http.StatusBadRequest, "Invalid JSON"},
	{domain.ErrInvalidEventType, http.StatusBadRequest, "Invalid event type"},
}

// IntakeHandler receives inbound webhooks from providers.
type IntakeHandler struct {
	intakeUseCase  usecase.IntakeUseCase
	providers      *registry.ProviderRegistry
	defaultMaxBody int64
	logger         *slog.Logger
}

// NewIntakeHandler creates a new intake handler. defaultMaxBody bounds request bodies
// for unknown providers and for providers whose payload cap is disabled.
func NewIntakeHandler(
	intakeUseCase usecase.IntakeUseCase,
	providers *registry.ProviderRegistry,
	defaultMaxBody int64,
	logger *slog.Logger,
) *IntakeHandler {
	return &IntakeHandler{
		intakeUseCase:  intakeUseCase,
		providers:      providers,
		defaultMaxBody: defaultMaxBody,
		logger:         logger,
	}
}

// ReceiveHandler accepts one webhook delivery.
// POST {prefix}/:provider/:token
// Returns 201 Created for a new event and 200 OK for a duplicate.
func (h *IntakeHandler) ReceiveHandler(c *gin.Context) {
	providerName := c.Param("provider")

	// Read one byte past the limit so oversize bodies are detected without buffering them whole
	limit := h.bodyLimit(providerName)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("failed to read request body"), h.logger)
		return
	}

	result, err := h.intakeUseCase.Receive(c.Request.Context(), usecase.ReceiveInput{
		Provider:      providerName,
		Token:         c.Param("token"),
		Body:          body,
		Headers:       c.Request.Header,
		BodyTruncated: int64(len(body)) > limit,
	})
	if err != nil {
		h.handleIntakeError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, dto.ReceiveResponse{
			Status: dto.ReceiveStatusDuplicate,
			ID:     result.EventID.String(),
		})
		return
	}

	c.JSON(http.StatusCreated, dto.ReceiveResponse{
		Status: dto.ReceiveStatusReceived,
		ID:     result.EventID.String(),
	})
}

func (h *IntakeHandler) bodyLimit(providerName string) int64 {
	limit := h.defaultMaxBody
	if provider, err := h.providers.Get(providerName); err == nil && provider.MaxPayloadSize > 0 {
		limit = provider.MaxPayloadSize
	}
	if limit <= 0 || limit == math.MaxInt64 {
		return math.MaxInt64 - 1
	}
	return limit
}

func (h *IntakeHandler) handleIntakeError(c *gin.Context, err error) {
	var limitErr *domain.RateLimitError
	if errors.As(err, &limitErr) {
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(limitErr)))
	}

	for _, known := range intakeErrors {
		if errors.Is(err, known.err) {
			h.logger.Debug("webhook rejected",
				slog.String("provider", c.Param("provider")),
				slog.String("reason", known.message),
			)
			c.JSON(known.status, dto.IntakeErrorResponse{Error: known.message})
			return
		}
	}

	httputil.HandleErrorGin(c, err, h.logger)
}

func retryAfterSeconds(err *domain.RateLimitError) int64 {
	seconds := int64(math.Ceil(err.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
