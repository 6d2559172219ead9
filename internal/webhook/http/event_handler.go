package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/httputil"
	customValidation "github.com/bowerbird-app/captain-hook-sub004/internal/validation"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/http/dto"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// EventHandler handles HTTP requests for incoming and outgoing event inspection.
type EventHandler struct {
	eventUseCase    usecase.EventUseCase
	deliveryUseCase usecase.DeliveryUseCase
	logger          *slog.Logger
}

// NewEventHandler creates a new event handler with required dependencies.
func NewEventHandler(
	eventUseCase usecase.EventUseCase,
	deliveryUseCase usecase.DeliveryUseCase,
	logger *slog.Logger,
) *EventHandler {
	return &EventHandler{
		eventUseCase:    eventUseCase,
		deliveryUseCase: deliveryUseCase,
		logger:          logger,
	}
}

// GetIncomingHandler retrieves an incoming event with its actions.
// GET /v1/incoming-events/:id
// Returns 200 OK with the event and its actions.
func (h *EventHandler) GetIncomingHandler(c *gin.Context) {
	id, ok := h.parseID(c, "incoming event")
	if !ok {
		return
	}

	detail, err := h.eventUseCase.GetIncoming(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEventDetailToResponse(detail))
}

// ListIncomingHandler lists incoming events, newest first.
// GET /v1/incoming-events?offset=0&limit=50&provider=stripe&status=failed
// Returns 200 OK with the page of events.
func (h *EventHandler) ListIncomingHandler(c *gin.Context) {
	page, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	filter := dto.IncomingEventFilter{
		Provider: c.Query("provider"),
		Status:   c.Query("status"),
	}
	if err := filter.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	events, err := h.eventUseCase.ListIncoming(c.Request.Context(), filter.ToDomain(), page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapIncomingEventsToListResponse(events))
}

// ReplayHandler re-runs an incoming event through the currently bound handlers.
// POST /v1/incoming-events/:id/replay
// Returns 202 Accepted with the event and its new actions.
func (h *EventHandler) ReplayHandler(c *gin.Context) {
	id, ok := h.parseID(c, "incoming event")
	if !ok {
		return
	}

	detail, err := h.eventUseCase.Replay(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.MapEventDetailToResponse(detail))
}

// CreateOutgoingHandler enqueues an outgoing event for delivery.
// POST /v1/outgoing-events
// Returns 201 Created with the pending outgoing event.
func (h *EventHandler) CreateOutgoingHandler(c *gin.Context) {
	var req dto.CreateOutgoingEventRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	event, err := h.deliveryUseCase.Enqueue(c.Request.Context(), req.ToInput())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapOutgoingEventToResponse(event))
}

// GetOutgoingHandler retrieves an outgoing event.
// GET /v1/outgoing-events/:id
func (h *EventHandler) GetOutgoingHandler(c *gin.Context) {
	id, ok := h.parseID(c, "outgoing event")
	if !ok {
		return
	}

	event, err := h.eventUseCase.GetOutgoing(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapOutgoingEventToResponse(event))
}

// ListOutgoingHandler lists outgoing events, newest first.
// GET /v1/outgoing-events?offset=0&limit=50&provider=billing&status=failed
func (h *EventHandler) ListOutgoingHandler(c *gin.Context) {
	page, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	filter := dto.OutgoingEventFilter{
		Provider: c.Query("provider"),
		Status:   c.Query("status"),
	}
	if err := filter.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	events, err := h.eventUseCase.ListOutgoing(c.Request.Context(), filter.ToDomain(), page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapOutgoingEventsToListResponse(events))
}

func (h *EventHandler) parseID(c *gin.Context, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c,
			fmt.Errorf("invalid %s ID format: must be a valid UUID", resource),
			h.logger)
		return uuid.Nil, false
	}
	return id, true
}
