package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bowerbird-app/captain-hook-sub004/internal/httputil"
	customValidation "github.com/bowerbird-app/captain-hook-sub004/internal/validation"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/http/dto"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// ProviderHandler handles HTTP requests for provider management.
type ProviderHandler struct {
	providerUseCase usecase.ProviderUseCase
	logger          *slog.Logger
}

// NewProviderHandler creates a new provider handler.
func NewProviderHandler(providerUseCase usecase.ProviderUseCase, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{
		providerUseCase: providerUseCase,
		logger:          logger,
	}
}

// ListHandler lists configured providers without their credentials.
// GET /v1/providers
func (h *ProviderHandler) ListHandler(c *gin.Context) {
	providers, err := h.providerUseCase.List(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapProvidersToListResponse(providers))
}

// UpdateHandler enables or disables a provider.
// PATCH /v1/providers/:name
// Returns 200 OK with the updated provider.
func (h *ProviderHandler) UpdateHandler(c *gin.Context) {
	var req dto.UpdateProviderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	provider, err := h.providerUseCase.SetActive(c.Request.Context(), c.Param("name"), *req.Active)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapProviderToResponse(provider))
}
