// Package httputil provides HTTP utility functions for request and response handling.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bowerbird-app/captain-hook-sub004/internal/errors"
)

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// StatusCodeFor maps a domain error to its HTTP status code.
func StatusCodeFor(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case apperrors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case apperrors.Is(err, apperrors.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case apperrors.Is(err, apperrors.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case apperrors.Is(err, apperrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleErrorGin maps domain errors to HTTP status codes and returns a JSON response using Gin.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	statusCode := StatusCodeFor(err)

	var errorResponse ErrorResponse
	switch statusCode {
	case http.StatusNotFound:
		errorResponse = ErrorResponse{Error: "not_found", Message: "The requested resource was not found"}
	case http.StatusConflict:
		errorResponse = ErrorResponse{Error: "conflict", Message: "A conflict occurred with existing data"}
	case http.StatusUnprocessableEntity:
		errorResponse = ErrorResponse{Error: "invalid_input", Message: err.Error()}
	case http.StatusUnauthorized:
		errorResponse = ErrorResponse{Error: "unauthorized", Message: "Authentication is required"}
	case http.StatusForbidden:
		errorResponse = ErrorResponse{
			Error:   "forbidden",
			Message: "You don't have permission to access this resource",
		}
	case http.StatusRequestEntityTooLarge:
		errorResponse = ErrorResponse{Error: "payload_too_large", Message: "Payload too large"}
	case http.StatusTooManyRequests:
		errorResponse = ErrorResponse{Error: "rate_limit_exceeded", Message: "Too many requests"}
	case http.StatusServiceUnavailable:
		errorResponse = ErrorResponse{Error: "unavailable", Message: "The service is temporarily unavailable"}
	default:
		// For unknown/internal errors, don't expose details to the client
		errorResponse = ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}
	}

	if logger != nil {
		logger.Error("request failed",
			slog.Int("status_code", statusCode),
			slog.String("error_code", errorResponse.Error),
			slog.Any("error", err),
		)
	}

	c.JSON(statusCode, errorResponse)
}

// HandleBadRequestGin writes a 400 Bad Request response for malformed JSON or parameters using Gin.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("bad request", slog.Any("error", err))
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "bad_request",
		Message: err.Error(),
	})
}

// HandleValidationErrorGin writes a 422 Unprocessable Entity response for validation errors using Gin.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("validation failed", slog.Any("error", err))
	}

	c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation_error",
		Message: err.Error(),
	})
}
