package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/http/dto"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
	usecaseMocks "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase/mocks"
)

func setupIntakeHandler(t *testing.T) (*IntakeHandler, *usecaseMocks.MockIntakeUseCase) {
	t.Helper()

	providers := registry.NewProviderRegistry()
	providers.Put(&domain.Provider{Name: "stripe", Token: "tok", MaxPayloadSize: 16, Active: true})

	mockUseCase := &usecaseMocks.MockIntakeUseCase{}
	return NewIntakeHandler(mockUseCase, providers, 64, testLogger()), mockUseCase
}

func intakeContext(provider string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	c, w := createRawTestContext(http.MethodPost, "/webhooks/"+provider+"/tok", body)
	c.Params = gin.Params{
		{Key: "provider", Value: provider},
		{Key: "token", Value: "tok"},
	}
	c.Request.Header.Set("Stripe-Signature", "t=1,v1=abc")
	return c, w
}

func TestIntakeHandler_ReceiveHandler(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)

	t.Run("Success_Created", func(t *testing.T) {
		handler, mockUseCase := setupIntakeHandler(t)
		eventID := uuid.Must(uuid.NewV7())

		mockUseCase.On("Receive", mock.Anything, mock.MatchedBy(func(input usecase.ReceiveInput) bool {
			return input.Provider == "stripe" &&
				input.Token == "tok" &&
				string(input.Body) == string(body) &&
				!input.BodyTruncated &&
				input.Headers.Get("Stripe-Signature") == "t=1,v1=abc"
		})).Return(&usecase.ReceiveResult{EventID: eventID, Actions: 2}, nil).Once()

		c, w := intakeContext("stripe", body)
		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response dto.ReceiveResponse
		require.NoError(t, decodeBody(w, &response))
		assert.Equal(t, "received", response.Status)
		assert.Equal(t, eventID.String(), response.ID)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_Duplicate", func(t *testing.T) {
		handler, mockUseCase := setupIntakeHandler(t)
		eventID := uuid.Must(uuid.NewV7())

		mockUseCase.On("Receive", mock.Anything, mock.Anything).
			Return(&usecase.ReceiveResult{EventID: eventID, Duplicate: true}, nil).
			Once()

		c, w := intakeContext("stripe", body)
		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.ReceiveResponse
		require.NoError(t, decodeBody(w, &response))
		assert.Equal(t, "duplicate", response.Status)
		assert.Equal(t, eventID.String(), response.ID)
	})

	t.Run("BodyReadStopsPastProviderCap", func(t *testing.T) {
		handler, mockUseCase := setupIntakeHandler(t)
		large := []byte(`{"id":"evt_1","padding":"xxxxxxxxxxxxxxxxxxxxxxxx"}`)

		mockUseCase.On("Receive", mock.Anything, mock.MatchedBy(func(input usecase.ReceiveInput) bool {
			return len(input.Body) == 17 && input.BodyTruncated
		})).Return(nil, domain.ErrPayloadTooLarge).Once()

		c, w := intakeContext("stripe", large)
		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("BodyReadUsesDefaultForUnknownProvider", func(t *testing.T) {
		handler, mockUseCase := setupIntakeHandler(t)
		large := make([]byte, 100)

		mockUseCase.On("Receive", mock.Anything, mock.MatchedBy(func(input usecase.ReceiveInput) bool {
			return len(input.Body) == 65 && input.BodyTruncated
		})).Return(nil, domain.ErrProviderNotFound).Once()

		c, w := intakeContext("unknown", large)
		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("UncappedProviderPassesWholeBody", func(t *testing.T) {
		handler, mockUseCase := setupIntakeHandler(t)
		handler.providers.Put(&domain.Provider{Name: "internal", Token: "tok", Active: true})
		small := []byte(`{"id":"evt_2","note":"fits under the default ceiling"}`)

		mockUseCase.On("Receive", mock.Anything, mock.MatchedBy(func(input usecase.ReceiveInput) bool {
			return string(input.Body) == string(small) && !input.BodyTruncated
		})).Return(&usecase.ReceiveResult{EventID: uuid.Must(uuid.NewV7())}, nil).Once()

		c, w := intakeContext("internal", small)
		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusCreated, w.Code)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("UncappedProviderRejectsBodyPastCeiling", func(t *testing.T) {
		handler, mockUseCase := setupIntakeHandler(t)
		handler.providers.Put(&domain.Provider{Name: "internal", Token: "tok", Active: true})
		large := []byte(`{"id":"evt_3","pad":"` + strings.Repeat("x", 200) + `"}`)

		mockUseCase.On("Receive", mock.Anything, mock.MatchedBy(func(input usecase.ReceiveInput) bool {
			return input.BodyTruncated
		})).Return(nil, domain.ErrPayloadTooLarge).Once()

		c, w := intakeContext("internal", large)
		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.JSONEq(t, `{"error":"Payload too large"}`, w.Body.String())
		mockUseCase.AssertExpectations(t)
	})

	errorCases := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{"UnknownProvider", domain.ErrProviderNotFound, http.StatusNotFound, "Unknown provider"},
		{"InvalidToken", domain.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
		{"Inactive", domain.ErrProviderInactive, http.StatusForbidden, "Provider is inactive"},
		{"TooLarge", domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "Payload too large"},
		{"InvalidSignature", domain.ErrInvalidSignature, http.StatusUnauthorized, "Invalid signature"},
		{"InvalidJSON", domain.ErrInvalidJSON, http.StatusBadRequest, "Invalid JSON"},
		{"InvalidEventType", domain.ErrInvalidEventType, http.StatusBadRequest, "Invalid event type"},
	}

	for _, tc := range errorCases {
		t.Run("Error_"+tc.name, func(t *testing.T) {
			handler, mockUseCase := setupIntakeHandler(t)

			mockUseCase.On("Receive", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			c, w := intakeContext("stripe", body)
			handler.ReceiveHandler(c)

			assert.Equal(t, tc.expectedStatus, w.Code)
			var response dto.IntakeErrorResponse
			require.NoError(t, decodeBody(w, &response))
			assert.Equal(t, tc.expectedError, response.Error)
		})
	}

	t.Run("Error_RateLimitedSetsRetryAfter", func(t *testing.T) {
		handler, mockUseCase := setupIntakeHandler(t)

		mockUseCase.On("Receive", mock.Anything, mock.Anything).
			Return(nil, &domain.RateLimitError{Provider: "stripe", RetryAfter: 1500 * time.Millisecond}).
			Once()

		c, w := intakeContext("stripe", body)
		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
		var response dto.IntakeErrorResponse
		require.NoError(t, decodeBody(w, &response))
		assert.Equal(t, "Rate limit exceeded", response.Error)
	})

	t.Run("Error_StorageFailure", func(t *testing.T) {
		handler, mockUseCase := setupIntakeHandler(t)

		mockUseCase.On("Receive", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection refused")).
			Once()

		c, w := intakeContext("stripe", body)
		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}
