package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	queueDomain "github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
	usecaseMocks "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase/mocks"
)

func TestRelayHandler(t *testing.T) {
	ctx := context.Background()
	event := &domain.IncomingEvent{
		ID:         uuid.New(),
		Provider:   "stripe",
		ExternalID: "evt_1",
		EventType:  "invoice.paid",
		Payload:    []byte(`{"id":"evt_1"}`),
	}

	newEndpoints := func() *registry.EndpointRegistry {
		endpoints := registry.NewEndpointRegistry()
		endpoints.Replace([]*domain.Endpoint{
			{Name: "billing", URL: "https://billing.example.com", EventTypes: []string{"invoice.paid"}},
			{Name: "audit", URL: "https://audit.example.com", EventTypes: []string{"*"}},
			{Name: "crm", URL: "https://crm.example.com", EventTypes: []string{"customer.created"}},
		})
		return endpoints
	}

	input := func(endpoint string) usecase.EnqueueOutgoingInput {
		return usecase.EnqueueOutgoingInput{
			Provider:  endpoint,
			EventType: "invoice.paid",
			Payload:   event.Payload,
			Headers: map[string]string{
				usecase.HeaderSourceProvider: "stripe",
				usecase.HeaderSourceEventID:  "evt_1",
			},
		}
	}

	t.Run("Success_EnqueuesPerSubscriber", func(t *testing.T) {
		mockDelivery := &usecaseMocks.MockDeliveryUseCase{}
		handler := usecase.NewRelayHandler(newEndpoints(), mockDelivery)

		mockDelivery.On("Enqueue", ctx, input("audit")).Return(&domain.OutgoingEvent{}, nil).Once()
		mockDelivery.On("Enqueue", ctx, input("billing")).Return(&domain.OutgoingEvent{}, nil).Once()

		err := handler.Handle(ctx, event, nil, domain.Metadata{})
		require.NoError(t, err)
		mockDelivery.AssertExpectations(t)
	})

	t.Run("Error_PartialFailureReported", func(t *testing.T) {
		mockDelivery := &usecaseMocks.MockDeliveryUseCase{}
		handler := usecase.NewRelayHandler(newEndpoints(), mockDelivery)
		enqueueErr := errors.New("queue down")

		mockDelivery.On("Enqueue", ctx, input("audit")).Return(nil, enqueueErr).Once()
		mockDelivery.On("Enqueue", ctx, input("billing")).Return(&domain.OutgoingEvent{}, nil).Once()

		err := handler.Handle(ctx, event, nil, domain.Metadata{})
		assert.ErrorIs(t, err, enqueueErr)
		mockDelivery.AssertExpectations(t)
	})

	t.Run("Success_NoSubscribers", func(t *testing.T) {
		mockDelivery := &usecaseMocks.MockDeliveryUseCase{}
		handler := usecase.NewRelayHandler(registry.NewEndpointRegistry(), mockDelivery)

		require.NoError(t, handler.Handle(ctx, event, nil, domain.Metadata{}))
		mockDelivery.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})
}

func TestRegisterBuiltinHandlers(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := usecase.RegisterBuiltinHandlers(
		handlers,
		registry.NewEndpointRegistry(),
		&usecaseMocks.MockDeliveryUseCase{},
		logger,
	)
	require.NoError(t, err)

	_, ok := handlers.Handler(usecase.HandlerLog)
	assert.True(t, ok)
	_, ok = handlers.Handler(usecase.HandlerRelay)
	assert.True(t, ok)

	err = usecase.RegisterBuiltinHandlers(handlers, registry.NewEndpointRegistry(), nil, logger)
	assert.ErrorIs(t, err, registry.ErrDuplicateHandler)
}

func TestJobProcessors(t *testing.T) {
	ctx := context.Background()
	job := &queueDomain.Job{ID: uuid.New(), RefID: uuid.New()}

	t.Run("Dispatch_RecordedFailureCompletesJob", func(t *testing.T) {
		mockDispatch := &usecaseMocks.MockDispatchUseCase{}
		processor := usecase.NewDispatchProcessor(mockDispatch)

		mockDispatch.On("Process", ctx, job.RefID).
			Return(usecase.ResultPendingRetry, errors.New("handler failed")).
			Once()

		assert.NoError(t, processor.Process(ctx, job))
		mockDispatch.AssertExpectations(t)
	})

	t.Run("Dispatch_MissingActionCompletesJob", func(t *testing.T) {
		mockDispatch := &usecaseMocks.MockDispatchUseCase{}
		processor := usecase.NewDispatchProcessor(mockDispatch)

		mockDispatch.On("Process", ctx, job.RefID).Return(usecase.DispatchResult(""), domain.ErrActionNotFound).Once()

		assert.NoError(t, processor.Process(ctx, job))
	})

	t.Run("Dispatch_StorageErrorFailsJob", func(t *testing.T) {
		mockDispatch := &usecaseMocks.MockDispatchUseCase{}
		processor := usecase.NewDispatchProcessor(mockDispatch)
		dbErr := errors.New("connection reset")

		mockDispatch.On("Process", ctx, job.RefID).Return(usecase.DispatchResult(""), dbErr).Once()

		assert.ErrorIs(t, processor.Process(ctx, job), dbErr)
	})

	t.Run("Deliver_CircuitOpenCompletesJob", func(t *testing.T) {
		mockDelivery := &usecaseMocks.MockDeliveryUseCase{}
		processor := usecase.NewDeliveryProcessor(mockDelivery)

		mockDelivery.On("Deliver", ctx, job.RefID).
			Return(usecase.ResultCircuitOpen, &domain.CircuitOpenError{Endpoint: "billing"}).
			Once()

		assert.NoError(t, processor.Process(ctx, job))
	})

	t.Run("Deliver_StorageErrorFailsJob", func(t *testing.T) {
		mockDelivery := &usecaseMocks.MockDeliveryUseCase{}
		processor := usecase.NewDeliveryProcessor(mockDelivery)
		dbErr := errors.New("connection reset")

		mockDelivery.On("Deliver", ctx, job.RefID).Return(usecase.DeliveryResult(""), dbErr).Once()

		assert.ErrorIs(t, processor.Process(ctx, job), dbErr)
	})
}
