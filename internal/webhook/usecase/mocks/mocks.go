// Package mocks provides testify mocks of the webhook use case interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// MockIntakeUseCase is a mock implementation of usecase.IntakeUseCase
type MockIntakeUseCase struct {
	mock.Mock
}

func (m *MockIntakeUseCase) Receive(ctx context.Context, input usecase.ReceiveInput) (*usecase.ReceiveResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.ReceiveResult), args.Error(1)
}

// MockDispatchUseCase is a mock implementation of usecase.DispatchUseCase
type MockDispatchUseCase struct {
	mock.Mock
}

func (m *MockDispatchUseCase) Process(ctx context.Context, actionID uuid.UUID) (usecase.DispatchResult, error) {
	args := m.Called(ctx, actionID)
	return args.Get(0).(usecase.DispatchResult), args.Error(1)
}

func (m *MockDispatchUseCase) Schedule(
	ctx context.Context,
	event *domain.IncomingEvent,
	actions []*domain.IncomingEventAction,
) error {
	args := m.Called(ctx, event, actions)
	return args.Error(0)
}

func (m *MockDispatchUseCase) Run(
	ctx context.Context,
	event *domain.IncomingEvent,
	actions []*domain.IncomingEventAction,
) error {
	args := m.Called(ctx, event, actions)
	return args.Error(0)
}

func (m *MockDispatchUseCase) SweepStaleLocks(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Int(0), args.Error(1)
}

// MockDeliveryUseCase is a mock implementation of usecase.DeliveryUseCase
type MockDeliveryUseCase struct {
	mock.Mock
}

func (m *MockDeliveryUseCase) Enqueue(
	ctx context.Context,
	input usecase.EnqueueOutgoingInput,
) (*domain.OutgoingEvent, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutgoingEvent), args.Error(1)
}

func (m *MockDeliveryUseCase) Deliver(ctx context.Context, id uuid.UUID) (usecase.DeliveryResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(usecase.DeliveryResult), args.Error(1)
}

func (m *MockDeliveryUseCase) SweepStaleDeliveries(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Int(0), args.Error(1)
}

// MockEventUseCase is a mock implementation of usecase.EventUseCase
type MockEventUseCase struct {
	mock.Mock
}

func (m *MockEventUseCase) GetIncoming(ctx context.Context, id uuid.UUID) (*usecase.EventDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.EventDetail), args.Error(1)
}

func (m *MockEventUseCase) ListIncoming(
	ctx context.Context,
	filter domain.IncomingEventFilter,
	offset, limit int,
) ([]*domain.IncomingEvent, error) {
	args := m.Called(ctx, filter, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IncomingEvent), args.Error(1)
}

func (m *MockEventUseCase) Replay(ctx context.Context, id uuid.UUID) (*usecase.EventDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.EventDetail), args.Error(1)
}

func (m *MockEventUseCase) GetOutgoing(ctx context.Context, id uuid.UUID) (*domain.OutgoingEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutgoingEvent), args.Error(1)
}

func (m *MockEventUseCase) ListOutgoing(
	ctx context.Context,
	filter domain.OutgoingEventFilter,
	offset, limit int,
) ([]*domain.OutgoingEvent, error) {
	args := m.Called(ctx, filter, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutgoingEvent), args.Error(1)
}

// MockMaintenanceUseCase is a mock implementation of usecase.MaintenanceUseCase
type MockMaintenanceUseCase struct {
	mock.Mock
}

func (m *MockMaintenanceUseCase) Archive(
	ctx context.Context,
	olderThan time.Duration,
	dryRun bool,
) (*usecase.ArchiveResult, error) {
	args := m.Called(ctx, olderThan, dryRun)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.ArchiveResult), args.Error(1)
}

// MockProviderUseCase is a mock implementation of usecase.ProviderUseCase
type MockProviderUseCase struct {
	mock.Mock
}

func (m *MockProviderUseCase) Sync(ctx context.Context, providers []*domain.Provider) (int, error) {
	args := m.Called(ctx, providers)
	return args.Int(0), args.Error(1)
}

func (m *MockProviderUseCase) List(ctx context.Context) ([]*domain.Provider, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Provider), args.Error(1)
}

func (m *MockProviderUseCase) SetActive(ctx context.Context, name string, active bool) (*domain.Provider, error) {
	args := m.Called(ctx, name, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Provider), args.Error(1)
}
