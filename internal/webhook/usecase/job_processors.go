package usecase

import (
	"context"
	"errors"

	queueDomain "github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
	queueUsecase "github.com/bowerbird-app/captain-hook-sub004/internal/queue/usecase"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// NewDispatchProcessor routes dispatch_action jobs to the dispatcher. Handler failures already
// schedule their own retry, so the job only fails on storage or scheduling errors. Jobs for
// deleted actions complete.
func NewDispatchProcessor(dispatcher DispatchUseCase) queueUsecase.JobProcessor {
	return queueUsecase.JobProcessorFunc(func(ctx context.Context, job *queueDomain.Job) error {
		result, err := dispatcher.Process(ctx, job.RefID)
		if result != "" || errors.Is(err, domain.ErrActionNotFound) {
			return nil
		}
		return err
	})
}

// NewDeliveryProcessor routes deliver_outgoing jobs to the delivery engine with the same error
// contract as NewDispatchProcessor.
func NewDeliveryProcessor(delivery DeliveryUseCase) queueUsecase.JobProcessor {
	return queueUsecase.JobProcessorFunc(func(ctx context.Context, job *queueDomain.Job) error {
		result, err := delivery.Deliver(ctx, job.RefID)
		if result != "" || errors.Is(err, domain.ErrOutgoingEventNotFound) {
			return nil
		}
		return err
	})
}
