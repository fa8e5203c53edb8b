package events

import (
	"context"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/actor"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
	"github.com/pharmstock/pharmstock-backend/pkg/messaging"
)

// StockEventPublisher publishes stock lifecycle events to the pharmacy
// exchange. All methods are fire-and-forget: a broker outage is logged and
// swallowed, stock operations never fail because an event could not go out.
// A nil publisher is valid and publishes nothing, which keeps tests and
// broker-less deployments simple.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a publisher bound to the pharmacy events
// exchange
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBatchReceived publishes a batch received event
func (p *StockEventPublisher) PublishBatchReceived(ctx context.Context, batch *repository.Batch, a *actor.Actor, poRef *string) {
	if p == nil || p.publisher == nil {
		return
	}

	event := messaging.BatchReceivedEvent{
		MedicineID: batch.MedicineID,
		BatchID:    batch.ID,
		LotNumber:  batch.LotNumber,
		Quantity:   batch.QuantityReceived,
		ExpiryDate: batch.ExpiryDate,
		ReceivedBy: a.ID,
	}
	if poRef != nil {
		event.PORef = *poRef
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, event); err != nil {
		p.logger.Error().Err(err).
			Str("batch_id", batch.ID).
			Msg("failed to publish batch received event")
	}
}

// PublishStockAllocated publishes a stock allocated event
func (p *StockEventPublisher) PublishStockAllocated(ctx context.Context, medicineID string, requested, allocated, shortfall int, reason string, reference *string, a *actor.Actor) {
	if p == nil || p.publisher == nil {
		return
	}

	event := messaging.StockAllocatedEvent{
		MedicineID: medicineID,
		Requested:  requested,
		Allocated:  allocated,
		Shortfall:  shortfall,
		Reason:     reason,
		ActorID:    a.ID,
	}
	if reference != nil {
		event.Reference = *reference
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAllocated, event); err != nil {
		p.logger.Error().Err(err).
			Str("medicine_id", medicineID).
			Msg("failed to publish stock allocated event")
	}
}

// PublishStockReconciled publishes a stock reconciled event
func (p *StockEventPublisher) PublishStockReconciled(ctx context.Context, medicineID, batchID string, difference, applied int, a *actor.Actor) {
	if p == nil || p.publisher == nil {
		return
	}

	event := messaging.StockReconciledEvent{
		MedicineID:    medicineID,
		BatchID:       batchID,
		Difference:    difference,
		AppliedAmount: applied,
		ActorID:       a.ID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReconciled, event); err != nil {
		p.logger.Error().Err(err).
			Str("medicine_id", medicineID).
			Msg("failed to publish stock reconciled event")
	}
}

// PublishBatchWrittenOff publishes a batch written off event
func (p *StockEventPublisher) PublishBatchWrittenOff(ctx context.Context, batch *repository.Batch, quantity int, movementType string, a *actor.Actor) {
	if p == nil || p.publisher == nil {
		return
	}

	event := messaging.BatchWrittenOffEvent{
		MedicineID: batch.MedicineID,
		BatchID:    batch.ID,
		Quantity:   quantity,
		WriteOff:   movementType,
		ActorID:    a.ID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchWrittenOff, event); err != nil {
		p.logger.Error().Err(err).
			Str("batch_id", batch.ID).
			Msg("failed to publish batch written off event")
	}
}

// PublishStockLow publishes a low stock event
func (p *StockEventPublisher) PublishStockLow(ctx context.Context, medicine *repository.Medicine, total int) {
	if p == nil || p.publisher == nil {
		return
	}

	event := messaging.StockLowEvent{
		MedicineID: medicine.ID,
		Name:       medicine.Name,
		Total:      total,
		Threshold:  medicine.ReorderThreshold,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockLow, event); err != nil {
		p.logger.Error().Err(err).
			Str("medicine_id", medicine.ID).
			Msg("failed to publish stock low event")
	}
}
