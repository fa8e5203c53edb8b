package service

import (
	"context"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// writeOffRetries bounds re-reads when a write-off races an allocation for
// the batch's last units.
const writeOffRetries = 3

// WriteOffResult reports what a write-off removed
type WriteOffResult struct {
	Batch    *repository.Batch `json:"batch"`
	Quantity int               `json:"quantity"`
}

// WriteOff removes a batch's entire remaining quantity from stock as damaged
// or expired. The deduction uses the same conditional write as allocation, so
// a concurrent dispensing that shrinks the batch first just shrinks what gets
// written off.
func (s *StockService) WriteOff(ctx context.Context, batchID, movementType, reason string) (*WriteOffResult, error) {
	if movementType != repository.MovementDamaged && movementType != repository.MovementExpired {
		return nil, errors.Validation(map[string]string{"type": "must be DAMAGED or EXPIRED"})
	}
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "this field is required"})
	}

	status := repository.BatchStatusDamaged
	if movementType == repository.MovementExpired {
		status = repository.BatchStatusExpired
	}

	log := s.logger.WithBatchID(batchID)

	var (
		batch    *repository.Batch
		quantity int
		err      error
	)
	for attempt := 0; attempt < writeOffRetries; attempt++ {
		batch, err = s.batches.GetByID(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if batch.Status != repository.BatchStatusActive && batch.Status != repository.BatchStatusDepleted {
			return nil, errors.Conflict("batch is already written off")
		}

		quantity = batch.QuantityRemaining
		if quantity == 0 {
			err = nil
			break
		}

		err = s.batches.Deduct(ctx, batchID, quantity)
		if err == nil {
			break
		}
		if !errors.Is(err, errors.ErrInsufficientQuantity) {
			return nil, err
		}
		// A concurrent allocation took some of the stock; re-read and
		// write off what is left.
	}
	if err != nil && errors.Is(err, errors.ErrInsufficientQuantity) {
		return nil, errors.Conflict("batch quantity kept changing during write-off")
	}

	if err := s.batches.UpdateStatus(ctx, batchID, status); err != nil {
		return nil, err
	}

	a := performer(ctx)
	if quantity > 0 {
		movement := &repository.Movement{
			MedicineID:      batch.MedicineID,
			BatchID:         &batch.ID,
			Type:            movementType,
			Quantity:        quantity,
			Reason:          reason,
			PerformedBy:     a.ID,
			PerformedByName: &a.Name,
		}
		if err := s.ledger.Record(ctx, movement); err != nil {
			log.Error().Err(err).
				Msg("write-off committed but ledger append failed")
			return nil, err
		}
	}

	batch.QuantityRemaining = 0
	batch.Status = status

	s.publisher.PublishBatchWrittenOff(ctx, batch, quantity, movementType, a)

	log.Info().
		Str("medicine_id", batch.MedicineID).
		Str("type", movementType).
		Int("quantity", quantity).
		Msg("batch written off")

	if quantity > 0 {
		s.checkLowStock(ctx, batch.MedicineID)
	}

	return &WriteOffResult{Batch: batch, Quantity: quantity}, nil
}
