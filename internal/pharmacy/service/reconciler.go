package service

import (
	"context"
	"fmt"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// reconcileRetries bounds how often a reconciliation re-reads after losing a
// conditional write to a concurrent allocation.
const reconcileRetries = 3

// ReconcileResult reports the outcome of a stock count reconciliation.
// Applied can be smaller than the absolute difference when the correction is
// clamped at the adjusted batch's bounds.
type ReconcileResult struct {
	MedicineID    string            `json:"medicine_id"`
	RecordedTotal int               `json:"recorded_total"`
	ActualCount   int               `json:"actual_count"`
	Difference    int               `json:"difference"`
	Applied       int               `json:"applied"`
	AdjustedBatch *repository.Batch `json:"adjusted_batch,omitempty"`
}

// Reconcile corrects the recorded stock of a medicine to match a physical
// count. The whole correction lands on the single oldest-expiry eligible
// batch so each reconciliation produces exactly one ADJUSTMENT entry and
// surfaces near-term shrinkage first.
//
// The correction is clamped to the batch's bounds: downward at zero, upward
// at the batch's received quantity. Reconciliations for the same medicine are
// serialized, and a conditional write lost to a racing allocation triggers a
// bounded re-read.
func (s *StockService) Reconcile(ctx context.Context, medicineID string, actualCount int, notes string) (*ReconcileResult, error) {
	if actualCount < 0 {
		return nil, errors.Validation(map[string]string{"actual_count": "must not be negative"})
	}
	if _, err := s.medicines.GetByID(ctx, medicineID); err != nil {
		return nil, err
	}

	mu := s.reconLock(medicineID)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < reconcileRetries; attempt++ {
		result, err := s.reconcileOnce(ctx, medicineID, actualCount, notes)
		if err != nil {
			if errors.Is(err, errors.ErrInsufficientQuantity) {
				// An allocation moved stock between our read and write;
				// recompute against fresh quantities.
				lastErr = err
				continue
			}
			return nil, err
		}
		return result, nil
	}

	return nil, errors.Wrap(lastErr, "RECONCILE_CONFLICT",
		"reconciliation kept losing to concurrent allocations", 409)
}

func (s *StockService) reconcileOnce(ctx context.Context, medicineID string, actualCount int, notes string) (*ReconcileResult, error) {
	log := s.logger.WithMedicineID(medicineID)

	eligible, err := s.batches.ListEligible(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	recorded := 0
	for _, b := range eligible {
		recorded += b.QuantityRemaining
	}

	result := &ReconcileResult{
		MedicineID:    medicineID,
		RecordedTotal: recorded,
		ActualCount:   actualCount,
		Difference:    actualCount - recorded,
	}

	// No drift: nothing to write, nothing to log.
	if result.Difference == 0 {
		return result, nil
	}

	if len(eligible) == 0 {
		// Counted stock cannot be materialized into a medicine that has no
		// batch to carry it.
		return nil, errors.NoBatchToAdjust(medicineID)
	}

	oldest := eligible[0]
	direction := repository.DirectionIn
	applied := result.Difference
	if applied > 0 {
		if headroom := oldest.QuantityReceived - oldest.QuantityRemaining; applied > headroom {
			applied = headroom
		}
	} else {
		direction = repository.DirectionOut
		applied = -applied
		if applied > oldest.QuantityRemaining {
			applied = oldest.QuantityRemaining
		}
	}

	if applied == 0 {
		// The oldest batch has no room to absorb the correction (already
		// full, or already empty). The discrepancy stays visible in the
		// result but no movement is recorded.
		log.Warn().
			Str("batch_id", oldest.ID).
			Int("difference", result.Difference).
			Msg("reconciliation difference could not be applied to oldest batch")
		result.AdjustedBatch = oldest
		return result, nil
	}

	if direction == repository.DirectionIn {
		err = s.batches.Increment(ctx, oldest.ID, applied)
	} else {
		err = s.batches.Deduct(ctx, oldest.ID, applied)
	}
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("stock reconciliation: counted %d, recorded %d", actualCount, recorded)
	if notes != "" {
		reason += " - " + notes
	}

	a := performer(ctx)
	movement := &repository.Movement{
		MedicineID:      medicineID,
		BatchID:         &oldest.ID,
		Type:            repository.MovementAdjustment,
		Direction:       direction,
		Quantity:        applied,
		Reason:          reason,
		PerformedBy:     a.ID,
		PerformedByName: &a.Name,
	}
	if err := s.ledger.Record(ctx, movement); err != nil {
		log.Error().Err(err).
			Str("batch_id", oldest.ID).
			Msg("adjustment committed but ledger append failed")
		return nil, err
	}

	result.Applied = applied

	adjusted, err := s.batches.GetByID(ctx, oldest.ID)
	if err == nil {
		result.AdjustedBatch = adjusted
	} else {
		result.AdjustedBatch = oldest
	}

	s.publisher.PublishStockReconciled(ctx, medicineID, oldest.ID, result.Difference, applied, a)

	log.Info().
		Str("batch_id", oldest.ID).
		Int("difference", result.Difference).
		Int("applied", applied).
		Bool("system_actor", a.IsSystem()).
		Msg("stock reconciled")

	return result, nil
}
