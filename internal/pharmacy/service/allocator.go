package service

import (
	"context"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// Allocation reasons used by the three call sites. The algorithm is the
// same for all of them; only the reason and reference on the ledger entries
// differ.
const (
	ReasonDispense    = "patient dispensing"
	ReasonDirectSale  = "direct sale"
	ReasonRequisition = "requisition issue"
)

// AllocationRequest asks for a quantity of a medicine to be deducted from
// stock. Reference optionally correlates the movement with a patient visit,
// sale or requisition.
type AllocationRequest struct {
	MedicineID string
	Quantity   int
	Reason     string
	Reference  *string
}

// BatchAllocation is one batch's contribution to an allocation
type BatchAllocation struct {
	Batch    *repository.Batch `json:"batch"`
	Quantity int               `json:"quantity"`
}

// AllocationResult reports what an allocation actually did. Shortfall is a
// normal outcome, not an error: callers decide whether a partial fulfillment
// is acceptable.
type AllocationResult struct {
	Requested int               `json:"requested"`
	Allocated int               `json:"allocated"`
	Shortfall int               `json:"shortfall"`
	Batches   []BatchAllocation `json:"batches"`
}

// Allocate satisfies a request by deducting from eligible batches oldest
// expiry first, writing one OUT ledger entry per deducted batch.
//
// Each deduction is an independent atomic conditional write. When a deduct
// fails because a concurrent allocation consumed the batch first, the batch
// is skipped and the loop moves on; progress already committed is never
// rolled back. Running out of eligible stock is reported through the
// shortfall, never as an error.
func (s *StockService) Allocate(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	if req.Quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}
	if req.MedicineID == "" {
		return nil, errors.Validation(map[string]string{"medicine_id": "this field is required"})
	}

	// Fresh read on every allocation; eligibility is never cached.
	eligible, err := s.batches.ListEligible(ctx, req.MedicineID)
	if err != nil {
		return nil, err
	}

	a := performer(ctx)
	result := &AllocationResult{
		Requested: req.Quantity,
		Shortfall: req.Quantity,
		Batches:   []BatchAllocation{},
	}

	remaining := req.Quantity
	for _, batch := range eligible {
		if remaining == 0 {
			break
		}

		take := remaining
		if batch.QuantityRemaining < take {
			take = batch.QuantityRemaining
		}
		if take == 0 {
			continue
		}

		if err := s.batches.Deduct(ctx, batch.ID, take); err != nil {
			if errors.Is(err, errors.ErrInsufficientQuantity) {
				// Another allocation got there first; the next batch may
				// still have stock.
				s.logger.Debug().
					Str("batch_id", batch.ID).
					Int("take", take).
					Msg("batch consumed concurrently, skipping")
				continue
			}
			result.Allocated = req.Quantity - remaining
			result.Shortfall = remaining
			return result, err
		}

		movement := &repository.Movement{
			MedicineID:      req.MedicineID,
			BatchID:         &batch.ID,
			Type:            repository.MovementOut,
			Quantity:        take,
			Reason:          req.Reason,
			Reference:       req.Reference,
			PerformedBy:     a.ID,
			PerformedByName: &a.Name,
		}
		if err := s.ledger.Record(ctx, movement); err != nil {
			// The deduction is committed; a missing ledger entry would break
			// reconstructability, so this aborts loudly.
			s.logger.Error().Err(err).
				Str("batch_id", batch.ID).
				Int("quantity", take).
				Msg("deduction committed but ledger append failed")
			result.Allocated = req.Quantity - remaining
			result.Shortfall = remaining
			return result, err
		}

		allocated := *batch
		allocated.QuantityRemaining -= take
		if allocated.QuantityRemaining == 0 {
			allocated.Status = repository.BatchStatusDepleted
		}
		result.Batches = append(result.Batches, BatchAllocation{Batch: &allocated, Quantity: take})

		remaining -= take
	}

	result.Allocated = req.Quantity - remaining
	result.Shortfall = remaining

	if result.Allocated > 0 {
		s.publisher.PublishStockAllocated(ctx, req.MedicineID,
			result.Requested, result.Allocated, result.Shortfall,
			req.Reason, req.Reference, a)
		s.checkLowStock(ctx, req.MedicineID)
	}

	return result, nil
}
