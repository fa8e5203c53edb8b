package service

import (
	"context"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// ReceiveRequest brings a new lot into stock
type ReceiveRequest struct {
	MedicineID   string
	LotNumber    string
	ExpiryDate   time.Time
	Quantity     int
	UnitCost     decimal.Decimal
	SellingPrice decimal.Decimal
	Location     *string
	PORef        *string
}

// Receive creates a new batch and its IN ledger entry. A repeated lot number
// still gets its own batch row so expiry and cost attribution stay exact;
// lots are never merged. Creation-only, so there is no race to guard here.
func (s *StockService) Receive(ctx context.Context, req ReceiveRequest) (*repository.Batch, error) {
	details := make(map[string]string)
	if req.Quantity <= 0 {
		details["quantity"] = "must be greater than zero"
	}
	if req.LotNumber == "" {
		details["lot_number"] = "this field is required"
	}
	if req.ExpiryDate.IsZero() {
		details["expiry_date"] = "must be a valid date"
	}
	if req.UnitCost.IsNegative() || req.SellingPrice.IsNegative() {
		details["unit_cost"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	// The medicine must exist in the catalog before stock can land on it.
	medicine, err := s.medicines.GetByID(ctx, req.MedicineID)
	if err != nil {
		return nil, err
	}

	batch := &repository.Batch{
		MedicineID:        medicine.ID,
		LotNumber:         req.LotNumber,
		ExpiryDate:        req.ExpiryDate,
		QuantityReceived:  req.Quantity,
		QuantityRemaining: req.Quantity,
		UnitCost:          req.UnitCost,
		SellingPrice:      req.SellingPrice,
		Location:          req.Location,
		Status:            repository.BatchStatusActive,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	a := performer(ctx)
	movement := &repository.Movement{
		MedicineID:      medicine.ID,
		BatchID:         &batch.ID,
		Type:            repository.MovementIn,
		Quantity:        req.Quantity,
		Reason:          "stock received",
		Reference:       req.PORef,
		PerformedBy:     a.ID,
		PerformedByName: &a.Name,
	}
	if err := s.ledger.Record(ctx, movement); err != nil {
		s.logger.Error().Err(err).
			Str("batch_id", batch.ID).
			Msg("batch created but IN ledger append failed")
		return nil, err
	}

	s.publisher.PublishBatchReceived(ctx, batch, a, req.PORef)

	s.logger.Info().
		Str("medicine_id", medicine.ID).
		Str("batch_id", batch.ID).
		Str("lot_number", batch.LotNumber).
		Int("quantity", batch.QuantityReceived).
		Msg("batch received")

	return batch, nil
}
