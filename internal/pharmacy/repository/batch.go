package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Batch statuses
const (
	BatchStatusActive   = "active"
	BatchStatusDepleted = "depleted"
	BatchStatusExpired  = "expired"
	BatchStatusDamaged  = "damaged"
)

// Batch represents one received lot of a medicine. The received quantity is
// immutable; the remaining quantity only moves through Deduct and Increment.
type Batch struct {
	ID                string          `db:"id" json:"id"`
	MedicineID        string          `db:"medicine_id" json:"medicine_id"`
	LotNumber         string          `db:"lot_number" json:"lot_number"`
	ExpiryDate        time.Time       `db:"expiry_date" json:"expiry_date"`
	QuantityReceived  int             `db:"quantity_received" json:"quantity_received"`
	QuantityRemaining int             `db:"quantity_remaining" json:"quantity_remaining"`
	UnitCost          decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	SellingPrice      decimal.Decimal `db:"selling_price" json:"selling_price"`
	Location          *string         `db:"location" json:"location,omitempty"`
	Status            string          `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus derives the batch status from its quantity and expiry
// instead of trusting the stored flag alone. Expiry is checked on read;
// there is no background sweep.
func (b *Batch) EffectiveStatus(now time.Time) string {
	if b.Status == BatchStatusDamaged {
		return BatchStatusDamaged
	}
	if b.QuantityRemaining == 0 {
		return BatchStatusDepleted
	}
	if b.ExpiryDate.Before(now) {
		return BatchStatusExpired
	}
	return BatchStatusActive
}

// BatchRepository handles batch persistence.
//
// Deduct is the concurrency-critical primitive: it is a single conditional
// UPDATE, so two allocations racing for the same batch can never drive the
// remaining quantity negative.
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch. Receiving always creates a new row, even for a
// repeated lot number, so expiry and cost attribution stay exact.
func (r *BatchRepository) Create(ctx context.Context, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = BatchStatusActive
	}

	query := `
		INSERT INTO medicine_batches (
			id, medicine_id, lot_number, expiry_date, quantity_received,
			quantity_remaining, unit_cost, selling_price, location, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.MedicineID, batch.LotNumber, batch.ExpiryDate,
		batch.QuantityReceived, batch.QuantityRemaining, batch.UnitCost,
		batch.SellingPrice, batch.Location, batch.Status,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM medicine_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListEligible lists the batches an allocation may deduct from: active,
// unexpired, with stock remaining, ordered oldest expiry first with creation
// order as the tie-breaker. Callers re-query before every allocation pass;
// nothing is cached.
func (r *BatchRepository) ListEligible(ctx context.Context, medicineID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM medicine_batches
		WHERE medicine_id = $1 AND status = 'active'
		AND quantity_remaining > 0 AND expiry_date >= NOW()
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListByMedicine lists all batches for a medicine, newest expiry last
func (r *BatchRepository) ListByMedicine(ctx context.Context, medicineID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM medicine_batches
		WHERE medicine_id = $1
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

// Deduct atomically decrements the remaining quantity of a batch. The WHERE
// guard makes it a decrement-if-sufficient: when another allocation got there
// first, zero rows match and ErrInsufficientQuantity is returned so the
// caller can move on to the next batch. A batch that reaches zero flips to
// depleted in the same statement.
func (r *BatchRepository) Deduct(ctx context.Context, batchID string, amount int) error {
	if amount <= 0 {
		return errors.Validation(map[string]string{"amount": "must be greater than zero"})
	}

	query := `
		UPDATE medicine_batches SET
			quantity_remaining = quantity_remaining - $2,
			status = CASE WHEN quantity_remaining - $2 = 0 THEN 'depleted' ELSE status END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND quantity_remaining >= $2
	`

	result, err := r.db.ExecContext(ctx, query, batchID, amount)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.ErrInsufficientQuantity
	}

	return nil
}

// Increment raises the remaining quantity of a batch. Used only by
// reconciliation; never lets remaining exceed the received quantity, and
// reactivates a depleted batch. A failed guard is reported as
// ErrInsufficientQuantity so the reconciler's retry loop can re-read and
// recompute.
func (r *BatchRepository) Increment(ctx context.Context, batchID string, amount int) error {
	if amount <= 0 {
		return errors.Validation(map[string]string{"amount": "must be greater than zero"})
	}

	query := `
		UPDATE medicine_batches SET
			quantity_remaining = quantity_remaining + $2,
			status = CASE WHEN status = 'depleted' THEN 'active' ELSE status END,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('active', 'depleted')
		AND quantity_remaining + $2 <= quantity_received
	`

	result, err := r.db.ExecContext(ctx, query, batchID, amount)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.ErrInsufficientQuantity
	}

	return nil
}

// UpdateStatus sets the stored status of a batch (damaged/expired write-offs)
func (r *BatchRepository) UpdateStatus(ctx context.Context, batchID, status string) error {
	query := `UPDATE medicine_batches SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, batchID, status)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}

	return nil
}

// RecordedTotal sums the remaining quantity across eligible batches. This is
// the recorded stock a physical count is reconciled against.
func (r *BatchRepository) RecordedTotal(ctx context.Context, medicineID string) (int, error) {
	var total sql.NullInt64
	query := `
		SELECT SUM(quantity_remaining) FROM medicine_batches
		WHERE medicine_id = $1 AND status = 'active'
		AND quantity_remaining > 0 AND expiry_date >= NOW()
	`
	if err := r.db.GetContext(ctx, &total, query, medicineID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// ExpiringWithin lists batches with stock remaining that expire within the
// given number of days
func (r *BatchRepository) ExpiringWithin(ctx context.Context, days int) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM medicine_batches
		WHERE status = 'active' AND quantity_remaining > 0
		AND expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY expiry_date
	`
	if err := r.db.SelectContext(ctx, &batches, query, days); err != nil {
		return nil, err
	}
	return batches, nil
}
