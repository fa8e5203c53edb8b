package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// Movement types. Quantity is always a positive magnitude; the direction of
// the movement is carried by the type (ADJUSTMENT carries it explicitly).
const (
	MovementIn         = "IN"
	MovementOut        = "OUT"
	MovementAdjustment = "ADJUSTMENT"
	MovementDamaged    = "DAMAGED"
	MovementExpired    = "EXPIRED"
)

// Movement directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Movement is one immutable ledger entry. Entries are never updated or
// deleted; a committed movement is only ever reversed by a compensating
// ADJUSTMENT.
type Movement struct {
	ID              string    `db:"id" json:"id"`
	MedicineID      string    `db:"medicine_id" json:"medicine_id"`
	BatchID         *string   `db:"batch_id" json:"batch_id,omitempty"`
	Type            string    `db:"movement_type" json:"type"`
	Direction       string    `db:"direction" json:"direction"`
	Quantity        int       `db:"quantity" json:"quantity"`
	Reason          string    `db:"reason" json:"reason"`
	Reference       *string   `db:"reference" json:"reference,omitempty"`
	PerformedBy     string    `db:"performed_by" json:"performed_by"`
	PerformedByName *string   `db:"performed_by_name" json:"performed_by_name,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// SignedQuantity returns the movement's quantity with its direction applied.
// Summing signed quantities over a batch reconstructs
// quantity_received - quantity_remaining at any point in time.
func (m *Movement) SignedQuantity() int {
	if m.Direction == DirectionOut {
		return -m.Quantity
	}
	return m.Quantity
}

// directionFor returns the implied direction for a movement type, or empty
// for ADJUSTMENT which must state its own.
func directionFor(movementType string) string {
	switch movementType {
	case MovementIn:
		return DirectionIn
	case MovementOut, MovementDamaged, MovementExpired:
		return DirectionOut
	default:
		return ""
	}
}

// MovementFilter narrows ledger history queries
type MovementFilter struct {
	MedicineID  string
	Type        string
	PerformedBy string
	From        *time.Time
	To          *time.Time
	Page        int
	PerPage     int
}

// LedgerRepository handles the append-only movement ledger.
// No method on this type updates or deletes an existing row.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Record appends one movement. Validation happens before any write: the
// quantity must be a positive magnitude, the type must be known, and an
// ADJUSTMENT must carry a reason and an explicit direction.
func (r *LedgerRepository) Record(ctx context.Context, m *Movement) error {
	if m.Quantity <= 0 {
		return errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}

	switch m.Type {
	case MovementIn, MovementOut, MovementDamaged, MovementExpired:
		m.Direction = directionFor(m.Type)
	case MovementAdjustment:
		if m.Reason == "" {
			return errors.Validation(map[string]string{"reason": "required for adjustments"})
		}
		if m.Direction != DirectionIn && m.Direction != DirectionOut {
			return errors.Validation(map[string]string{"direction": "must be in or out"})
		}
	default:
		return errors.Validation(map[string]string{"type": "must be one of: IN, OUT, ADJUSTMENT, DAMAGED, EXPIRED"})
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (
			id, medicine_id, batch_id, movement_type, direction, quantity,
			reason, reference, performed_by, performed_by_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.MedicineID, m.BatchID, m.Type, m.Direction, m.Quantity,
		m.Reason, m.Reference, m.PerformedBy, m.PerformedByName,
	).Scan(&m.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// History lists movements matching the filter, newest first
func (r *LedgerRepository) History(ctx context.Context, filter MovementFilter) ([]*Movement, int64, error) {
	args := []interface{}{}
	argIdx := 1

	countQuery := `SELECT COUNT(*) FROM stock_movements WHERE 1=1`
	query := `SELECT * FROM stock_movements WHERE 1=1`

	if filter.MedicineID != "" {
		countQuery += fmt.Sprintf(` AND medicine_id = $%d`, argIdx)
		query += fmt.Sprintf(` AND medicine_id = $%d`, argIdx)
		args = append(args, filter.MedicineID)
		argIdx++
	}

	if filter.Type != "" {
		countQuery += fmt.Sprintf(` AND movement_type = $%d`, argIdx)
		query += fmt.Sprintf(` AND movement_type = $%d`, argIdx)
		args = append(args, filter.Type)
		argIdx++
	}

	if filter.PerformedBy != "" {
		countQuery += fmt.Sprintf(` AND performed_by = $%d`, argIdx)
		query += fmt.Sprintf(` AND performed_by = $%d`, argIdx)
		args = append(args, filter.PerformedBy)
		argIdx++
	}

	if filter.From != nil {
		countQuery += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, *filter.From)
		argIdx++
	}

	if filter.To != nil {
		countQuery += fmt.Sprintf(` AND created_at <= $%d`, argIdx)
		query += fmt.Sprintf(` AND created_at <= $%d`, argIdx)
		args = append(args, *filter.To)
		argIdx++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC`

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}
	offset := (page - 1) * perPage
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, perPage, offset)

	var movements []*Movement
	if err := r.db.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}

// SumForBatch returns the signed sum of all movements referencing a batch.
// For a consistent ledger this equals quantity_received - quantity_remaining
// of the batch, negated to the batch's perspective: IN and upward adjustments
// count positive, everything leaving the batch counts negative.
func (r *LedgerRepository) SumForBatch(ctx context.Context, batchID string) (int, error) {
	var sum int
	query := `
		SELECT COALESCE(SUM(CASE WHEN direction = 'in' THEN quantity ELSE -quantity END), 0)
		FROM stock_movements WHERE batch_id = $1
	`
	if err := r.db.GetContext(ctx, &sum, query, batchID); err != nil {
		return 0, err
	}
	return sum, nil
}
