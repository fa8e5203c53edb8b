package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// Medicine is the catalog reference the allocation engine reads.
// The catalog itself (naming, pricing, classification) is owned elsewhere;
// the engine only needs identity and the reorder threshold.
type Medicine struct {
	ID               string    `db:"id" json:"id"`
	Code             string    `db:"code" json:"code"`
	Name             string    `db:"name" json:"name"`
	Form             string    `db:"form" json:"form"`
	Strength         string    `db:"strength" json:"strength"`
	ReorderThreshold int       `db:"reorder_threshold" json:"reorder_threshold"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// MedicineRepository handles medicine reference persistence
type MedicineRepository struct {
	db *database.DB
}

// NewMedicineRepository creates a new medicine repository
func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

// Create creates a new medicine
func (r *MedicineRepository) Create(ctx context.Context, m *Medicine) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medicines (id, code, name, form, strength, reorder_threshold)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.Code, m.Name, m.Form, m.Strength, m.ReorderThreshold,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a medicine by ID
func (r *MedicineRepository) GetByID(ctx context.Context, id string) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE id = $1`
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// List lists medicines with pagination
func (r *MedicineRepository) List(ctx context.Context, page, perPage int) ([]*Medicine, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM medicines`); err != nil {
		return nil, 0, err
	}

	var medicines []*Medicine
	offset := (page - 1) * perPage
	query := `SELECT * FROM medicines ORDER BY name LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &medicines, query, perPage, offset); err != nil {
		return nil, 0, err
	}
	return medicines, total, nil
}

// Update updates a medicine
func (r *MedicineRepository) Update(ctx context.Context, m *Medicine) error {
	query := `
		UPDATE medicines SET
			code = $2, name = $3, form = $4, strength = $5,
			reorder_threshold = $6, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		m.ID, m.Code, m.Name, m.Form, m.Strength, m.ReorderThreshold,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medicine")
	}

	return nil
}
