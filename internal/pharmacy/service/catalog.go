package service

import (
	"context"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// MedicineStore is the persistence contract for the medicine catalog
type MedicineStore interface {
	Create(ctx context.Context, m *repository.Medicine) error
	GetByID(ctx context.Context, id string) (*repository.Medicine, error)
	List(ctx context.Context, page, perPage int) ([]*repository.Medicine, int64, error)
	Update(ctx context.Context, m *repository.Medicine) error
}

// MedicineService owns the medicine catalog. Deliberately small: the catalog
// exists so batches and movements have something to hang off, not as a full
// product information system.
type MedicineService struct {
	medicines MedicineStore
	logger    *logger.Logger
}

// NewMedicineService creates a new medicine service
func NewMedicineService(medicines MedicineStore, log *logger.Logger) *MedicineService {
	return &MedicineService{
		medicines: medicines,
		logger:    log,
	}
}

// CreateMedicine creates a new catalog entry
func (s *MedicineService) CreateMedicine(ctx context.Context, m *repository.Medicine) error {
	details := make(map[string]string)
	if m.Code == "" {
		details["code"] = "this field is required"
	}
	if m.Name == "" {
		details["name"] = "this field is required"
	}
	if m.ReorderThreshold < 0 {
		details["reorder_threshold"] = "must not be negative"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}

	if err := s.medicines.Create(ctx, m); err != nil {
		return err
	}

	s.logger.Info().
		Str("medicine_id", m.ID).
		Str("code", m.Code).
		Msg("medicine created")

	return nil
}

// GetMedicine gets a medicine by ID
func (s *MedicineService) GetMedicine(ctx context.Context, id string) (*repository.Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

// ListMedicines lists medicines with pagination
func (s *MedicineService) ListMedicines(ctx context.Context, page, perPage int) ([]*repository.Medicine, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.medicines.List(ctx, page, perPage)
}

// UpdateMedicine updates a catalog entry
func (s *MedicineService) UpdateMedicine(ctx context.Context, m *repository.Medicine) error {
	if m.ReorderThreshold < 0 {
		return errors.Validation(map[string]string{"reorder_threshold": "must not be negative"})
	}
	return s.medicines.Update(ctx, m)
}
