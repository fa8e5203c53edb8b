package service

import (
	"context"
	"sync"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/events"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/actor"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// BatchStore is the contract the allocation engine composes over. Deduct
// must be an atomic decrement-if-sufficient: it either applies the full
// amount or fails with errors.ErrInsufficientQuantity, never partially and
// never below zero. Increment carries the matching guard against exceeding
// the received quantity.
type BatchStore interface {
	Create(ctx context.Context, batch *repository.Batch) error
	GetByID(ctx context.Context, id string) (*repository.Batch, error)
	ListEligible(ctx context.Context, medicineID string) ([]*repository.Batch, error)
	ListByMedicine(ctx context.Context, medicineID string) ([]*repository.Batch, error)
	Deduct(ctx context.Context, batchID string, amount int) error
	Increment(ctx context.Context, batchID string, amount int) error
	UpdateStatus(ctx context.Context, batchID, status string) error
	RecordedTotal(ctx context.Context, medicineID string) (int, error)
	ExpiringWithin(ctx context.Context, days int) ([]*repository.Batch, error)
}

// Ledger is the append-only movement log. Implementations must reject
// non-positive quantities and never mutate recorded entries.
type Ledger interface {
	Record(ctx context.Context, m *repository.Movement) error
	History(ctx context.Context, filter repository.MovementFilter) ([]*repository.Movement, int64, error)
}

// Catalog is the read-only view of the medicine reference data
type Catalog interface {
	GetByID(ctx context.Context, id string) (*repository.Medicine, error)
}

// StockService owns receiving, allocation, reconciliation and write-offs.
// All quantity movements flow through here; handlers never touch the batch
// store directly.
type StockService struct {
	batches   BatchStore
	ledger    Ledger
	medicines Catalog
	publisher *events.StockEventPublisher
	logger    *logger.Logger

	// reconciliation is serialized per medicine: it reads a sum across many
	// batches before writing, so unlike allocation it cannot lean on the
	// single-batch conditional update alone.
	reconMu sync.Mutex
	recon   map[string]*sync.Mutex
}

// NewStockService creates a new stock service
func NewStockService(
	batches BatchStore,
	ledger Ledger,
	medicines Catalog,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *StockService {
	return &StockService{
		batches:   batches,
		ledger:    ledger,
		medicines: medicines,
		publisher: publisher,
		logger:    log,
		recon:     make(map[string]*sync.Mutex),
	}
}

// MedicineStock is the stock view for one medicine
type MedicineStock struct {
	Medicine       *repository.Medicine `json:"medicine"`
	Total          int                  `json:"total"`
	BelowThreshold bool                 `json:"below_threshold"`
	Batches        []*repository.Batch  `json:"batches"`
}

// GetMedicineStock returns the recorded total and reorder flag for a medicine
func (s *StockService) GetMedicineStock(ctx context.Context, medicineID string) (*MedicineStock, error) {
	medicine, err := s.medicines.GetByID(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	total, err := s.batches.RecordedTotal(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	batches, err := s.batches.ListByMedicine(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	return &MedicineStock{
		Medicine:       medicine,
		Total:          total,
		BelowThreshold: total < medicine.ReorderThreshold,
		Batches:        withDerivedStatus(batches),
	}, nil
}

// GetBatch gets a batch by ID
func (s *StockService) GetBatch(ctx context.Context, id string) (*repository.Batch, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	batch.Status = batch.EffectiveStatus(time.Now())
	return batch, nil
}

// ListBatches lists all batches of a medicine, oldest expiry first
func (s *StockService) ListBatches(ctx context.Context, medicineID string) ([]*repository.Batch, error) {
	if _, err := s.medicines.GetByID(ctx, medicineID); err != nil {
		return nil, err
	}
	batches, err := s.batches.ListByMedicine(ctx, medicineID)
	if err != nil {
		return nil, err
	}
	return withDerivedStatus(batches), nil
}

// ListExpiringBatches lists batches with stock expiring within the given days
func (s *StockService) ListExpiringBatches(ctx context.Context, days int) ([]*repository.Batch, error) {
	batches, err := s.batches.ExpiringWithin(ctx, days)
	if err != nil {
		return nil, err
	}
	return withDerivedStatus(batches), nil
}

// withDerivedStatus stamps the derived status onto batches before they leave
// the service. Expiry is evaluated on read, so a lot that expired since its
// last write reads as expired even while the stored column still says active.
func withDerivedStatus(batches []*repository.Batch) []*repository.Batch {
	now := time.Now()
	for _, b := range batches {
		b.Status = b.EffectiveStatus(now)
	}
	return batches
}

// History lists ledger movements matching the filter
func (s *StockService) History(ctx context.Context, filter repository.MovementFilter) ([]*repository.Movement, int64, error) {
	return s.ledger.History(ctx, filter)
}

// reconLock returns the per-medicine reconciliation lock
func (s *StockService) reconLock(medicineID string) *sync.Mutex {
	s.reconMu.Lock()
	defer s.reconMu.Unlock()

	mu, ok := s.recon[medicineID]
	if !ok {
		mu = &sync.Mutex{}
		s.recon[medicineID] = mu
	}
	return mu
}

// performer resolves the acting user from the context, falling back to the
// system actor for unauthenticated internal calls.
func performer(ctx context.Context) *actor.Actor {
	if a := actor.FromContext(ctx); a != nil {
		return a
	}
	return actor.SystemActor()
}

// checkLowStock flags a medicine whose recorded total fell below its reorder
// threshold. Flag only: reordering itself is out of scope.
func (s *StockService) checkLowStock(ctx context.Context, medicineID string) {
	medicine, err := s.medicines.GetByID(ctx, medicineID)
	if err != nil {
		return
	}

	total, err := s.batches.RecordedTotal(ctx, medicineID)
	if err != nil {
		return
	}

	if total < medicine.ReorderThreshold {
		s.logger.Warn().
			Str("medicine_id", medicineID).
			Int("total", total).
			Int("threshold", medicine.ReorderThreshold).
			Msg("stock below reorder threshold")
		s.publisher.PublishStockLow(ctx, medicine, total)
	}
}
