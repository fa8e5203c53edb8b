package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("pharmacy-service-test", "development")
}

// fakeBatchStore is an in-memory batch store with the same conditional-write
// semantics as the SQL implementation. beforeDeduct lets a test interleave a
// concurrent consumer between the eligibility read and the write.
type fakeBatchStore struct {
	mu           sync.Mutex
	batches      map[string]*repository.Batch
	seq          int
	beforeDeduct func(batchID string)
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{batches: make(map[string]*repository.Batch)}
}

func (s *fakeBatchStore) add(medicineID, lot string, expiry time.Time, received, remaining int) *repository.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	b := &repository.Batch{
		ID:                uuid.New().String(),
		MedicineID:        medicineID,
		LotNumber:         lot,
		ExpiryDate:        expiry,
		QuantityReceived:  received,
		QuantityRemaining: remaining,
		Status:            repository.BatchStatusActive,
		CreatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Minute),
	}
	if remaining == 0 {
		b.Status = repository.BatchStatusDepleted
	}
	s.batches[b.ID] = b
	return b
}

func (s *fakeBatchStore) Create(ctx context.Context, batch *repository.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	batch.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Minute)
	copied := *batch
	s.batches[batch.ID] = &copied
	return nil
}

func (s *fakeBatchStore) GetByID(ctx context.Context, id string) (*repository.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, errors.NotFound("batch")
	}
	copied := *b
	return &copied, nil
}

func (s *fakeBatchStore) ListEligible(ctx context.Context, medicineID string) ([]*repository.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []*repository.Batch
	for _, b := range s.batches {
		if b.MedicineID != medicineID || b.Status != repository.BatchStatusActive {
			continue
		}
		if b.QuantityRemaining <= 0 || b.ExpiryDate.Before(now) {
			continue
		}
		copied := *b
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *fakeBatchStore) ListByMedicine(ctx context.Context, medicineID string) ([]*repository.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*repository.Batch
	for _, b := range s.batches {
		if b.MedicineID != medicineID {
			continue
		}
		copied := *b
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *fakeBatchStore) Deduct(ctx context.Context, batchID string, amount int) error {
	if s.beforeDeduct != nil {
		s.beforeDeduct(batchID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok || b.Status != repository.BatchStatusActive || b.QuantityRemaining < amount {
		return errors.ErrInsufficientQuantity
	}
	b.QuantityRemaining -= amount
	if b.QuantityRemaining == 0 {
		b.Status = repository.BatchStatusDepleted
	}
	return nil
}

func (s *fakeBatchStore) Increment(ctx context.Context, batchID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return errors.ErrInsufficientQuantity
	}
	if b.Status != repository.BatchStatusActive && b.Status != repository.BatchStatusDepleted {
		return errors.ErrInsufficientQuantity
	}
	if b.QuantityRemaining+amount > b.QuantityReceived {
		return errors.ErrInsufficientQuantity
	}
	b.QuantityRemaining += amount
	if b.Status == repository.BatchStatusDepleted {
		b.Status = repository.BatchStatusActive
	}
	return nil
}

func (s *fakeBatchStore) UpdateStatus(ctx context.Context, batchID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return errors.NotFound("batch")
	}
	b.Status = status
	return nil
}

func (s *fakeBatchStore) RecordedTotal(ctx context.Context, medicineID string) (int, error) {
	eligible, _ := s.ListEligible(ctx, medicineID)
	total := 0
	for _, b := range eligible {
		total += b.QuantityRemaining
	}
	return total, nil
}

func (s *fakeBatchStore) ExpiringWithin(ctx context.Context, days int) ([]*repository.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, days)
	var out []*repository.Batch
	for _, b := range s.batches {
		if b.Status != repository.BatchStatusActive || b.QuantityRemaining <= 0 {
			continue
		}
		if b.ExpiryDate.After(cutoff) {
			continue
		}
		copied := *b
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiryDate.Before(out[j].ExpiryDate)
	})
	return out, nil
}

// fakeLedger appends movements in memory. failNext makes a Record call fail
// once; failOn defers the failure to the Nth call instead of the next one.
type fakeLedger struct {
	mu        sync.Mutex
	movements []*repository.Movement
	failNext  error
	failOn    int
	calls     int
}

func (l *fakeLedger) Record(ctx context.Context, m *repository.Movement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.failNext != nil && (l.failOn == 0 || l.calls == l.failOn) {
		err := l.failNext
		l.failNext = nil
		return err
	}

	if m.Quantity <= 0 {
		return errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}
	switch m.Type {
	case repository.MovementIn:
		m.Direction = repository.DirectionIn
	case repository.MovementOut, repository.MovementDamaged, repository.MovementExpired:
		m.Direction = repository.DirectionOut
	case repository.MovementAdjustment:
		if m.Direction != repository.DirectionIn && m.Direction != repository.DirectionOut {
			return errors.Validation(map[string]string{"direction": "must be in or out"})
		}
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	copied := *m
	l.movements = append(l.movements, &copied)
	return nil
}

func (l *fakeLedger) History(ctx context.Context, filter repository.MovementFilter) ([]*repository.Movement, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*repository.Movement
	for _, m := range l.movements {
		if filter.MedicineID != "" && m.MedicineID != filter.MedicineID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		copied := *m
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (l *fakeLedger) byType(movementType string) []*repository.Movement {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*repository.Movement
	for _, m := range l.movements {
		if m.Type == movementType {
			out = append(out, m)
		}
	}
	return out
}

// fakeCatalog is a fixed set of medicines
type fakeCatalog struct {
	medicines map[string]*repository.Medicine
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{medicines: make(map[string]*repository.Medicine)}
}

func (c *fakeCatalog) add(name string, threshold int) *repository.Medicine {
	m := &repository.Medicine{
		ID:               uuid.New().String(),
		Code:             "MED-" + name,
		Name:             name,
		ReorderThreshold: threshold,
	}
	c.medicines[m.ID] = m
	return m
}

func (c *fakeCatalog) GetByID(ctx context.Context, id string) (*repository.Medicine, error) {
	m, ok := c.medicines[id]
	if !ok {
		return nil, errors.NotFound("medicine")
	}
	return m, nil
}
