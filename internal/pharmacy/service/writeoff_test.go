package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOff_Damaged(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Diazepam 5mg", 0)

	batch := batches.add(medicine.ID, "LOT-D", time.Now().AddDate(0, 3, 0), 40, 25)

	svc := newStockService(batches, ledger, catalog)

	result, err := svc.WriteOff(ctx, batch.ID, repository.MovementDamaged, "water damage in storage room")
	require.NoError(t, err)

	assert.Equal(t, 25, result.Quantity)
	assert.Equal(t, repository.BatchStatusDamaged, result.Batch.Status)
	assert.Equal(t, 0, result.Batch.QuantityRemaining)

	stored, err := batches.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.BatchStatusDamaged, stored.Status)
	assert.Equal(t, 0, stored.QuantityRemaining)

	damaged := ledger.byType(repository.MovementDamaged)
	require.Len(t, damaged, 1)
	assert.Equal(t, 25, damaged[0].Quantity)
	assert.Equal(t, repository.DirectionOut, damaged[0].Direction)
	assert.Equal(t, -25, damaged[0].SignedQuantity())
}

func TestWriteOff_ExpiredEmptyBatchRecordsNoMovement(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Tramadol 50mg", 0)

	batch := batches.add(medicine.ID, "LOT-E", time.Now().AddDate(0, 1, 0), 10, 0)

	svc := newStockService(batches, ledger, catalog)

	result, err := svc.WriteOff(ctx, batch.ID, repository.MovementExpired, "past expiry date")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Quantity)
	assert.Equal(t, repository.BatchStatusExpired, result.Batch.Status)
	assert.Empty(t, ledger.movements, "a zero-quantity movement would violate the ledger contract")
}

func TestWriteOff_AlreadyWrittenOff(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Codeine 30mg", 0)

	batch := batches.add(medicine.ID, "LOT-C", time.Now().AddDate(0, 2, 0), 20, 20)

	svc := newStockService(batches, ledger, catalog)

	_, err := svc.WriteOff(ctx, batch.ID, repository.MovementDamaged, "dropped pallet")
	require.NoError(t, err)

	_, err = svc.WriteOff(ctx, batch.ID, repository.MovementDamaged, "dropped pallet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	assert.Len(t, ledger.byType(repository.MovementDamaged), 1)
}

func TestWriteOff_InvalidInput(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	catalog := newFakeCatalog()
	medicine := catalog.add("Fentanyl patch", 0)
	batch := batches.add(medicine.ID, "LOT-F", time.Now().AddDate(0, 2, 0), 5, 5)

	svc := newStockService(batches, &fakeLedger{}, catalog)

	t.Run("bad movement type", func(t *testing.T) {
		_, err := svc.WriteOff(ctx, batch.ID, repository.MovementOut, "wrong type")
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("missing reason", func(t *testing.T) {
		_, err := svc.WriteOff(ctx, batch.ID, repository.MovementDamaged, "")
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("unknown batch", func(t *testing.T) {
		_, err := svc.WriteOff(ctx, "no-such-id", repository.MovementDamaged, "x")
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}
