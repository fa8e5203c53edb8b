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

func TestReconcile_NoDriftIsNoOp(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Amlodipine 5mg", 0)

	batches.add(medicine.ID, "LOT-A", time.Now().AddDate(0, 2, 0), 10, 10)
	batches.add(medicine.ID, "LOT-B", time.Now().AddDate(0, 4, 0), 5, 5)

	svc := newStockService(batches, ledger, catalog)

	result, err := svc.Reconcile(ctx, medicine.ID, 15, "")
	require.NoError(t, err)

	assert.Equal(t, 15, result.RecordedTotal)
	assert.Equal(t, 0, result.Difference)
	assert.Equal(t, 0, result.Applied)
	assert.Empty(t, ledger.movements, "a clean count leaves no ledger trace")
}

func TestReconcile_ShrinkageDeductsOldestBatch(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Lisinopril 10mg", 0)

	oldest := batches.add(medicine.ID, "LOT-OLD", time.Now().AddDate(0, 1, 0), 10, 10)
	batches.add(medicine.ID, "LOT-NEW", time.Now().AddDate(0, 6, 0), 5, 5)

	svc := newStockService(batches, ledger, catalog)

	// Counted 12 against a recorded 15.
	result, err := svc.Reconcile(ctx, medicine.ID, 12, "cycle count")
	require.NoError(t, err)

	assert.Equal(t, -3, result.Difference)
	assert.Equal(t, 3, result.Applied)
	require.NotNil(t, result.AdjustedBatch)
	assert.Equal(t, oldest.ID, result.AdjustedBatch.ID)
	assert.Equal(t, 7, result.AdjustedBatch.QuantityRemaining)

	adjustments := ledger.byType(repository.MovementAdjustment)
	require.Len(t, adjustments, 1)
	assert.Equal(t, repository.DirectionOut, adjustments[0].Direction)
	assert.Equal(t, 3, adjustments[0].Quantity)
	assert.Equal(t, -3, adjustments[0].SignedQuantity())
	assert.Contains(t, adjustments[0].Reason, "cycle count")
}

func TestReconcile_SurplusIncrementsOldestBatch(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Atorvastatin 20mg", 0)

	oldest := batches.add(medicine.ID, "LOT-OLD", time.Now().AddDate(0, 1, 0), 10, 7)

	svc := newStockService(batches, ledger, catalog)

	result, err := svc.Reconcile(ctx, medicine.ID, 9, "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Difference)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, oldest.ID, result.AdjustedBatch.ID)
	assert.Equal(t, 9, result.AdjustedBatch.QuantityRemaining)

	adjustments := ledger.byType(repository.MovementAdjustment)
	require.Len(t, adjustments, 1)
	assert.Equal(t, repository.DirectionIn, adjustments[0].Direction)
	assert.Equal(t, 2, adjustments[0].Quantity)
}

func TestReconcile_SurplusClampedAtReceivedQuantity(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Simvastatin 40mg", 0)

	// Oldest batch can only absorb 2 more units before hitting its
	// received quantity.
	batches.add(medicine.ID, "LOT-OLD", time.Now().AddDate(0, 1, 0), 10, 8)

	svc := newStockService(batches, ledger, catalog)

	result, err := svc.Reconcile(ctx, medicine.ID, 13, "")
	require.NoError(t, err)

	assert.Equal(t, 5, result.Difference)
	assert.Equal(t, 2, result.Applied, "correction clamps at quantity_received")
	assert.Equal(t, 10, result.AdjustedBatch.QuantityRemaining)

	adjustments := ledger.byType(repository.MovementAdjustment)
	require.Len(t, adjustments, 1)
	assert.Equal(t, 2, adjustments[0].Quantity, "ledger records the applied amount, not the raw difference")
}

func TestReconcile_SurplusWithNoHeadroomAppliesNothing(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Clopidogrel 75mg", 0)

	// The oldest batch is already at its received quantity, so an upward
	// correction has nowhere to go.
	oldest := batches.add(medicine.ID, "LOT-OLD", time.Now().AddDate(0, 1, 0), 10, 10)

	svc := newStockService(batches, ledger, catalog)

	result, err := svc.Reconcile(ctx, medicine.ID, 14, "")
	require.NoError(t, err)

	assert.Equal(t, 4, result.Difference)
	assert.Equal(t, 0, result.Applied)
	require.NotNil(t, result.AdjustedBatch)
	assert.Equal(t, oldest.ID, result.AdjustedBatch.ID)
	assert.Equal(t, 10, result.AdjustedBatch.QuantityRemaining)
	assert.Empty(t, ledger.movements, "nothing applied, nothing recorded")
}

func TestReconcile_ShrinkageClampedAtZero(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Losartan 50mg", 0)

	oldest := batches.add(medicine.ID, "LOT-OLD", time.Now().AddDate(0, 1, 0), 5, 5)
	batches.add(medicine.ID, "LOT-NEW", time.Now().AddDate(0, 6, 0), 10, 10)

	svc := newStockService(batches, ledger, catalog)

	// Counted 3 against a recorded 15. The full difference of 12 exceeds
	// the oldest batch's remaining 5.
	result, err := svc.Reconcile(ctx, medicine.ID, 3, "")
	require.NoError(t, err)

	assert.Equal(t, -12, result.Difference)
	assert.Equal(t, 5, result.Applied)
	assert.Equal(t, oldest.ID, result.AdjustedBatch.ID)
	assert.Equal(t, 0, result.AdjustedBatch.QuantityRemaining)
	assert.Equal(t, repository.BatchStatusDepleted, result.AdjustedBatch.Status)
}

func TestReconcile_SurplusWithNoBatchFails(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Ramipril 2.5mg", 0)

	svc := newStockService(batches, ledger, catalog)

	_, err := svc.Reconcile(ctx, medicine.ID, 7, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoBatchToAdjust))
	assert.Empty(t, ledger.movements)
}

func TestReconcile_InvalidInput(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	medicine := catalog.add("Bisoprolol 5mg", 0)
	svc := newStockService(newFakeBatchStore(), &fakeLedger{}, catalog)

	t.Run("negative count", func(t *testing.T) {
		_, err := svc.Reconcile(ctx, medicine.ID, -1, "")
		assert.Error(t, err)
	})

	t.Run("unknown medicine", func(t *testing.T) {
		_, err := svc.Reconcile(ctx, "no-such-id", 5, "")
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}
