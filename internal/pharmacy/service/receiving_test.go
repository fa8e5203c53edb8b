package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceive_CreatesBatchAndLedgerEntry(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Ceftriaxone 1g", 0)

	svc := newStockService(batches, ledger, catalog)

	poRef := "PO-2026-0142"
	expiry := time.Now().AddDate(1, 0, 0)
	batch, err := svc.Receive(ctx, service.ReceiveRequest{
		MedicineID:   medicine.ID,
		LotNumber:    "CTX-77812",
		ExpiryDate:   expiry,
		Quantity:     200,
		UnitCost:     decimal.NewFromFloat(1.85),
		SellingPrice: decimal.NewFromFloat(3.50),
		PORef:        &poRef,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, 200, batch.QuantityReceived)
	assert.Equal(t, 200, batch.QuantityRemaining, "remaining starts equal to received")
	assert.Equal(t, repository.BatchStatusActive, batch.Status)

	ins := ledger.byType(repository.MovementIn)
	require.Len(t, ins, 1)
	assert.Equal(t, batch.ID, *ins[0].BatchID)
	assert.Equal(t, 200, ins[0].Quantity)
	assert.Equal(t, repository.DirectionIn, ins[0].Direction)
	require.NotNil(t, ins[0].Reference)
	assert.Equal(t, poRef, *ins[0].Reference)
}

func TestReceive_RepeatedLotNumberCreatesSeparateBatch(t *testing.T) {
	ctx := context.Background()
	batches := newFakeBatchStore()
	ledger := &fakeLedger{}
	catalog := newFakeCatalog()
	medicine := catalog.add("Insulin Glargine", 0)

	svc := newStockService(batches, ledger, catalog)

	req := service.ReceiveRequest{
		MedicineID: medicine.ID,
		LotNumber:  "INS-100",
		ExpiryDate: time.Now().AddDate(0, 8, 0),
		Quantity:   30,
	}
	first, err := svc.Receive(ctx, req)
	require.NoError(t, err)
	second, err := svc.Receive(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "lots are never merged")

	all, err := batches.ListByMedicine(ctx, medicine.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReceive_Validation(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	medicine := catalog.add("Morphine 10mg", 0)
	svc := newStockService(newFakeBatchStore(), &fakeLedger{}, catalog)

	valid := service.ReceiveRequest{
		MedicineID: medicine.ID,
		LotNumber:  "MOR-1",
		ExpiryDate: time.Now().AddDate(0, 6, 0),
		Quantity:   10,
	}

	t.Run("zero quantity", func(t *testing.T) {
		req := valid
		req.Quantity = 0
		_, err := svc.Receive(ctx, req)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("missing lot number", func(t *testing.T) {
		req := valid
		req.LotNumber = ""
		_, err := svc.Receive(ctx, req)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("zero expiry date", func(t *testing.T) {
		req := valid
		req.ExpiryDate = time.Time{}
		_, err := svc.Receive(ctx, req)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("negative unit cost", func(t *testing.T) {
		req := valid
		req.UnitCost = decimal.NewFromInt(-1)
		_, err := svc.Receive(ctx, req)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("unknown medicine", func(t *testing.T) {
		req := valid
		req.MedicineID = "no-such-id"
		_, err := svc.Receive(ctx, req)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}
