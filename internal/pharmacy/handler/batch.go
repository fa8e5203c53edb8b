package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.StockService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Receive receives a new batch of a medicine into stock
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "id")

	var req struct {
		LotNumber    string          `json:"lot_number" validate:"required,max=64"`
		ExpiryDate   string          `json:"expiry_date" validate:"required"`
		Quantity     int             `json:"quantity" validate:"required,gt=0"`
		UnitCost     decimal.Decimal `json:"unit_cost"`
		SellingPrice decimal.Decimal `json:"selling_price"`
		Location     *string         `json:"location"`
		PORef        *string         `json:"po_ref"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"expiry_date": "must be a date in YYYY-MM-DD format"}))
		return
	}

	batch, err := h.service.Receive(r.Context(), service.ReceiveRequest{
		MedicineID:   medicineID,
		LotNumber:    req.LotNumber,
		ExpiryDate:   expiry,
		Quantity:     req.Quantity,
		UnitCost:     req.UnitCost,
		SellingPrice: req.SellingPrice,
		Location:     req.Location,
		PORef:        req.PORef,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// Get gets a batch by ID
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// ListByMedicine lists all batches of a medicine
func (h *BatchHandler) ListByMedicine(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "id")

	batches, err := h.service.ListBatches(r.Context(), medicineID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Expiring lists batches with stock expiring within the given window
func (h *BatchHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.Error(w, errors.Validation(map[string]string{"days": "must be a positive integer"}))
			return
		}
		days = parsed
	}

	batches, err := h.service.ListExpiringBatches(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// WriteOff writes off a batch's remaining stock as damaged or expired
func (h *BatchHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req struct {
		Type   string `json:"type" validate:"required,oneof=DAMAGED EXPIRED"`
		Reason string `json:"reason" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.WriteOff(r.Context(), batchID, req.Type, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
