package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// AllocationHandler handles stock allocation and reconciliation endpoints
type AllocationHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.StockService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

type allocationRequest struct {
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	Reference *string `json:"reference"`
}

func (h *AllocationHandler) allocate(w http.ResponseWriter, r *http.Request, reason string) {
	medicineID := chi.URLParam(r, "id")

	var req allocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Allocate(r.Context(), service.AllocationRequest{
		MedicineID: medicineID,
		Quantity:   req.Quantity,
		Reason:     reason,
		Reference:  req.Reference,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Dispense allocates stock for patient dispensing
func (h *AllocationHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	h.allocate(w, r, service.ReasonDispense)
}

// Sell allocates stock for a direct sale
func (h *AllocationHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.allocate(w, r, service.ReasonDirectSale)
}

// Issue allocates stock for a ward or department requisition
func (h *AllocationHandler) Issue(w http.ResponseWriter, r *http.Request) {
	h.allocate(w, r, service.ReasonRequisition)
}

// Reconcile corrects recorded stock of a medicine to a physical count
func (h *AllocationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "id")

	var req struct {
		ActualCount int    `json:"actual_count" validate:"gte=0"`
		Notes       string `json:"notes"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Reconcile(r.Context(), medicineID, req.ActualCount, req.Notes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
