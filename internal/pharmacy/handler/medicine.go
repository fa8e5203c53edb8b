package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// MedicineHandler handles medicine catalog endpoints
type MedicineHandler struct {
	medicines *service.MedicineService
	stock     *service.StockService
	logger    *logger.Logger
}

// NewMedicineHandler creates a new medicine handler
func NewMedicineHandler(medicines *service.MedicineService, stock *service.StockService, log *logger.Logger) *MedicineHandler {
	return &MedicineHandler{
		medicines: medicines,
		stock:     stock,
		logger:    log,
	}
}

// Create creates a new medicine
func (h *MedicineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code             string `json:"code" validate:"required,max=64"`
		Name             string `json:"name" validate:"required,max=255"`
		Form             string `json:"form"`
		Strength         string `json:"strength"`
		ReorderThreshold int    `json:"reorder_threshold" validate:"gte=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	medicine := &repository.Medicine{
		Code:             req.Code,
		Name:             req.Name,
		Form:             req.Form,
		Strength:         req.Strength,
		ReorderThreshold: req.ReorderThreshold,
	}
	if err := h.medicines.CreateMedicine(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, medicine)
}

// Get gets a medicine by ID
func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	medicine, err := h.medicines.GetMedicine(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// List lists medicines
func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	medicines, total, err := h.medicines.ListMedicines(r.Context(), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	httputil.JSONWithMeta(w, http.StatusOK, medicines, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Update updates a medicine
func (h *MedicineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	medicine, err := h.medicines.GetMedicine(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req struct {
		Code             *string `json:"code"`
		Name             *string `json:"name"`
		Form             *string `json:"form"`
		Strength         *string `json:"strength"`
		ReorderThreshold *int    `json:"reorder_threshold"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if req.Code != nil {
		medicine.Code = *req.Code
	}
	if req.Name != nil {
		medicine.Name = *req.Name
	}
	if req.Form != nil {
		medicine.Form = *req.Form
	}
	if req.Strength != nil {
		medicine.Strength = *req.Strength
	}
	if req.ReorderThreshold != nil {
		medicine.ReorderThreshold = *req.ReorderThreshold
	}

	if err := h.medicines.UpdateMedicine(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// Stock returns the recorded stock view for a medicine
func (h *MedicineHandler) Stock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	stock, err := h.stock.GetMedicineStock(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stock)
}
