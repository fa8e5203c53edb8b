package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// LedgerHandler handles movement ledger endpoints
type LedgerHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(svc *service.StockService, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: svc,
		logger:  log,
	}
}

// History lists ledger movements, newest first, filtered by query parameters
func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.MovementFilter{
		MedicineID:  q.Get("medicine_id"),
		Type:        q.Get("type"),
		PerformedBy: q.Get("performed_by"),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"from": "must be an RFC 3339 timestamp"}))
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"to": "must be an RFC 3339 timestamp"}))
			return
		}
		filter.To = &t
	}

	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	movements, total, err := h.service.History(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}
