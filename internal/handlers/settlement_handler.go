package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/config"
	"github.com/consultpoint/backend/internal/services"
)

type SettlementHandler struct {
	settlements *services.SettlementService
	cfg         *config.BillingConfig
}

func NewSettlementHandler(settlements *services.SettlementService, cfg *config.BillingConfig) *SettlementHandler {
	return &SettlementHandler{
		settlements: settlements,
		cfg:         cfg,
	}
}

// ComputeSettlement recomputes a month's settlement snapshots
// @Summary Compute settlement
// @Description Recompute settlement snapshots for a month, replacing any prior run
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param month path string true "Month (YYYY-MM)"
// @Success 200 {object} services.SettlementRun
// @Failure 422 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/settlements/{month} [post]
func (h *SettlementHandler) ComputeSettlement(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")

	// The payout rate in force right now; a rate change between billing and
	// settlement is intentional input, not drift.
	run, err := h.settlements.ComputeSettlement(month, h.cfg.PayoutRate)
	if err != nil {
		log.Printf("[SETTLEMENT] Compute failed for %s: %v", month, err)
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// GetSettlement returns the caller's settlement statement for a month
// @Summary Get settlement
// @Description Get the consultant's settlement snapshot and contributing sessions for a month
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param month path string true "Month (YYYY-MM)"
// @Success 200 {object} object{snapshot=models.SettlementSnapshot,sessions=[]services.SessionDetail}
// @Failure 404 {object} services.ErrorResponse
// @Router /settlements/{month} [get]
func (h *SettlementHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	snapshot, sessions, err := h.settlements.GetSettlement(accountID, chi.URLParam(r, "month"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"snapshot": snapshot,
		"sessions": sessions,
	})
}
