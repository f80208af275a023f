package handlers

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/services"
)

type ReconcileHandler struct {
	reconcile *services.ReconcileService
}

func NewReconcileHandler(reconcile *services.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{reconcile: reconcile}
}

// AuditBalances reports accounts whose cached balance drifts from the ledgers
// @Summary Audit balances
// @Description Compare cached balances against ledger derivation; read-only
// @Tags reconcile
// @Produce json
// @Security BearerAuth
// @Param accountId query string false "Limit the audit to one account"
// @Success 200 {object} object{drifted=[]services.DriftReport,count=int}
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/reconcile/audit [post]
func (h *ReconcileHandler) AuditBalances(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")

	drifted, err := h.reconcile.AuditBalances(accountID)
	if err != nil {
		log.Printf("[RECONCILE] Audit failed: %v", err)
		services.SendErrorResponse(w, "Audit failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"drifted": drifted,
		"count":   len(drifted),
	})
}

// RepairBalances overwrites drifting balances with their derivation
// @Summary Repair balances
// @Description Overwrite drifting cached balances; fails loudly on residual drift
// @Tags reconcile
// @Produce json
// @Security BearerAuth
// @Param accountId query string false "Limit the repair to one account"
// @Success 200 {object} object{repairedCount=int}
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/reconcile/repair [post]
func (h *ReconcileHandler) RepairBalances(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")

	repaired, err := h.reconcile.RepairBalances(accountID)
	if err != nil {
		log.Printf("[RECONCILE] Repair failed: %v", err)
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"repairedCount": repaired})
}
