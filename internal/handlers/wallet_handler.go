package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/services"
)

func newTransferRef() string {
	return uuid.NewString()
}

type WalletHandler struct {
	ledger    *services.PointLedgerService
	purchases *services.PurchaseService
	validator *services.ValidationHelper
}

func NewWalletHandler(ledger *services.PointLedgerService, purchases *services.PurchaseService) *WalletHandler {
	return &WalletHandler{
		ledger:    ledger,
		purchases: purchases,
		validator: services.NewValidationHelper(),
	}
}

// GetBalance returns the caller's cached point balance
// @Summary Get balance
// @Description Get the authenticated account's point balance
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{accountId=string,balance=int64}
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.ledger.GetBalance(accountID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accountId": accountID,
		"balance":   balance,
	})
}

// Purchase buys points through the payment gateway
// @Summary Purchase points
// @Description Charge money through the payment gateway and credit points on success
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{moneyAmount=int64,pointAmount=int64,method=string,paymentRef=string} true "Purchase request"
// @Success 201 {object} services.PurchaseResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Failure 504 {object} services.ErrorResponse
// @Router /wallet/purchase [post]
func (h *WalletHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		MoneyAmount int64  `json:"moneyAmount" validate:"required,gt=0"`
		PointAmount int64  `json:"pointAmount" validate:"required,gt=0"`
		Method      string `json:"method" validate:"required"`
		PaymentRef  string `json:"paymentRef" validate:"omitempty,max=64"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.purchases.Purchase(r.Context(), accountID, req.MoneyAmount, req.PointAmount, req.Method, req.PaymentRef)
	if err != nil {
		log.Printf("[WALLET] Purchase failed for %s: %v", accountID, err)
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// CancelPurchase reverses a completed purchase
// @Summary Cancel purchase
// @Description Cancel a completed purchase and reverse its point credit
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param ref path string true "Payment reference"
// @Success 200 {object} object{balance=int64}
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /wallet/purchases/{ref}/cancel [post]
func (h *WalletHandler) CancelPurchase(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	ref := chi.URLParam(r, "ref")
	balance, err := h.purchases.CancelPurchase(accountID, ref)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"balance": balance})
}

// Transfer sends points to another account
// @Summary Transfer points
// @Description Transfer points to another account atomically
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{toAccountId=string,amount=int64} true "Transfer request"
// @Success 200 {object} object{remainingBalance=int64}
// @Failure 402 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /wallet/transfer [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ToAccountID string `json:"toAccountId" validate:"required,accountid"`
		Amount      int64  `json:"amount" validate:"required,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	remaining, err := h.ledger.Transfer(accountID, req.ToAccountID, newTransferRef(), req.Amount)
	if err != nil {
		log.Printf("[WALLET] Transfer failed %s -> %s: %v", accountID, req.ToAccountID, err)
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"remainingBalance": remaining})
}

// ListEntries returns the caller's recent point movements
// @Summary List point entries
// @Description Get the account's recent point entry history
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries to return (default: 20, max: 100)"
// @Success 200 {object} object{entries=[]models.PointEntry,count=int}
// @Router /wallet/entries [get]
func (h *WalletHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	entries, err := h.ledger.ListEntries(accountID, limit)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch entries", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
