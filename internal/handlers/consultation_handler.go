package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/services"
)

type ConsultationHandler struct {
	consultations *services.ConsultationService
	validator     *services.ValidationHelper
}

func NewConsultationHandler(consultations *services.ConsultationService) *ConsultationHandler {
	return &ConsultationHandler{
		consultations: consultations,
		validator:     services.NewValidationHelper(),
	}
}

// StartConsultation opens a session with a consultant
// @Summary Start consultation
// @Description Open a consultation session; the consultant's current fee is snapshotted
// @Tags consultations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{consultantId=string,type=string,method=string,startAt=string} true "Start request"
// @Success 201 {object} models.Consultation
// @Failure 402 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /consultations/start [post]
func (h *ConsultationHandler) StartConsultation(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ConsultantID string `json:"consultantId" validate:"required,accountid"`
		Type         string `json:"type" validate:"required,oneof=chat voice video"`
		Method       string `json:"method" validate:"required"`
		StartAt      string `json:"startAt" validate:"omitempty"`
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

	startAt, err := parseOptionalInstant(req.StartAt)
	if err != nil {
		services.SendErrorResponse(w, "Invalid startAt, expected RFC3339", http.StatusBadRequest, nil)
		return
	}

	session, err := h.consultations.StartConsultation(accountID, req.ConsultantID, req.Type, req.Method, startAt)
	if err != nil {
		log.Printf("[CONSULT] Start failed for %s: %v", accountID, err)
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// EndConsultation closes a session and bills it
// @Summary End consultation
// @Description Close a session; computes duration, billed units and charge, and settles both balances
// @Tags consultations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Param request body object{endAt=string} false "End request"
// @Success 200 {object} services.SessionClose
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /consultations/{sessionId}/end [post]
func (h *ConsultationHandler) EndConsultation(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		EndAt string `json:"endAt" validate:"omitempty"`
	}
	if r.ContentLength > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
			return
		}
	}

	endAt, err := parseOptionalInstant(req.EndAt)
	if err != nil {
		services.SendErrorResponse(w, "Invalid endAt, expected RFC3339", http.StatusBadRequest, nil)
		return
	}

	result, err := h.consultations.EndConsultation(sessionID, accountID, endAt)
	if err != nil {
		log.Printf("[CONSULT] End failed for session %s: %v", sessionID, err)
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetConsultation fetches a session visible to its parties
// @Summary Get consultation
// @Description Get a consultation session by ID
// @Tags consultations
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} models.Consultation
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /consultations/{sessionId} [get]
func (h *ConsultationHandler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	session, err := h.consultations.GetConsultation(chi.URLParam(r, "sessionId"), accountID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// UpdateFee sets the caller's consultant fee per billing unit
// @Summary Update consultant fee
// @Description Set the consultant's current fee per billing unit; open sessions keep their snapshotted fee
// @Tags consultations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{feePerUnit=int64} true "Fee update"
// @Success 200 {object} object{feePerUnit=int64}
// @Failure 422 {object} services.ErrorResponse
// @Router /consultants/fee [put]
func (h *ConsultationHandler) UpdateFee(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		FeePerUnit int64 `json:"feePerUnit" validate:"required,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.consultations.UpdateConsultantFee(accountID, req.FeePerUnit); err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"feePerUnit": req.FeePerUnit})
}

func parseOptionalInstant(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
