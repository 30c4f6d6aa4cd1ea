// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/service"
)

// RegistrationHandler holds all HTTP handlers for the registration portal API.
type RegistrationHandler struct {
	regs   *service.Registrations
	rec    *service.Reconciler
	logger *slog.Logger
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(regs *service.Registrations, rec *service.Reconciler, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{regs: regs, rec: rec, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *RegistrationHandler) badBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body: "+err.Error())
}

// statusFor maps a domain error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "sold_out", "amount_mismatch", "already_paid", "invalid_state":
		return http.StatusConflict
	case "verification_failed", "invalid_input":
		return http.StatusBadRequest
	case "gateway_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError reports a service error. Internal failures are logged
// and answered with a generic message.
func (h *RegistrationHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

// ListWorkshops handles GET /workshops
// Returns every workshop with its live seat counts.
func (h *RegistrationHandler) ListWorkshops(w http.ResponseWriter, r *http.Request) {
	workshops, err := h.regs.WorkshopAvailability(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if workshops == nil {
		workshops = []model.Workshop{}
	}
	writeJSON(w, http.StatusOK, workshops)
}

// Quote handles POST /fees/quote
func (h *RegistrationHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req model.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	b, err := h.regs.Quote(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ─── Registrants ──────────────────────────────────────────────────────────────

// CreateRegistrant handles POST /registrants
func (h *RegistrationHandler) CreateRegistrant(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRegistrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	reg, err := h.regs.Create(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// GetRegistrant handles GET /registrants/{id}
func (h *RegistrationHandler) GetRegistrant(w http.ResponseWriter, r *http.Request) {
	reg, err := h.regs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// QuoteRegistrant handles GET /registrants/{id}/quote
// Prices the registrant's current selections without holding anything.
func (h *RegistrationHandler) QuoteRegistrant(w http.ResponseWriter, r *http.Request) {
	b, err := h.regs.QuoteRegistrant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// SelectWorkshops handles PUT /registrants/{id}/workshops
// Replaces the selection; a seat is held for each newly added workshop.
func (h *RegistrationHandler) SelectWorkshops(w http.ResponseWriter, r *http.Request) {
	var req model.SelectWorkshopsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	reg, err := h.regs.SelectWorkshops(r.Context(), chi.URLParam(r, "id"), req.WorkshopIDs)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// CancelRegistrant handles POST /registrants/{id}/cancel
func (h *RegistrationHandler) CancelRegistrant(w http.ResponseWriter, r *http.Request) {
	reg, err := h.regs.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ─── Payments ─────────────────────────────────────────────────────────────────

// Checkout handles POST /registrants/{id}/checkout
// Opens a gateway order for the freshly computed total.
func (h *RegistrationHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	co, err := h.rec.StartCheckout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.CheckoutResponse{Order: co.Order, Breakdown: co.Breakdown})
}

// ConfirmPayment handles POST /registrants/{id}/payments/confirm
// A repeated confirmation of the same payment answers 200 with applied=false.
func (h *RegistrationHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	c, err := h.rec.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), req.GatewayPaymentID, req.Signature)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ConfirmResponse{Registrant: c.Registrant, Order: c.Order, Applied: c.Applied})
}

// PaymentCallback handles POST /payments/callback
// The gateway's server-to-server notification for an order it settled.
func (h *RegistrationHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req model.GatewayCallbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	if req.GatewayOrderID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "gateway_order_id is required")
		return
	}
	c, err := h.rec.ConfirmGatewayCallback(r.Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		if errors.Is(err, model.ErrVerificationFailed) {
			h.logger.Warn("gateway callback rejected", "gateway_order_id", req.GatewayOrderID)
		}
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ConfirmResponse{Registrant: c.Registrant, Order: c.Order, Applied: c.Applied})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
