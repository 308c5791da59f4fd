// Package handler exposes the identity service over HTTP. The three public
// endpoints share a design constraint: their responses never reveal whether
// a targeted credential or account exists.
package handler

import (
	"errors"
	"net/http"

	"github.com/curadesk/identity/internal/model"
	"github.com/curadesk/identity/internal/service"
)

// registerMessage is the fixed acknowledgement every registration attempt
// receives, successful or not.
const registerMessage = "If this email is valid, you will receive an activation code shortly"

// IdentityHandler serves /validate, /activate, and /register.
type IdentityHandler struct {
	svc *service.Identity
}

// NewIdentityHandler creates the handler.
func NewIdentityHandler(svc *service.Identity) *IdentityHandler {
	return &IdentityHandler{svc: svc}
}

type validateRequest struct {
	APIKey string `json:"api_key"`
}

type userInfo struct {
	ID                 int64                    `json:"id"`
	Email              string                   `json:"email"`
	Role               model.Role               `json:"role"`
	SubscriptionStatus model.SubscriptionStatus `json:"subscription_status"`
}

type validateResponse struct {
	Valid bool      `json:"valid"`
	User  *userInfo `json:"user,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Validate checks a presented API key and returns the bound identity.
// A completed check is always HTTP 200; valid=false carries one generic
// message for every rejection cause.
// POST /validate
func (h *IdentityHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, validateResponse{Valid: false, Error: "Invalid request body"})
		return
	}

	user, err := h.svc.Validate(r.Context(), req.APIKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidKey) {
			writeJSON(w, http.StatusOK, validateResponse{Valid: false, Error: "Invalid or revoked API key"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, validateResponse{Valid: false, Error: "Internal error"})
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid: true,
		User: &userInfo{
			ID:                 user.ID,
			Email:              user.Email,
			Role:               user.Role,
			SubscriptionStatus: user.SubscriptionStatus,
		},
	})
}

type activateRequest struct {
	ActivationCode string `json:"activation_code"`
}

type activateResponse struct {
	Success bool   `json:"success"`
	APIKey  string `json:"api_key,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Activate exchanges a one-time activation code for a fresh API key. The
// key appears in this response and is never retrievable again.
// POST /activate
func (h *IdentityHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, activateResponse{Success: false, Error: "Invalid request body"})
		return
	}

	key, err := h.svc.Exchange(r.Context(), req.ActivationCode)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrUsedCode) {
			writeJSON(w, http.StatusOK, activateResponse{Success: false, Error: "Invalid or already used activation code"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, activateResponse{Success: false, Error: "Internal error"})
		return
	}

	writeJSON(w, http.StatusOK, activateResponse{Success: true, APIKey: key})
}

type registerRequest struct {
	Email string `json:"email"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Register provisions an account and emails an activation code. Whatever
// happens internally, the response is the same generic 200. The only
// exception is 503 when no email collaborator is configured at all.
// POST /register
func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		// A malformed body gets the same generic acknowledgement.
		writeJSON(w, http.StatusOK, registerResponse{Success: true, Message: registerMessage})
		return
	}

	if err := h.svc.Register(r.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrEmailNotConfigured) {
			http.Error(w, "Email service not configured", http.StatusServiceUnavailable)
			return
		}
		// Register swallows internal failures; anything else is unexpected
		// but still must not vary the public contract.
	}

	writeJSON(w, http.StatusOK, registerResponse{Success: true, Message: registerMessage})
}
