package identity

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler exposes the invitation acceptance endpoint.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// AcceptInvitationRequest request body for the accept endpoint.
type AcceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type AcceptInvitationResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		h.logger.Debugw("invalid accept payload", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	i, err := h.svc.AcceptInvitation(r.Context(), req.Token, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrWeakPassword):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrInvitationInvalid), errors.Is(err, ErrInvitationExpired):
			h.logger.Debugw("accept invitation rejected", "err", err)
			writeJSON(w, http.StatusGone, map[string]string{"error": err.Error()})
		default:
			h.logger.Warnw("accept invitation failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "accept invitation failed"})
		}
		return
	}
	writeJSON(w, http.StatusOK, AcceptInvitationResponse{UserID: i.ID, Email: i.Email})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
