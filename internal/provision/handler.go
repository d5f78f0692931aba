package provision

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-gym/internal/auth"
	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/apperr"
)

const maxBodyBytes = 1 << 20

// Handler serves the staff endpoints. Routes are mounted behind
// auth.Authenticate and auth.RequireRole(admin).
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type CreateResponse struct {
	Success bool            `json:"success"`
	UserID  string          `json:"user_id"`
	Staff   *entity.Trainer `json:"staff"`
	Invited bool            `json:"invited"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	requester, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.New(apperr.Unauthenticated, "missing bearer token"))
		return
	}
	var req Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid staff payload", "err", err)
		apperr.Write(w, apperr.New(apperr.ValidationFailure, "invalid JSON body"))
		return
	}
	res, err := h.svc.Provision(r.Context(), requester, req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, CreateResponse{
		Success: true,
		UserID:  res.UserID,
		Staff:   res.Staff,
		Invited: res.Invited,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			apperr.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Warnw("get staff failed", "user_id", r.PathValue("id"), "err", err)
		apperr.Write(w, apperr.Wrap(apperr.Unexpected, err))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, v)
}

// Defaults lists the permission flags new staff start with before overrides.
func (h *Handler) Defaults(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, entity.DefaultFlags())
}
