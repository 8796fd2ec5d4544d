package role

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/oidc"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/result"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
)

// Handler exposes role management. Routes are expected to sit behind a
// role check.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// audit logs which caller asked for a role change.
func (h *Handler) audit(r *http.Request) {
	actor := ""
	if c, ok := oidc.ClaimsFromContext(r.Context()); ok {
		actor = c.Subject
	}
	h.logger.Infow("role change requested", "by", actor, "method", r.Method, "path", r.URL.Path)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	h.audit(r)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		h.logger.Debugw("invalid role payload", "path", r.URL.Path, "err", err)
		result.Respond(w, struct{}{}, result.ErrInvalidClientRequest)
		return false
	}
	return true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.svc.CreateRole(r.Context(), req)
	result.Respond(w, role, err)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.svc.UpdateRole(r.Context(), req)
	result.Respond(w, role, err)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	h.audit(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		result.Respond(w, entity.Role{}, result.ErrInvalidClientRequest)
		return
	}
	role, err := h.svc.RemoveRole(r.Context(), id)
	result.Respond(w, role, err)
}

func (h *Handler) AddForUser(w http.ResponseWriter, r *http.Request) {
	var req UserRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.svc.AddRoleForUser(r.Context(), req)
	result.Respond(w, view, err)
}

func (h *Handler) UpdateForUser(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.svc.UpdateRoleForUser(r.Context(), req)
	result.Respond(w, view, err)
}

func (h *Handler) RemoveForUser(w http.ResponseWriter, r *http.Request) {
	var req UserRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.svc.RemoveRoleForUser(r.Context(), req)
	result.Respond(w, view, err)
}
