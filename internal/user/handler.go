package user

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/oidc"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/result"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
)

// Handler exposes the register and login endpoints.
type Handler struct {
	svc    *AuthService
	logger *zap.SugaredLogger
}

func NewHandler(svc *AuthService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		result.Respond(w, entity.View{}, result.ErrInvalidClientRequest)
		return
	}
	view, err := h.svc.Register(r.Context(), req)
	result.Respond(w, view, err)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		result.Respond(w, oidc.TokenPair{}, result.ErrInvalidClientRequest)
		return
	}
	pair, err := h.svc.Login(r.Context(), req)
	result.Respond(w, pair, err)
}
