package oidc

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/result"
)

type Handler struct {
	svc    *TokenService
	logger *zap.SugaredLogger
}

func NewHandler(svc *TokenService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Refresh exchanges {accessToken, refreshToken} for a new pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req TokenPair
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" || req.RefreshToken == "" {
		h.logger.Debugw("invalid refresh payload", "err", err)
		result.Respond(w, TokenPair{}, result.ErrInvalidClientRequest)
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req)
	result.Respond(w, pair, err)
}
