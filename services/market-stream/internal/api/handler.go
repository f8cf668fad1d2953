// services/market-stream/internal/api/handler.go

// Package api, HTTP-управление сессией и живой лог.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/credstore"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/session"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/sink"
)

// Session — то, чем API управляет.
type Session interface {
	Connect(ctx context.Context, creds credstore.Credentials) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Logout(ctx context.Context) error
	Status() session.Status
}

// Handler агрегирует зависимости HTTP-хендлеров.
type Handler struct {
	sess Session
	logs *sink.Buffer
	log  *logger.Logger
}

// NewHandler создаёт Handler.
func NewHandler(sess Session, logs *sink.Buffer, log *logger.Logger) *Handler {
	return &Handler{sess: sess, logs: logs, log: log.Named("api")}
}

type startRequest struct {
	Subdomain   string `json:"subdomain"`
	APIKey      string `json:"apiKey"`
	AccessToken string `json:"accessToken"`
}

// StartSession — POST /session.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	err := h.sess.Connect(r.Context(), credstore.Credentials{
		Subdomain:   req.Subdomain,
		APIKey:      req.APIKey,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		h.fail(w, r, "start session", err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.sess.Status())
}

// Logout — DELETE /session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Logout(r.Context()); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Status())
}

// Pause — POST /session/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Pause(r.Context()); err != nil {
		h.fail(w, r, "pause", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Status())
}

// Resume — POST /session/resume.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Resume(r.Context()); err != nil {
		h.fail(w, r, "resume", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Status())
}

// Status — GET /status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Status())
}

// Logs — GET /logs: текущее окно лога.
func (h *Handler) Logs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"lines": h.logs.Lines()})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, credstore.ErrInvalidCredentials):
		badRequest(w, err.Error())
	case errors.Is(err, session.ErrLoggedOut):
		conflict(w, "session is logged out")
	case errors.Is(err, session.ErrStopped):
		unavailable(w, "session controller stopped")
	default:
		h.log.WithContext(r.Context()).Error(op+" failed", zap.Error(err))
		internalError(w, op+" failed")
	}
}
