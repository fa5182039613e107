// Package api exposes the assistant's chat, reminder, notification and
// history operations over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/foschi-ia/recordar/internal/notify"
	"github.com/foschi-ia/recordar/internal/proxy"
	"github.com/foschi-ia/recordar/internal/reminder"
	"github.com/foschi-ia/recordar/internal/storage"
	"github.com/foschi-ia/recordar/internal/timeparse"
)

const (
	maxBodySize       = 64 << 10
	defaultHistoryLen = 50
	maxHistoryLen     = 500
)

// ReminderService handles reminder commands and direct reminder CRUD.
type ReminderService interface {
	Handle(ctx context.Context, owner, text string) (reminder.Reply, bool, error)
	Create(ctx context.Context, owner, text string) (storage.Reminder, error)
	List(ctx context.Context, owner string) ([]storage.Reminder, error)
	Clear(ctx context.Context, owner string) (int, error)
}

// Poller drains an owner's fired notifications.
type Poller interface {
	Poll(owner string) []notify.Notification
}

// HistoryStore reads and clears conversation logs.
type HistoryStore interface {
	ListHistory(ctx context.Context, owner string, limit int) ([]storage.HistoryEntry, error)
	ClearHistory(ctx context.Context, owner string) (int, error)
}

// ExchangeRecorder logs one chat turn.
type ExchangeRecorder interface {
	Exchange(ctx context.Context, owner, user, assistant string) error
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the collaborators of the HTTP API.
type Deps struct {
	Reminders ReminderService
	Gateway   Poller
	History   HistoryStore
	Recorder  ExchangeRecorder
	Replier   proxy.Replier
	Health    Pinger // optional
	// Token enables bearer authentication on every route but /health.
	Token  string
	Logger *slog.Logger
}

// PreguntarRequest is the chat request body.
type PreguntarRequest struct {
	Mensaje   string `json:"mensaje"`
	UsuarioID string `json:"usuario_id"`
}

// PreguntarResponse is the chat reply. Recordatorio is set when the message
// created a reminder. UsuarioID echoes the owner the message was filed under,
// which is freshly minted when the request carried none.
type PreguntarResponse struct {
	Texto        string            `json:"texto"`
	UsuarioID    string            `json:"usuario_id"`
	Recordatorio *storage.Reminder `json:"recordatorio,omitempty"`
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Replier == nil {
		deps.Replier = proxy.Echo{}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/preguntar", handlePreguntar(deps))
		r.Get("/notificaciones/{usuario_id}", handlePoll(deps))
		r.Get("/recordatorios/{usuario_id}", handleListReminders(deps))
		r.Post("/recordatorios/{usuario_id}", handleCreateReminder(deps))
		r.Delete("/recordatorios/{usuario_id}", handleClearReminders(deps))
		r.Get("/historial/{usuario_id}", handleGetHistory(deps))
		r.Delete("/historial/{usuario_id}", handleClearHistory(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Health.Ping(ctx); err != nil {
				httpError(w, http.StatusServiceUnavailable, "storage_error", "storage unavailable: %v", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handlePreguntar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req PreguntarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Mensaje = strings.TrimSpace(req.Mensaje)
		if req.Mensaje == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "mensaje is required")
			return
		}

		if req.UsuarioID == "" {
			req.UsuarioID = uuid.New().String()
		}

		ctx := r.Context()
		reply, handled, err := deps.Reminders.Handle(ctx, req.UsuarioID, req.Mensaje)
		if err != nil {
			deps.Logger.Error("reminder command failed", "owner", req.UsuarioID, "error", err)
			httpError(w, http.StatusInternalServerError, "storage_error", "no pude procesar el recordatorio, probá de nuevo")
			return
		}
		if !handled {
			text, err := deps.Replier.Reply(ctx, req.UsuarioID, req.Mensaje)
			if err != nil {
				deps.Logger.Error("reply failed", "owner", req.UsuarioID, "error", err)
				httpError(w, http.StatusBadGateway, "api_error", "reply failed: %v", err)
				return
			}
			reply = reminder.Reply{Text: text}
		}

		if deps.Recorder != nil {
			if err := deps.Recorder.Exchange(ctx, req.UsuarioID, req.Mensaje, reply.Text); err != nil {
				deps.Logger.Warn("history append failed", "owner", req.UsuarioID, "error", err)
			}
		}

		writeJSON(w, http.StatusOK, PreguntarResponse{Texto: reply.Text, UsuarioID: req.UsuarioID, Recordatorio: reply.Reminder})
	}
}

func handlePoll(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "usuario_id")
		writeJSON(w, http.StatusOK, deps.Gateway.Poll(owner))
	}
}

func handleListReminders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "usuario_id")
		pending, err := deps.Reminders.List(r.Context(), owner)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to list reminders: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

type createReminderRequest struct {
	Texto string `json:"texto"`
}

func handleCreateReminder(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		owner := chi.URLParam(r, "usuario_id")
		var req createReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Texto) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "texto is required")
			return
		}

		rem, err := deps.Reminders.Create(r.Context(), owner, req.Texto)
		var perr *timeparse.ParseError
		switch {
		case errors.As(err, &perr):
			httpError(w, http.StatusUnprocessableEntity, "parse_error", "%v", err)
			return
		case errors.Is(err, reminder.ErrLimitReached):
			httpError(w, http.StatusForbidden, "limit_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to create reminder: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, rem)
	}
}

func handleClearReminders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "usuario_id")
		n, err := deps.Reminders.Clear(r.Context(), owner)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to clear reminders: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}

func handleGetHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "usuario_id")
		limit := parseIntParam(r, "limit", defaultHistoryLen, maxHistoryLen)
		entries, err := deps.History.ListHistory(r.Context(), owner, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to read history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleClearHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "usuario_id")
		n, err := deps.History.ClearHistory(r.Context(), owner)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to clear history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}
