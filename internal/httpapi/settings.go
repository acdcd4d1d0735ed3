package httpapi

import (
	"context"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"order_notifier/internal/model"
	"order_notifier/internal/notify"
)

type notifySettingsPayload struct {
	Enabled     *bool   `json:"enabled,omitempty"`
	FromName    *string `json:"fromName,omitempty"`
	FromAddress *string `json:"fromAddress,omitempty"`
	BccAddress  *string `json:"bccAddress,omitempty"`
}

type notifyTestPayload struct {
	Email string `json:"email"`
}

// effectiveSettings reports what an unconfigured store means: sending is on
// and the identity comes from the config file.
func (s *Server) effectiveSettings(ctx context.Context) (model.NotifySettings, error) {
	val, ok, err := s.store.GetNotifySettings(ctx)
	if err != nil {
		return model.NotifySettings{}, err
	}
	if !ok {
		return model.NotifySettings{Enabled: true}, nil
	}
	return val, nil
}

func (s *Server) handleGetNotifySettings(w http.ResponseWriter, r *http.Request) {
	val, err := s.effectiveSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": val,
		"defaults": map[string]any{
			"fromName":    s.cfg.Mail.FromName,
			"fromAddress": s.cfg.Mail.FromAddress,
		},
	})
}

func (s *Server) handleUpdateNotifySettings(w http.ResponseWriter, r *http.Request) {
	var body notifySettingsPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	current, err := s.effectiveSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	next := current
	if body.Enabled != nil {
		next.Enabled = *body.Enabled
	}
	if body.FromName != nil {
		next.FromName = strings.TrimSpace(*body.FromName)
	}
	if body.FromAddress != nil {
		next.FromAddress = strings.TrimSpace(*body.FromAddress)
	}
	if body.BccAddress != nil {
		next.BccAddress = strings.TrimSpace(*body.BccAddress)
	}
	if err := next.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	saved, err := s.store.UpsertNotifySettings(r.Context(), next)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	s.bus.Log("info", "notify settings updated", map[string]any{"enabled": saved.Enabled})
	writeJSON(w, http.StatusOK, map[string]any{"data": saved})
}

func (s *Server) handleNotifySettingsHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hist, err := s.store.NotifySettingsHistory(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": hist})
}

// handleNotifyTest sends the sample confirmation to the given address
// through the live transport.
func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	if s.composer == nil || s.sender == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "mail is not configured"})
		return
	}
	var body notifyTestPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	to := strings.TrimSpace(body.Email)
	if _, err := mail.ParseAddress(to); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid email"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	msg := s.composer.Compose(notify.SampleOrder(to))
	if err := s.sender.Deliver(ctx, "", msg); err != nil {
		s.bus.Log("warn", "test confirmation failed", map[string]any{"to": to, "error": err})
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	s.bus.Log("info", "test confirmation sent", map[string]any{"to": to})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
