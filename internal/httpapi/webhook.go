package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"order_notifier/internal/pipeline"
	"order_notifier/internal/signature"
)

const requestIDHeader = "X-Request-Id"

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, reqID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
		return
	}

	raw, err := readRawBody(w, r, s.cfg.Server.MaxBodyBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "Webhook Error: could not read body"
		if errors.As(err, &tooLarge) {
			msg = "Webhook Error: body too large"
		}
		s.bus.Log("warn", "webhook body unreadable", map[string]any{"requestId": reqID, "stage": "receive", "error": err})
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
		return
	}

	out := s.pipeline.Handle(r.Context(), pipeline.Request{
		RawBody:         raw,
		SignatureHeader: r.Header.Get(signature.Header),
		RequestID:       reqID,
	})
	writeJSON(w, out.Status, out.Body)
}
