// Package ws streams the log bus to operators over a websocket.
package ws

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"order_notifier/internal/logbus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Handler struct {
	bus          *logbus.Bus
	allowOrigins []string
	token        string
	upgrader     websocket.Upgrader
}

// NewHandler serves the log stream. The token must be presented as a bearer
// header or a token query parameter; with no token the stream is refused.
func NewHandler(bus *logbus.Bus, allowOrigins []string, token string) *Handler {
	h := &Handler{
		bus:          bus,
		allowOrigins: allowOrigins,
		token:        strings.TrimSpace(token),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

// filter narrows the stream to one minimum level and, optionally, to the
// entries of a single request or event.
type filter struct {
	minLevel  int
	requestID string
	eventID   string
}

func filterFrom(r *http.Request) filter {
	q := r.URL.Query()
	return filter{
		minLevel:  logbus.Rank(q.Get("level")),
		requestID: strings.TrimSpace(q.Get("requestId")),
		eventID:   strings.TrimSpace(q.Get("eventId")),
	}
}

func (f filter) pass(msg logbus.Message) bool {
	d, ok := msg.Data.(logbus.LogData)
	if !ok {
		return f.requestID == "" && f.eventID == ""
	}
	if logbus.Rank(d.Level) < f.minLevel {
		return false
	}
	if f.requestID != "" && d.Fields["requestId"] != f.requestID {
		return false
	}
	if f.eventID != "" && d.Fields["eventId"] != f.eventID {
		return false
	}
	return true
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		http.Error(w, "log stream disabled: no admin token configured", http.StatusForbidden)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	f := filterFrom(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := h.bus.Subscribe(256)
	defer cancel()

	send := func(msg logbus.Message) error {
		if !f.pass(msg) {
			return nil
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}
	for _, msg := range h.bus.Snapshot() {
		if err := send(msg); err != nil {
			return
		}
	}

	// Reads only serve to notice the client going away and to answer pongs.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := send(msg); err != nil {
				return
			}
		}
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowOrigins) == 0 {
		return false
	}
	for _, o := range h.allowOrigins {
		if o == "*" {
			return true
		}
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
