package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a mock line-items API and a mock mail API",
		Long: `Serves two upstreams on one listener:
- GET  /v1/checkout/sessions/{id}/line_items  (point processor.baseURL here)
- POST /emails                                (point mail.resend.baseURL here)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			log.Printf("mock upstreams listening on %s", addr)
			return http.ListenAndServe(addr, newMockMux())
		},
	}
	cmd.Flags().String("addr", ":8081", "listen address")
	return cmd
}

func newMockMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		writeMockJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	mux.HandleFunc("/v1/checkout/sessions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			writeMockJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"message": "missing api key"}})
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/v1/checkout/sessions/")
		id, ok := strings.CutSuffix(rest, "/line_items")
		if !ok || id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		writeMockJSON(w, http.StatusOK, map[string]any{
			"object":   "list",
			"has_more": false,
			"data": []map[string]any{
				{"id": "li_1", "description": "Brisket Plate", "quantity": 2, "amount_total": 3600, "price": map[string]any{"unit_amount": 1800}},
				{"id": "li_2", "description": "Cornbread", "quantity": 1, "amount_total": 450, "price": map[string]any{"unit_amount": 450}},
			},
		})
	})

	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			From    string   `json:"from"`
			To      []string `json:"to"`
			Subject string   `json:"subject"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMockJSON(w, http.StatusUnprocessableEntity, map[string]any{"name": "validation_error", "message": err.Error()})
			return
		}
		if len(body.To) == 0 {
			writeMockJSON(w, http.StatusUnprocessableEntity, map[string]any{"name": "validation_error", "message": "to is required"})
			return
		}
		log.Printf("mail accepted from=%q to=%v subject=%q", body.From, body.To, body.Subject)
		writeMockJSON(w, http.StatusOK, map[string]any{"id": uuid.NewString()})
	})
	return mux
}

func writeMockJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
