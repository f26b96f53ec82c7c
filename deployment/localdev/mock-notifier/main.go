package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

type receivedAction struct {
	ActionType string         `json:"actionType"`
	Recipients []string       `json:"recipients"`
	Priority   int            `json:"priority"`
	Event      map[string]any `json:"event"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

var (
	mu       sync.Mutex
	received []receivedAction
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/hooks/actions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var action receivedAction
		if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		action.ReceivedAt = time.Now()

		mu.Lock()
		received = append(received, action)
		total := len(received)
		mu.Unlock()

		writeJSON(w, map[string]any{"accepted": true, "total": total})
	})

	mux.HandleFunc("/received", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		out := make([]receivedAction, len(received))
		copy(out, received)
		mu.Unlock()
		writeJSON(w, map[string]any{"count": len(out), "actions": out})
	})

	// Stands in for a live intelligence source when a feed is not simulated.
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"intelligence_type": "threat_assessment",
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"content":           "Coordinated attack activity observed against regional banking infrastructure",
			"actionable_intelligence": []map[string]any{
				{"type": "immediate_action", "description": "Review perimeter alerts", "deadline": "2h", "responsible_party": "security_team"},
			},
		})
	})

	logger := log.New(log.Writer(), "notifier-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8081",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8081")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
