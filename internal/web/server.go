// Package web provides an HTTP status server for the stall-sensor daemon.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/stall-sensor/internal/status"
	"github.com/sweeney/stall-sensor/internal/store"
)

// DefaultRecentLimit is the number of decisions returned by /decisions.json
// when no limit is given.
const DefaultRecentLimit = 50

const maxRecentLimit = 1000

// DecisionLog lists recently recorded decisions.
type DecisionLog interface {
	Recent(ctx context.Context, limit int) ([]store.Entry, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	log        DecisionLog
}

// New creates a Server that reads state from the given tracker.
// log may be nil, in which case /decisions.json is not served.
func New(addr string, tracker *status.Tracker, log DecisionLog) *Server {
	s := &Server{tracker: tracker, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/metrics", s.handleMetrics)
	if log != nil {
		mux.HandleFunc("/decisions.json", s.handleDecisions)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		slog.Warn("web: render index", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", string(status.MetricsFormat))
	if err := status.WriteMetrics(w, snap); err != nil {
		slog.Warn("web: write metrics", "err", err)
	}
}

// DecisionJSON is one entry of the /decisions.json response.
type DecisionJSON struct {
	RunID          string  `json:"run_id"`
	Seq            uint64  `json:"seq"`
	Timestamp      float64 `json:"timestamp"`
	PredictedStall bool    `json:"predicted_stall"`
	Score          float64 `json:"score"`
	RecordedAt     string  `json:"recorded_at"`
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	entries, err := s.log.Recent(r.Context(), limit)
	if err != nil {
		slog.Warn("web: recent decisions", "err", err)
		http.Error(w, "decision log unavailable", http.StatusInternalServerError)
		return
	}

	out := make([]DecisionJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, DecisionJSON{
			RunID:          e.RunID,
			Seq:            e.Decision.Seq,
			Timestamp:      e.Decision.Timestamp,
			PredictedStall: e.Decision.Positive,
			Score:          e.Decision.Score,
			RecordedAt:     e.RecordedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
