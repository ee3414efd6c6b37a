package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"BreachLedger/internal/observability"
	"BreachLedger/internal/query"
	"BreachLedger/internal/rules"
)

// HTTPServer serves the read-only ops/JSON API plus health probes.
type HTTPServer struct {
	addr string
	deps *Deps
}

// Deps carries everything the handlers need.
type Deps struct {
	QueryService  *query.QueryService
	Rules         *rules.Manager
	HealthChecker *observability.HealthChecker
	StartTime     time.Time
}

func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	return &HTTPServer{addr: addr, deps: deps}
}

// Start runs the server until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/breaches/{day}", s.handleListBreaches)
	mux.HandleFunc("GET /v1/breaches/{day}/{instrument}", s.handleGetBreach)
	mux.HandleFunc("GET /v1/notifications/{user}/{day}/{instrument}", s.handleNotificationStatus)
	mux.HandleFunc("GET /v1/stats/{day}", s.handleDayStats)
	mux.HandleFunc("GET /v1/rules", s.handleRules)
	mux.HandleFunc("GET /healthz", s.deps.HealthChecker.LivenessHandler)
	mux.HandleFunc("GET /readyz", s.deps.HealthChecker.ReadinessHandler)

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) handleListBreaches(w http.ResponseWriter, r *http.Request) {
	day := r.PathValue("day")
	breaches, err := s.deps.QueryService.ListBreaches(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if breaches == nil {
		breaches = []query.BreachResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trading_day": day,
		"breaches":    breaches,
	})
}

func (s *HTTPServer) handleGetBreach(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.QueryService.GetBreach(r.Context(), r.PathValue("instrument"), r.PathValue("day"))
	if errors.Is(err, query.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleNotificationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.QueryService.GetNotificationStatus(
		r.Context(), r.PathValue("user"), r.PathValue("day"), r.PathValue("instrument"),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *HTTPServer) handleDayStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.QueryService.GetDayStats(r.Context(), r.PathValue("day"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleRules(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Rules.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threshold_ppm": snap.ThresholdPPM,
		"rule_version":  snap.RuleVersion,
		"uptime":        time.Since(s.deps.StartTime).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
