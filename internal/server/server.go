package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/AlanMarvin/polytrak/internal/engine"
	"github.com/AlanMarvin/polytrak/internal/metrics"
)

const maxBodyBytes = 4 << 10

// Analyzer runs a stage for a wallet
type Analyzer interface {
	Analyze(ctx context.Context, address string, stage engine.Stage) (*engine.Response, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the engine over HTTP
type Server struct {
	analyzer    Analyzer
	store       Pinger
	corsOrigins []string
	log         *logrus.Logger
}

// New creates a Server. store backs the readiness check.
func New(analyzer Analyzer, store Pinger, corsOrigins []string, log *logrus.Logger) *Server {
	return &Server{
		analyzer:    analyzer,
		store:       store,
		corsOrigins: corsOrigins,
		log:         log,
	}
}

// Handler returns the routed handler with CORS and panic recovery applied
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/trader-analysis", s.postAnalysis).Methods(http.MethodPost)
	r.HandleFunc("/api/traders/{address}/analysis", s.getAnalysis).Methods(http.MethodGet)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.log),
		handlers.PrintRecoveryStack(false),
	)(cors(r))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, port int, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("HTTP server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type analysisRequest struct {
	Address string `json:"address"`
	Stage   string `json:"stage,omitempty"`
}

func (s *Server) postAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.analyze(w, r, req.Address, req.Stage)
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	s.analyze(w, r, mux.Vars(r)["address"], r.URL.Query().Get("stage"))
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, address, stageName string) {
	if address == "" {
		writeErr(w, http.StatusBadRequest, "address is required")
		return
	}
	stage, err := engine.ParseStage(stageName)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.analyzer.Analyze(r.Context(), address, stage)
	if err != nil {
		s.writeAnalysisErr(w, r, err)
		return
	}

	// full keeps its original envelope-less shape
	if stage == engine.StageFull {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", cacheHeader(resp.Cached))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp.Data)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeAnalysisErr(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		// client went away, nobody to answer
		return
	}

	switch {
	case engine.IsValidation(err):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrStageTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]any{
			"error":     "analysis timed out, retry later",
			"retryable": true,
		})
	case errors.Is(err, engine.ErrUpstreamExhausted):
		writeErr(w, http.StatusBadGateway, "upstream data unavailable")
	default:
		s.log.WithError(err).Error("Analysis failed")
		writeErr(w, http.StatusInternalServerError, "analysis failed")
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	metrics.RecordHealthCheck(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		metrics.RecordHealthCheck(false)
		s.log.WithError(err).Warn("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	metrics.RecordHealthCheck(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func cacheHeader(cached bool) string {
	if cached {
		return "HIT"
	}
	return "MISS"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
