// Package server implements the HTTP server that exposes the plan motors via
// a REST API. The server is started by the `nutria serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nutria-ai/nutria-go/internal/generator"
	"github.com/nutria-ai/nutria-go/internal/logging"
	"github.com/nutria-ai/nutria-go/internal/motor"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// New constructs a Server from the provided pipeline and config.
func New(pipeline *motor.Pipeline, cfg *Config) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full generate-validate-repair cycle.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.PlanTimeout == 0 {
		cfg.PlanTimeout = 5 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		planner: pipeline,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: API key not configured — authentication disabled")
	}

	// Plan endpoints are authenticated and rate limited; probes and metrics
	// stay open so orchestrators can scrape them.
	protect := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, authMiddleware(cfg.APIKey, rl.middleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/plan/new", protect("plan_new", s.handleNewPlan))
	mux.Handle("POST /api/plan/control", protect("plan_control", s.handleControlPlan))
	mux.Handle("POST /api/plan/replace", protect("plan_replace", s.handleReplacePlan))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleNewPlan handles POST /api/plan/new.
func (s *Server) handleNewPlan(w http.ResponseWriter, r *http.Request) {
	var req newPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PlanTimeout)
	defer cancel()

	done := s.trackPlan(string(generator.MotorNewPatient))
	plan, err := s.planner.NewPatient(ctx, motor.NewPatientRequest{
		PatientID: req.PatientID,
		Patient:   req.Patient,
		Targets:   req.Targets,
	})
	done(err)
	if err != nil {
		s.writePlanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: plan})
}

// handleControlPlan handles POST /api/plan/control.
func (s *Server) handleControlPlan(w http.ResponseWriter, r *http.Request) {
	var req controlPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PlanTimeout)
	defer cancel()

	done := s.trackPlan(string(generator.MotorControl))
	plan, err := s.planner.Control(ctx, motor.ControlRequest{
		PatientID:  req.PatientID,
		Patient:    req.Patient,
		Targets:    req.Targets,
		PriorPlan:  req.PriorPlan,
		Directives: motor.ParseDirectives(req.Directives),
	})
	done(err)
	if err != nil {
		s.writePlanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: plan})
}

// handleReplacePlan handles POST /api/plan/replace.
func (s *Server) handleReplacePlan(w http.ResponseWriter, r *http.Request) {
	var req replacePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	if req.Slot == "" {
		writeError(w, http.StatusBadRequest, "slot is required")
		return
	}
	slot, err := nutrition.ParseSlot(req.Slot)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PlanTimeout)
	defer cancel()

	done := s.trackPlan(string(generator.MotorReplacement))
	res, err := s.planner.Replace(ctx, motor.ReplaceRequest{
		PatientID: req.PatientID,
		Patient:   req.Patient,
		PriorPlan: req.PriorPlan,
		Slot:      slot,
		Reason:    req.Reason,
	})
	done(err)
	if err != nil {
		s.writePlanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replacePlanResponse{Meal: res.Meal, Plan: res.Plan})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writePlanError maps a motor error to an HTTP status. The split follows who
// can fix the problem: 422 asks the caller to loosen the request, 5xx points
// at a dependency.
func (s *Server) writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, nutrition.ErrInsufficientCandidates):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, nutrition.ErrIndexUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, nutrition.ErrGenerationTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, nutrition.ErrGenerationUnavailable),
		errors.Is(err, nutrition.ErrValidationExhausted),
		errors.Is(err, nutrition.ErrPlanStructureInvalid):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		status = http.StatusBadGateway
	}

	log.Error("plan request failed",
		slog.Int("status", status),
		slog.Any("error", err),
	)
	writeError(w, status, err.Error())
}

// trackPlan marks a plan request as in flight. The returned func records the
// outcome and duration once the motor finishes.
func (s *Server) trackPlan(motorName string) func(err error) {
	s.metrics.planInflight.WithLabelValues(motorName).Inc()
	start := time.Now()
	return func(err error) {
		s.metrics.planInflight.WithLabelValues(motorName).Dec()
		s.observePlan(motorName, start, err)
	}
}

// observePlan records the outcome and duration metrics for one plan request.
func (s *Server) observePlan(motorName string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, nutrition.ErrGenerationTimeout):
		outcome = "timeout"
	case errors.Is(err, nutrition.ErrValidationExhausted):
		outcome = "exhausted"
	case err != nil:
		outcome = "error"
	}
	s.metrics.planRequestsTotal.WithLabelValues(motorName, outcome).Inc()
	s.metrics.planDurationSeconds.WithLabelValues(motorName).Observe(time.Since(start).Seconds())
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
