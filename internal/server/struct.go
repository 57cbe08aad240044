package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nutria-ai/nutria-go/internal/motor"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must cover a full generate-validate-repair cycle.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// PlanTimeout is the per-request deadline for plan generation, covering
	// every repair attempt. Defaults to 5 minutes if zero.
	PlanTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metrics. If nil,
	// prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. If nil, prometheus.DefaultGatherer
	// is used.
	MetricsGatherer prometheus.Gatherer
}

// planner is the interface the plan handlers call. *motor.Pipeline satisfies
// it; tests inject a fake.
type planner interface {
	// NewPatient generates, validates, and archives a first full plan.
	NewPatient(ctx context.Context, req motor.NewPatientRequest) (*nutrition.NutritionPlan, error)
	// Control adjusts a prior plan under AGREGAR/SACAR/DEJAR directives.
	Control(ctx context.Context, req motor.ControlRequest) (*nutrition.NutritionPlan, error)
	// Replace swaps one meal for a calorically equivalent alternative.
	Replace(ctx context.Context, req motor.ReplaceRequest) (*motor.ReplaceResult, error)
}

// Server is the HTTP server that exposes the plan motors.
type Server struct {
	// planner runs the three plan flows; set to a *motor.Pipeline in
	// production, overridden by a fake in tests.
	planner planner
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
}

// newPlanRequest is the JSON body for POST /api/plan/new.
type newPlanRequest struct {
	// PatientID identifies the patient; plans are archived under it.
	PatientID string `json:"patientId"`
	// Patient is the complete intake profile.
	Patient nutrition.PatientProfile `json:"patient"`
	// Targets are externally calculated daily goals. Omitted derives them
	// from the profile.
	Targets *nutrition.NutrientTargets `json:"targets,omitempty"`
}

// controlPlanRequest is the JSON body for POST /api/plan/control.
type controlPlanRequest struct {
	// PatientID identifies the patient.
	PatientID string `json:"patientId"`
	// Patient is the updated profile.
	Patient nutrition.PatientProfile `json:"patient"`
	// Targets are externally calculated daily goals, optional.
	Targets *nutrition.NutrientTargets `json:"targets,omitempty"`
	// Directives is the raw AGREGAR/SACAR/DEJAR sheet text, one directive
	// per line.
	Directives string `json:"directives"`
	// PriorPlan is the plan being adjusted. Omitted loads the patient's
	// latest archived plan.
	PriorPlan *nutrition.NutritionPlan `json:"priorPlan,omitempty"`
}

// replacePlanRequest is the JSON body for POST /api/plan/replace.
type replacePlanRequest struct {
	// PatientID identifies the patient.
	PatientID string `json:"patientId"`
	// Patient is the profile the replacement must respect.
	Patient nutrition.PatientProfile `json:"patient"`
	// Slot names the meal to replace.
	Slot string `json:"slot"`
	// Reason is optional free text folded into retrieval.
	Reason string `json:"reason,omitempty"`
	// PriorPlan is the plan holding the meal. Omitted loads the latest
	// archived plan.
	PriorPlan *nutrition.NutritionPlan `json:"priorPlan,omitempty"`
}

// planResponse is the JSON response for the new-patient and control endpoints.
type planResponse struct {
	// Plan is the accepted, frozen plan.
	Plan *nutrition.NutritionPlan `json:"plan"`
}

// replacePlanResponse is the JSON response for POST /api/plan/replace.
type replacePlanResponse struct {
	// Meal is the validated replacement meal.
	Meal *nutrition.Meal `json:"meal"`
	// Plan is the updated plan with the slot swapped on every day.
	Plan *nutrition.NutritionPlan `json:"plan"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	// Error is a short human-readable description of the failure.
	Error string `json:"error"`
}
