package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nutria-ai/nutria-go/internal/motor"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// fakePlanner is a test double for the planner interface. Each method returns
// the configured value and records the request it received.
type fakePlanner struct {
	// plan is returned by NewPatient and Control.
	plan *nutrition.NutritionPlan
	// replaceResult is returned by Replace.
	replaceResult *motor.ReplaceResult
	// err is returned by every method; nil means success.
	err error

	// lastControl records the most recent Control request.
	lastControl motor.ControlRequest
	// lastReplace records the most recent Replace request.
	lastReplace motor.ReplaceRequest
}

func (f *fakePlanner) NewPatient(_ context.Context, _ motor.NewPatientRequest) (*nutrition.NutritionPlan, error) {
	return f.plan, f.err
}

func (f *fakePlanner) Control(_ context.Context, req motor.ControlRequest) (*nutrition.NutritionPlan, error) {
	f.lastControl = req
	return f.plan, f.err
}

func (f *fakePlanner) Replace(_ context.Context, req motor.ReplaceRequest) (*motor.ReplaceResult, error) {
	f.lastReplace = req
	return f.replaceResult, f.err
}

// newTestServer builds a *Server with a fake planner and an isolated metrics
// registry so tests never touch prometheus.DefaultRegisterer.
func newTestServer() *Server {
	return newTestServerWith(&fakePlanner{plan: acceptedPlan()})
}

func newTestServerWith(p planner) *Server {
	return &Server{
		planner: p,
		cfg:     &Config{PlanTimeout: time.Minute},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

func acceptedPlan() *nutrition.NutritionPlan {
	plan := &nutrition.NutritionPlan{
		PatientID: "pac-1",
		Motor:     "nuevo_paciente",
		Targets:   nutrition.NutrientTargets{Calories: 2000, ProteinG: 75, CarbG: 275, FatG: 67},
	}
	for range nutrition.PlanDays {
		plan.Days = append(plan.Days, nutrition.PlanDay{
			Meals: []nutrition.Meal{{
				Slot: nutrition.SlotLunch,
				Options: []nutrition.MealOption{{
					Name:        "pollo grillado",
					Preparation: "Grillar.",
					Ingredients: []nutrition.Ingredient{{Name: "pollo", Grams: 150, Basis: nutrition.WeightRaw}},
					Macros:      nutrition.MacroProfile{Calories: 700, ProteinG: 45, CarbG: 60, FatG: 20},
				}},
			}},
		})
	}
	plan.Freeze()
	return plan
}

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func Test_HandleNewPlan_Success(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	w := postJSON(t, s.handleNewPlan, "/api/plan/new",
		`{"patientId":"pac-1","patient":{"name":"Ana","meals_per_day":3}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp planResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Plan == nil || resp.Plan.PatientID != "pac-1" {
		t.Errorf("want plan for pac-1, got %+v", resp.Plan)
	}
	if len(resp.Plan.Days) != nutrition.PlanDays {
		t.Errorf("want %d days, got %d", nutrition.PlanDays, len(resp.Plan.Days))
	}
}

func Test_HandleNewPlan_InvalidBody(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	w := postJSON(t, s.handleNewPlan, "/api/plan/new", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("want 400 for malformed body, got %d", w.Code)
	}
}

func Test_HandleNewPlan_MissingPatientID(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	w := postJSON(t, s.handleNewPlan, "/api/plan/new", `{"patient":{"name":"Ana"}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("want 400 without patientId, got %d", w.Code)
	}
}

func Test_HandleNewPlan_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient candidates", nutrition.ErrInsufficientCandidates, http.StatusUnprocessableEntity},
		{"index unavailable", nutrition.ErrIndexUnavailable, http.StatusServiceUnavailable},
		{"generation timeout", nutrition.ErrGenerationTimeout, http.StatusGatewayTimeout},
		{"generation unavailable", nutrition.ErrGenerationUnavailable, http.StatusBadGateway},
		{"validation exhausted", nutrition.ErrValidationExhausted, http.StatusBadGateway},
		{"structure invalid", nutrition.ErrPlanStructureInvalid, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServerWith(&fakePlanner{err: tc.err})

			w := postJSON(t, s.handleNewPlan, "/api/plan/new", `{"patientId":"pac-1"}`)
			if w.Code != tc.want {
				t.Errorf("want %d, got %d", tc.want, w.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error == "" {
				t.Error("want non-empty error message")
			}
		})
	}
}

func Test_HandleControlPlan_ParsesDirectives(t *testing.T) {
	t.Parallel()
	fake := &fakePlanner{plan: acceptedPlan()}
	s := newTestServerWith(fake)

	w := postJSON(t, s.handleControlPlan, "/api/plan/control",
		`{"patientId":"pac-1","directives":"AGREGAR: yogur\nSACAR: frutos secos\nDEJAR: desayuno"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d — body: %s", w.Code, w.Body.String())
	}
	d := fake.lastControl.Directives
	if len(d.Add) != 1 || d.Add[0] != "yogur" {
		t.Errorf("want Add=[yogur], got %v", d.Add)
	}
	if len(d.Remove) != 1 || d.Remove[0] != "frutos secos" {
		t.Errorf("want Remove=[frutos secos], got %v", d.Remove)
	}
	if len(d.Keep) != 1 || d.Keep[0] != "desayuno" {
		t.Errorf("want Keep=[desayuno], got %v", d.Keep)
	}
}

func Test_HandleReplacePlan_Success(t *testing.T) {
	t.Parallel()
	plan := acceptedPlan()
	meal := &plan.Days[0].Meals[0]
	fake := &fakePlanner{replaceResult: &motor.ReplaceResult{Meal: meal, Plan: plan}}
	s := newTestServerWith(fake)

	w := postJSON(t, s.handleReplacePlan, "/api/plan/replace",
		`{"patientId":"pac-1","slot":"lunch","reason":"no come pescado"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if fake.lastReplace.Slot != nutrition.SlotLunch {
		t.Errorf("want slot lunch, got %q", fake.lastReplace.Slot)
	}
	if fake.lastReplace.Reason != "no come pescado" {
		t.Errorf("want reason forwarded, got %q", fake.lastReplace.Reason)
	}
	var resp replacePlanResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Meal == nil || resp.Plan == nil {
		t.Error("want meal and plan in response")
	}
}

func Test_HandleReplacePlan_MissingSlot(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	w := postJSON(t, s.handleReplacePlan, "/api/plan/replace", `{"patientId":"pac-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("want 400 without slot, got %d", w.Code)
	}
}

func Test_HandleReplacePlan_SpanishSlotName(t *testing.T) {
	t.Parallel()
	plan := acceptedPlan()
	meal := &plan.Days[0].Meals[0]
	fake := &fakePlanner{replaceResult: &motor.ReplaceResult{Meal: meal, Plan: plan}}
	s := newTestServerWith(fake)

	w := postJSON(t, s.handleReplacePlan, "/api/plan/replace",
		`{"patientId":"pac-1","slot":"almuerzo"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if fake.lastReplace.Slot != nutrition.SlotLunch {
		t.Errorf("want slot resolved to lunch, got %q", fake.lastReplace.Slot)
	}
}

func Test_HandleReplacePlan_UnknownSlot(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	w := postJSON(t, s.handleReplacePlan, "/api/plan/replace",
		`{"patientId":"pac-1","slot":"brunch"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("want 400 for unknown slot, got %d", w.Code)
	}
}
