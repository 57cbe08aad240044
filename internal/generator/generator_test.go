package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// fakeModel returns a canned response, optionally after a delay.
type fakeModel struct {
	content string
	err     error
	delay   time.Duration
	lastIn  []*schema.Message
}

func (f *fakeModel) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.lastIn = in
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

const validPlanJSON = `{
  "days": [
    {"meals": [{"slot": "lunch", "options": [
      {"name": "milanesa al horno",
       "ingredients": [{"name": "pollo", "grams": 150, "free_portion": false, "tags": []}],
       "preparation": "Hornear 25 minutos.",
       "macros": {"calories": 520, "protein_g": 45, "carb_g": 30, "fat_g": 22}}
    ]}]},
    {"meals": [{"slot": "lunch", "options": [
      {"name": "milanesa al horno",
       "ingredients": [{"name": "pollo", "grams": 150}],
       "preparation": "Hornear 25 minutos.",
       "macros": {"calories": 520, "protein_g": 45, "carb_g": 30, "fat_g": 22}}
    ]}]},
    {"meals": [{"slot": "lunch", "options": [
      {"name": "milanesa al horno",
       "ingredients": [{"name": "pollo", "grams": 150}],
       "preparation": "Hornear 25 minutos.",
       "macros": {"calories": 520, "protein_g": 45, "carb_g": 30, "fat_g": 22}}
    ]}]}
  ],
  "summary": "Plan de mantenimiento."
}`

func Test_GeneratePlan_ParsesEnvelope(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{content: validPlanJSON}
	g, err := New(fm, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plan, err := g.GeneratePlan(context.Background(), Request{
		Motor:     MotorNewPatient,
		PatientID: "p1",
		Targets:   nutrition.NutrientTargets{Calories: 2000},
	})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}

	if len(plan.Days) != 3 {
		t.Fatalf("got %d days, want 3", len(plan.Days))
	}
	if plan.PatientID != "p1" || plan.Motor != string(MotorNewPatient) {
		t.Errorf("plan provenance = %q/%q", plan.PatientID, plan.Motor)
	}
	if plan.Targets.Calories != 2000 {
		t.Errorf("targets not carried onto plan")
	}
	opt := plan.Days[0].Meals[0].Options[0]
	if opt.Name != "milanesa al horno" || opt.Macros.Calories != 520 {
		t.Errorf("unexpected first option: %+v", opt)
	}
	if plan.Frozen() {
		t.Error("generated draft must start unfrozen")
	}
}

func Test_GeneratePlan_StripsMarkdownFence(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{content: "Aquí está el plan:\n```json\n" + validPlanJSON + "\n```"}
	g, _ := New(fm, Config{})

	plan, err := g.GeneratePlan(context.Background(), Request{Motor: MotorNewPatient})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(plan.Days) != 3 {
		t.Errorf("got %d days, want 3", len(plan.Days))
	}
}

func Test_GeneratePlan_MalformedOutput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
	}{
		{"no json", "no puedo generar el plan"},
		{"truncated json", `{"days": [`},
		{"empty days", `{"days": [], "summary": "x"}`},
	}
	for _, tc := range cases {
		fm := &fakeModel{content: tc.content}
		g, _ := New(fm, Config{})
		_, err := g.GeneratePlan(context.Background(), Request{Motor: MotorNewPatient})
		if !errors.Is(err, nutrition.ErrPlanStructureInvalid) {
			t.Errorf("%s: err = %v, want ErrPlanStructureInvalid", tc.name, err)
		}
	}
}

func Test_GeneratePlan_Timeout(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{content: validPlanJSON, delay: 200 * time.Millisecond}
	g, _ := New(fm, Config{AttemptTimeout: 10 * time.Millisecond})

	_, err := g.GeneratePlan(context.Background(), Request{Motor: MotorNewPatient})
	if !errors.Is(err, nutrition.ErrGenerationTimeout) {
		t.Errorf("err = %v, want ErrGenerationTimeout", err)
	}
}

func Test_GeneratePlan_BackendFailure(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{err: errors.New("connection refused")}
	g, _ := New(fm, Config{})

	_, err := g.GeneratePlan(context.Background(), Request{Motor: MotorNewPatient})
	if !errors.Is(err, nutrition.ErrGenerationUnavailable) {
		t.Errorf("err = %v, want ErrGenerationUnavailable", err)
	}
}

func Test_GeneratePlan_CallerCancellation(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{content: validPlanJSON, delay: time.Second}
	g, _ := New(fm, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.GeneratePlan(ctx, Request{Motor: MotorNewPatient})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, nutrition.ErrGenerationTimeout) {
		t.Error("caller cancellation misclassified as timeout")
	}
}

func Test_GeneratePlan_ControlPromptCarriesDirectives(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{content: validPlanJSON}
	g, _ := New(fm, Config{})

	_, err := g.GeneratePlan(context.Background(), Request{
		Motor: MotorControl,
		Directives: nutrition.Directives{
			Add:    []string{"más verduras"},
			Remove: []string{"frutos secos"},
			Keep:   []string{"desayuno"},
		},
	})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}

	user := fm.lastIn[len(fm.lastIn)-1].Content
	for _, want := range []string{"AGREGAR: más verduras", "SACAR: frutos secos", "DEJAR: desayuno"} {
		if !strings.Contains(user, want) {
			t.Errorf("control prompt missing %q", want)
		}
	}
}

func Test_GenerateReplacement_ParsesMeal(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{content: `{
	  "slot": "lunch",
	  "options": [{
	    "name": "wok de tofu",
	    "ingredients": [{"name": "tofu", "grams": 120, "tags": []}],
	    "preparation": "Saltear 10 minutos.",
	    "macros": {"calories": 455, "protein_g": 28, "carb_g": 35, "fat_g": 20}
	  }]
	}`}
	g, _ := New(fm, Config{})

	meal, err := g.GenerateReplacement(context.Background(), Request{
		Motor: MotorReplacement,
		Slot:  nutrition.SlotLunch,
		Window: nutrition.MacroWindow{
			Center:    nutrition.MacroProfile{Calories: 450},
			Tolerance: 0.05,
		},
	})
	if err != nil {
		t.Fatalf("GenerateReplacement: %v", err)
	}
	if meal.Slot != nutrition.SlotLunch {
		t.Errorf("slot = %s, want lunch", meal.Slot)
	}
	if meal.Options[0].Macros.Calories != 455 {
		t.Errorf("calories = %.0f, want 455", meal.Options[0].Macros.Calories)
	}
}
