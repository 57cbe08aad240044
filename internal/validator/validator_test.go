package validator

import (
	"strings"
	"testing"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

var testSlots = []nutrition.Slot{nutrition.SlotBreakfast, nutrition.SlotLunch, nutrition.SlotDinner}

func option(name string, kcal float64) nutrition.MealOption {
	return nutrition.MealOption{
		Name:        name,
		Preparation: "Preparar y servir.",
		Ingredients: []nutrition.Ingredient{{Name: "ingrediente", Grams: 100}},
		Macros:      nutrition.MacroProfile{Calories: kcal, ProteinG: kcal * 0.15 / 4, CarbG: kcal * 0.55 / 4, FatG: kcal * 0.30 / 9},
	}
}

// validPlan builds a 3-day plan hitting 2000 kcal/day with one option per
// meal (tests use MinOptions 1 unless they exercise the option rule).
func validPlan() *nutrition.NutritionPlan {
	day := func() nutrition.PlanDay {
		return nutrition.PlanDay{Meals: []nutrition.Meal{
			{Slot: nutrition.SlotBreakfast, Options: []nutrition.MealOption{option("avena", 500)}},
			{Slot: nutrition.SlotLunch, Options: []nutrition.MealOption{option("milanesa", 800)}},
			{Slot: nutrition.SlotDinner, Options: []nutrition.MealOption{option("sopa", 700)}},
		}}
	}
	return &nutrition.NutritionPlan{
		Targets: nutrition.NutrientTargets{
			Calories: 2000,
			ProteinG: 2000 * 0.15 / 4,
			CarbG:    2000 * 0.55 / 4,
			FatG:     2000 * 0.30 / 9,
		},
		Days: []nutrition.PlanDay{day(), day(), day()},
	}
}

func newTestValidator() *Validator {
	return New(Config{MinOptions: 1, Slots: testSlots})
}

func Test_ValidatePlan_Accepts(t *testing.T) {
	t.Parallel()

	got := newTestValidator().ValidatePlan(validPlan(), nutrition.PatientProfile{})
	if len(got) != 0 {
		t.Errorf("expected no violations, got %v", got)
	}
}

func Test_ValidatePlan_Structural(t *testing.T) {
	t.Parallel()

	v := newTestValidator()

	short := validPlan()
	short.Days = short.Days[:2]
	got := v.ValidatePlan(short, nutrition.PatientProfile{})
	if len(got) != 1 || got[0].Kind != KindStructural || got[0].Repairable() {
		t.Errorf("two-day plan: got %v, want one fatal structural violation", got)
	}

	missing := validPlan()
	missing.Days[1].Meals = missing.Days[1].Meals[:2] // drop dinner
	got = v.ValidatePlan(missing, nutrition.PatientProfile{})
	found := false
	for _, viol := range got {
		if viol.Kind == KindStructural && viol.Day == 1 && viol.Slot == nutrition.SlotDinner {
			found = true
		}
	}
	if !found {
		t.Errorf("missing dinner not reported: %v", got)
	}

	empty := validPlan()
	empty.Days[0].Meals[0].Options = nil
	got = v.ValidatePlan(empty, nutrition.PatientProfile{})
	if len(got) == 0 || got[0].Kind != KindStructural {
		t.Errorf("zero-option meal: got %v, want structural violation", got)
	}
}

func Test_ValidatePlan_Restriction(t *testing.T) {
	t.Parallel()

	plan := validPlan()
	plan.Days[2].Meals[1].Options[0].Ingredients = append(plan.Days[2].Meals[1].Options[0].Ingredients,
		nutrition.Ingredient{Name: "pan rallado", Grams: 30, Tags: []string{"gluten"}})

	got := newTestValidator().ValidatePlan(plan, nutrition.PatientProfile{Restrictions: []string{"sin_gluten"}})
	if len(got) != 1 {
		t.Fatalf("got %v, want exactly one violation", got)
	}
	viol := got[0]
	if viol.Kind != KindRestriction || viol.Day != 2 || viol.Slot != nutrition.SlotLunch {
		t.Errorf("violation = %+v, want restriction at day 2 lunch", viol)
	}
	if !viol.Repairable() {
		t.Error("restriction violation must be repairable")
	}
}

func Test_ValidatePlan_DailyCalories(t *testing.T) {
	t.Parallel()

	plan := validPlan()
	// Push day 0 to 2200 kcal (+10%, outside ±5%).
	plan.Days[0].Meals[1].Options[0].Macros.Calories = 1000

	got := newTestValidator().ValidatePlan(plan, nutrition.PatientProfile{})
	found := false
	for _, viol := range got {
		if viol.Kind == KindNumeric && viol.Day == 0 && viol.Slot == "" {
			found = true
		}
	}
	if !found {
		t.Errorf("daily calorie overshoot not reported: %v", got)
	}
}

func Test_ValidatePlan_InterOptionEquivalence(t *testing.T) {
	t.Parallel()

	v := New(Config{MinOptions: 2, Slots: testSlots})
	plan := validPlan()
	for d := range plan.Days {
		for m := range plan.Days[d].Meals {
			base := plan.Days[d].Meals[m].Options[0]
			alt := base
			alt.Name = base.Name + " alternativa"
			plan.Days[d].Meals[m].Options = append(plan.Days[d].Meals[m].Options, alt)
		}
	}
	// Day 1 lunch second option drifts to +8% calories.
	plan.Days[1].Meals[1].Options[1].Macros.Calories = 864

	got := v.ValidatePlan(plan, nutrition.PatientProfile{})
	if len(got) != 1 {
		t.Fatalf("got %v, want exactly one violation", got)
	}
	if got[0].Kind != KindNumeric || got[0].Day != 1 || got[0].Slot != nutrition.SlotLunch {
		t.Errorf("violation = %+v, want inter-option breach at day 1 lunch", got[0])
	}
}

func Test_ValidatePlan_UnitPolicy(t *testing.T) {
	t.Parallel()

	v := newTestValidator()

	cases := []struct {
		name   string
		mutate func(*nutrition.NutritionPlan)
		detail string
	}{
		{
			"type-C as free portion",
			func(p *nutrition.NutritionPlan) {
				p.Days[0].Meals[1].Options[0].Ingredients = append(p.Days[0].Meals[1].Options[0].Ingredients,
					nutrition.Ingredient{Name: "papa", FreePortion: true})
			},
			"gramos exactos",
		},
		{
			"fruit as free portion",
			func(p *nutrition.NutritionPlan) {
				p.Days[0].Meals[0].Options[0].Ingredients = append(p.Days[0].Meals[0].Options[0].Ingredients,
					nutrition.Ingredient{Name: "manzana", FreePortion: true, Tags: []string{"fruta"}})
			},
			"gramos exactos",
		},
		{
			"missing grams",
			func(p *nutrition.NutritionPlan) {
				p.Days[0].Meals[2].Options[0].Ingredients[0].Grams = 0
			},
			"sin cantidad",
		},
		{
			"missing preparation",
			func(p *nutrition.NutritionPlan) {
				p.Days[0].Meals[0].Options[0].Preparation = ""
			},
			"preparación",
		},
	}

	for _, tc := range cases {
		plan := validPlan()
		tc.mutate(plan)
		got := v.ValidatePlan(plan, nutrition.PatientProfile{})
		found := false
		for _, viol := range got {
			if viol.Kind == KindUnit && strings.Contains(viol.Detail, tc.detail) {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: violation not reported, got %v", tc.name, got)
		}
	}
}

func Test_ValidatePlan_FreePortionVegetableAllowed(t *testing.T) {
	t.Parallel()

	plan := validPlan()
	plan.Days[0].Meals[1].Options[0].Ingredients = append(plan.Days[0].Meals[1].Options[0].Ingredients,
		nutrition.Ingredient{Name: "lechuga", FreePortion: true})

	got := newTestValidator().ValidatePlan(plan, nutrition.PatientProfile{})
	if len(got) != 0 {
		t.Errorf("free-portion non-type-C vegetable flagged: %v", got)
	}
}

func Test_ValidateReplacement_Window(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	window := nutrition.MacroWindow{
		Center:    nutrition.MacroProfile{Calories: 450},
		Tolerance: 0.05,
	}

	in := &nutrition.Meal{Slot: nutrition.SlotLunch, Options: []nutrition.MealOption{option("wok", 455)}}
	if got := v.ValidateReplacement(in, nutrition.PatientProfile{}, window); len(got) != 0 {
		t.Errorf("455 kcal inside ±5%% of 450 flagged: %v", got)
	}

	out := &nutrition.Meal{Slot: nutrition.SlotLunch, Options: []nutrition.MealOption{option("wok", 420)}}
	got := v.ValidateReplacement(out, nutrition.PatientProfile{}, window)
	if len(got) != 1 || got[0].Kind != KindNumeric {
		t.Errorf("420 kcal outside window: got %v, want one numeric violation", got)
	}
}

func Test_ValidateReplacement_RestrictionApplies(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	meal := &nutrition.Meal{Slot: nutrition.SlotLunch, Options: []nutrition.MealOption{option("fideos", 450)}}
	meal.Options[0].Ingredients = []nutrition.Ingredient{{Name: "fideos de trigo", Grams: 80, Tags: []string{"gluten"}}}

	got := v.ValidateReplacement(meal, nutrition.PatientProfile{Restrictions: []string{"sin_gluten"}},
		nutrition.MacroWindow{Center: nutrition.MacroProfile{Calories: 450}, Tolerance: 0.05})
	if len(got) != 1 || got[0].Kind != KindRestriction {
		t.Errorf("got %v, want one restriction violation", got)
	}
}
