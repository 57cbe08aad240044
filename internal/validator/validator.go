// Package validator checks generated plans against the structural,
// restriction, numeric, and unit-policy rules, and drives the bounded repair
// loop that turns rejected drafts into accepted plans.
package validator

import (
	"fmt"
	"math"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// Kind classifies a violation. Structural violations are fatal; everything
// else is repairable by slot-scoped regeneration.
type Kind string

const (
	// KindStructural covers missing days, missing slots, or meals with no
	// options. Fatal.
	KindStructural Kind = "structural"
	// KindOptions covers meals that offer fewer than the configured
	// equivalent options.
	KindOptions Kind = "options"
	// KindRestriction covers ingredients conflicting with a patient
	// restriction.
	KindRestriction Kind = "restriction"
	// KindNumeric covers calorie or macro totals outside tolerance.
	KindNumeric Kind = "numeric"
	// KindUnit covers unit-policy breaches: type-C vegetables or fruit
	// without exact grams, quantities missing entirely, or absent
	// preparation text.
	KindUnit Kind = "unit"
)

// Violation is one rule breach found during validation.
type Violation struct {
	// Kind classifies the breach.
	Kind Kind

	// Day is the zero-based day index, or -1 when the breach is plan-wide.
	Day int

	// Slot is the affected meal position. Empty when the breach covers the
	// whole day (daily totals) or the whole plan.
	Slot nutrition.Slot

	// Detail is the operator-readable description, also fed back to the
	// generator as a corrective instruction.
	Detail string
}

// Repairable reports whether regeneration can fix this violation.
func (v Violation) Repairable() bool { return v.Kind != KindStructural }

// Config holds the validation tolerances and expectations.
type Config struct {
	// CalorieTolerance is the fractional band around the daily calorie
	// target (default 0.05).
	CalorieTolerance float64

	// MacroTolerance is the fractional band around each daily macro target
	// (default 0.10).
	MacroTolerance float64

	// InterOptionTolerance is the fractional calorie band options must stay
	// within relative to the first option of their meal (default 0.05).
	InterOptionTolerance float64

	// MinOptions is the number of equivalent options each meal must offer
	// (default 3).
	MinOptions int

	// Slots is the slot layout every day must carry. Empty derives the
	// layout from the patient profile at validation time.
	Slots []nutrition.Slot
}

// Validator applies the consistency rules. Stateless; safe for concurrent
// use.
type Validator struct {
	cfg Config
}

// New constructs a Validator, applying defaults to zero config fields.
func New(cfg Config) *Validator {
	if cfg.CalorieTolerance <= 0 {
		cfg.CalorieTolerance = 0.05
	}
	if cfg.MacroTolerance <= 0 {
		cfg.MacroTolerance = 0.10
	}
	if cfg.InterOptionTolerance <= 0 {
		cfg.InterOptionTolerance = 0.05
	}
	if cfg.MinOptions <= 0 {
		cfg.MinOptions = nutrition.DefaultOptionsPerMeal
	}
	return &Validator{cfg: cfg}
}

// ValidatePlan checks the whole plan and returns every violation found, in
// deterministic order (structural first, then per day and slot).
func (v *Validator) ValidatePlan(plan *nutrition.NutritionPlan, patient nutrition.PatientProfile) []Violation {
	var out []Violation

	if len(plan.Days) != nutrition.PlanDays {
		out = append(out, Violation{
			Kind: KindStructural, Day: -1,
			Detail: fmt.Sprintf("el plan tiene %d días, deben ser %d", len(plan.Days), nutrition.PlanDays),
		})
		return out
	}

	slots := v.cfg.Slots
	if len(slots) == 0 {
		slots = patient.Slots()
	}

	for d := range plan.Days {
		day := &plan.Days[d]
		for _, slot := range slots {
			meal := day.Meal(slot)
			if meal == nil {
				out = append(out, Violation{
					Kind: KindStructural, Day: d, Slot: slot,
					Detail: fmt.Sprintf("día %d: falta la comida %q", d+1, slot),
				})
				continue
			}
			out = append(out, v.checkMeal(d, meal, patient, v.cfg.MinOptions)...)
		}
		out = append(out, v.checkDayTotals(d, day, plan.Targets)...)
	}

	return out
}

// ValidateReplacement checks a single replacement meal against the patient's
// restrictions, the unit policy, and the macro window of the original meal.
func (v *Validator) ValidateReplacement(meal *nutrition.Meal, patient nutrition.PatientProfile, window nutrition.MacroWindow) []Violation {
	if meal == nil || len(meal.Options) == 0 {
		return []Violation{{
			Kind: KindStructural, Day: -1, Slot: "",
			Detail: "el reemplazo no contiene ninguna opción",
		}}
	}

	out := v.checkMeal(0, meal, patient, 1)
	for i, opt := range meal.Options {
		if !window.Contains(opt.Macros) {
			out = append(out, Violation{
				Kind: KindNumeric, Day: 0, Slot: meal.Slot,
				Detail: fmt.Sprintf("opción %d (%s): %.0f kcal fuera de la ventana ±%.0f%% de %.0f kcal",
					i+1, opt.Name, opt.Macros.Calories, window.Tolerance*100, window.Center.Calories),
			})
		}
	}
	return out
}

// checkMeal applies option-count, restriction, inter-option, and unit checks
// to one meal.
func (v *Validator) checkMeal(day int, meal *nutrition.Meal, patient nutrition.PatientProfile, minOptions int) []Violation {
	var out []Violation

	if len(meal.Options) == 0 {
		return []Violation{{
			Kind: KindStructural, Day: day, Slot: meal.Slot,
			Detail: fmt.Sprintf("día %d, %s: la comida no tiene opciones", day+1, meal.Slot),
		}}
	}
	if len(meal.Options) < minOptions {
		out = append(out, Violation{
			Kind: KindOptions, Day: day, Slot: meal.Slot,
			Detail: fmt.Sprintf("día %d, %s: %d opciones, se requieren %d equivalentes", day+1, meal.Slot, len(meal.Options), minOptions),
		})
	}

	ref := meal.Options[0].Macros.Calories
	for i, opt := range meal.Options {
		if opt.Preparation == "" {
			out = append(out, Violation{
				Kind: KindUnit, Day: day, Slot: meal.Slot,
				Detail: fmt.Sprintf("día %d, %s, opción %d (%s): falta la preparación", day+1, meal.Slot, i+1, opt.Name),
			})
		}

		for _, ing := range opt.Ingredients {
			exactRequired := nutrition.IsTypeC(ing.Name) || ing.IsFruit()
			switch {
			case ing.FreePortion && exactRequired:
				out = append(out, Violation{
					Kind: KindUnit, Day: day, Slot: meal.Slot,
					Detail: fmt.Sprintf("día %d, %s: %q debe ir en gramos exactos, no porción libre", day+1, meal.Slot, ing.Name),
				})
			case !ing.FreePortion && ing.Grams <= 0:
				out = append(out, Violation{
					Kind: KindUnit, Day: day, Slot: meal.Slot,
					Detail: fmt.Sprintf("día %d, %s: %q sin cantidad en gramos", day+1, meal.Slot, ing.Name),
				})
			}

			for _, restriction := range patient.Restrictions {
				if ing.ViolatesRestriction(restriction) {
					out = append(out, Violation{
						Kind: KindRestriction, Day: day, Slot: meal.Slot,
						Detail: fmt.Sprintf("día %d, %s: %q viola la restricción %s", day+1, meal.Slot, ing.Name, restriction),
					})
				}
			}
		}

		if i > 0 && ref > 0 && relDiff(opt.Macros.Calories, ref) > v.cfg.InterOptionTolerance {
			out = append(out, Violation{
				Kind: KindNumeric, Day: day, Slot: meal.Slot,
				Detail: fmt.Sprintf("día %d, %s: la opción %d (%.0f kcal) no es equivalente a la opción 1 (%.0f kcal)",
					day+1, meal.Slot, i+1, opt.Macros.Calories, ref),
			})
		}
	}

	return out
}

// checkDayTotals validates the canonical first-option path of a day against
// the daily targets.
func (v *Validator) checkDayTotals(day int, d *nutrition.PlanDay, targets nutrition.NutrientTargets) []Violation {
	var out []Violation
	totals := d.Totals()

	if targets.Calories > 0 && relDiff(totals.Calories, targets.Calories) > v.cfg.CalorieTolerance {
		out = append(out, Violation{
			Kind: KindNumeric, Day: day,
			Detail: fmt.Sprintf("día %d: %.0f kcal, objetivo %.0f kcal ±%.0f%%",
				day+1, totals.Calories, targets.Calories, v.cfg.CalorieTolerance*100),
		})
	}

	macros := []struct {
		name   string
		got    float64
		target float64
	}{
		{"proteínas", totals.ProteinG, targets.ProteinG},
		{"carbohidratos", totals.CarbG, targets.CarbG},
		{"grasas", totals.FatG, targets.FatG},
	}
	for _, m := range macros {
		if m.target > 0 && relDiff(m.got, m.target) > v.cfg.MacroTolerance {
			out = append(out, Violation{
				Kind: KindNumeric, Day: day,
				Detail: fmt.Sprintf("día %d: %s %.0f g, objetivo %.0f g ±%.0f%%",
					day+1, m.name, m.got, m.target, v.cfg.MacroTolerance*100),
			})
		}
	}
	return out
}

func relDiff(got, want float64) float64 {
	if want == 0 {
		return 0
	}
	return math.Abs(got-want) / want
}
