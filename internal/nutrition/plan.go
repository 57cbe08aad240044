package nutrition

import "fmt"

// PlanDays is the fixed number of days in a plan. All days are
// nutritionally equal by construction.
const PlanDays = 3

// DefaultOptionsPerMeal is the number of interchangeable options each meal
// offers unless configured otherwise.
const DefaultOptionsPerMeal = 3

// MealOption is one interchangeable choice for a meal: a concrete dish with
// quantities, preparation and nutritional totals.
type MealOption struct {
	// Name is the dish name.
	Name string `json:"name"`
	// Ingredients lists the components with exact quantities or free-portion
	// marks.
	Ingredients []Ingredient `json:"ingredients"`
	// Preparation is the mandatory preparation text.
	Preparation string `json:"preparation"`
	// Macros holds the option's nutritional totals.
	Macros MacroProfile `json:"macros"`
}

// Meal is one slot of a plan day with its equivalent options. Option zero is
// the canonical option used for day-level numeric validation.
type Meal struct {
	// Slot identifies the meal position.
	Slot Slot `json:"slot"`
	// Options are the interchangeable choices, calorically equivalent within
	// the configured tolerance.
	Options []MealOption `json:"options"`
}

// PlanDay is one day of the plan: the configured slots in order.
type PlanDay struct {
	// Meals holds one Meal per configured slot.
	Meals []Meal `json:"meals"`
}

// Meal returns the day's meal for the given slot, or nil if absent.
func (d *PlanDay) Meal(slot Slot) *Meal {
	for i := range d.Meals {
		if d.Meals[i].Slot == slot {
			return &d.Meals[i]
		}
	}
	return nil
}

// Totals sums the canonical (first) option of every meal in the day.
func (d *PlanDay) Totals() MacroProfile {
	var total MacroProfile
	for _, m := range d.Meals {
		if len(m.Options) > 0 {
			total = total.Add(m.Options[0].Macros)
		}
	}
	return total
}

// NutrientTargets are the daily goals a plan must satisfy.
type NutrientTargets struct {
	// Calories is the daily energy target in kcal.
	Calories float64 `json:"calories"`
	// ProteinG is the daily protein target in grams.
	ProteinG float64 `json:"protein_g"`
	// CarbG is the daily carbohydrate target in grams.
	CarbG float64 `json:"carb_g"`
	// FatG is the daily fat target in grams.
	FatG float64 `json:"fat_g"`
}

// MacroWindow is an acceptance band around a calorie/macro midpoint, used by
// the replacement motor.
type MacroWindow struct {
	// Center is the midpoint the replacement must stay close to.
	Center MacroProfile `json:"center"`
	// Tolerance is the fractional half-width of the window (0.05 = ±5%).
	Tolerance float64 `json:"tolerance"`
}

// Contains reports whether the profile's calories fall inside the window.
// Equivalence between options is defined on calories alone; macro balance is
// enforced per day against the patient targets, not per swap.
func (w MacroWindow) Contains(m MacroProfile) bool {
	lo := w.Center.Calories * (1 - w.Tolerance)
	hi := w.Center.Calories * (1 + w.Tolerance)
	return m.Calories >= lo && m.Calories <= hi
}

// NutritionPlan is the complete validated artifact handed to the caller.
// A plan starts mutable (draft) and is frozen on acceptance; frozen plans
// reject further mutation.
type NutritionPlan struct {
	// PatientID identifies the patient this plan was built for.
	PatientID string `json:"patient_id"`
	// Motor records which motor produced the plan.
	Motor string `json:"motor"`
	// Targets are the daily goals the plan was validated against.
	Targets NutrientTargets `json:"targets"`
	// Days holds the three equal days.
	Days []PlanDay `json:"days"`
	// Summary is free-text guidance produced alongside the plan.
	Summary string `json:"summary,omitempty"`

	frozen bool
}

// Frozen reports whether the plan has been accepted and sealed.
func (p *NutritionPlan) Frozen() bool { return p.frozen }

// Freeze seals the plan after validation accepts it. Frozen plans cannot be
// modified through ReplaceMeal.
func (p *NutritionPlan) Freeze() { p.frozen = true }

// ReplaceMeal swaps the meal at (day, slot) with the given replacement.
// It fails on a frozen plan or when the position does not exist.
func (p *NutritionPlan) ReplaceMeal(day int, slot Slot, meal Meal) error {
	if p.frozen {
		return fmt.Errorf("plan: replace meal: plan is frozen")
	}
	if day < 0 || day >= len(p.Days) {
		return fmt.Errorf("plan: replace meal: day %d out of range [0, %d)", day, len(p.Days))
	}
	for i := range p.Days[day].Meals {
		if p.Days[day].Meals[i].Slot == slot {
			meal.Slot = slot
			p.Days[day].Meals[i] = meal
			return nil
		}
	}
	return fmt.Errorf("plan: replace meal: slot %q not present on day %d", slot, day)
}

// Clone returns a deep, unfrozen copy of the plan. Repair regeneration works
// on clones so a rejected attempt never corrupts the prior draft.
func (p *NutritionPlan) Clone() *NutritionPlan {
	out := &NutritionPlan{
		PatientID: p.PatientID,
		Motor:     p.Motor,
		Targets:   p.Targets,
		Summary:   p.Summary,
		Days:      make([]PlanDay, len(p.Days)),
	}
	for i, d := range p.Days {
		meals := make([]Meal, len(d.Meals))
		for j, m := range d.Meals {
			opts := make([]MealOption, len(m.Options))
			for k, o := range m.Options {
				ings := make([]Ingredient, len(o.Ingredients))
				copy(ings, o.Ingredients)
				o.Ingredients = ings
				opts[k] = o
			}
			m.Options = opts
			meals[j] = m
		}
		out.Days[i].Meals = meals
	}
	return out
}
