// Package nutrition defines the core domain model for the plan engine:
// recipes, patient profiles, nutrient targets, the three-day plan tree,
// and the typed failure taxonomy shared by every pipeline stage.
// All values are plain structs passed by value or fresh per request —
// nothing in this package holds cross-request mutable state.
package nutrition

import (
	"fmt"
	"strings"
)

// Category is the fixed recipe category enumeration used for retrieval
// filtering. Every RecipeItem carries exactly one.
type Category string

const (
	// CategoryProteinMain covers meat, poultry and fish lunch/dinner mains.
	CategoryProteinMain Category = "protein_mains"
	// CategoryVegetarian covers meat-free lunch/dinner mains.
	CategoryVegetarian Category = "vegetarian"
	// CategorySide covers salads and accompaniments.
	CategorySide Category = "sides"
	// CategoryBreakfastSweet covers sweet breakfast/merienda options.
	CategoryBreakfastSweet Category = "breakfast_sweet"
	// CategoryBreakfastSavory covers savory breakfast/merienda options.
	CategoryBreakfastSavory Category = "breakfast_savory"
	// CategorySnack covers collations between main meals.
	CategorySnack Category = "snack"
)

// EconomicTier orders ingredient cost levels. A patient at tier N may be
// offered recipes at tier ≤ N.
type EconomicTier int

const (
	// TierLow is the budget ingredient tier.
	TierLow EconomicTier = 1
	// TierMedium is the standard ingredient tier.
	TierMedium EconomicTier = 2
	// TierHigh is the premium ingredient tier.
	TierHigh EconomicTier = 3
)

// ParseEconomicTier maps the wire names used by the corpus and the API to an
// EconomicTier. Unknown values resolve to TierMedium.
func ParseEconomicTier(s string) EconomicTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "bajo", "1":
		return TierLow
	case "high", "alto", "3":
		return TierHigh
	default:
		return TierMedium
	}
}

// WeightBasis states whether ingredient gram quantities refer to the raw or
// the cooked weight of the food.
type WeightBasis string

const (
	// WeightRaw means quantities are raw (uncooked) grams.
	WeightRaw WeightBasis = "raw"
	// WeightCooked means quantities are cooked grams.
	WeightCooked WeightBasis = "cooked"
)

// Slot identifies a meal position within a plan day.
type Slot string

const (
	// SlotBreakfast is the first main meal.
	SlotBreakfast Slot = "breakfast"
	// SlotLunch is the midday main meal.
	SlotLunch Slot = "lunch"
	// SlotSnack is the afternoon merienda.
	SlotSnack Slot = "snack"
	// SlotDinner is the evening main meal.
	SlotDinner Slot = "dinner"
	// SlotCollation1 is the optional mid-morning collation.
	SlotCollation1 Slot = "collation_1"
	// SlotCollation2 is the optional mid-afternoon collation.
	SlotCollation2 Slot = "collation_2"
)

// ParseSlot resolves a slot name to its canonical identifier. Plans carry
// the English identifiers, but nutritionists name meals in Spanish on sheets
// and on the command line; both spellings are accepted, case-insensitively.
func ParseSlot(s string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "breakfast", "desayuno":
		return SlotBreakfast, nil
	case "lunch", "almuerzo":
		return SlotLunch, nil
	case "snack", "merienda":
		return SlotSnack, nil
	case "dinner", "cena":
		return SlotDinner, nil
	case "collation_1", "colacion_1", "colación_1":
		return SlotCollation1, nil
	case "collation_2", "colacion_2", "colación_2":
		return SlotCollation2, nil
	}
	return "", fmt.Errorf("nutrition: unknown slot %q", s)
}

// MainSlot reports whether s is a main meal (as opposed to a collation).
// Main meals are packed and validated before collations.
func (s Slot) MainSlot() bool {
	switch s {
	case SlotBreakfast, SlotLunch, SlotSnack, SlotDinner:
		return true
	}
	return false
}

// slotShares is the fraction of the daily calorie target assigned to each
// slot. Shares are renormalized over the slots actually present in a plan.
var slotShares = map[Slot]float64{
	SlotBreakfast:  0.25,
	SlotLunch:      0.35,
	SlotSnack:      0.10,
	SlotDinner:     0.30,
	SlotCollation1: 0.05,
	SlotCollation2: 0.05,
}

// SlotShare returns the normalized fraction of the daily target that slot
// should carry when the day consists of the given slots.
func SlotShare(slot Slot, slots []Slot) float64 {
	var total float64
	for _, s := range slots {
		total += slotShares[s]
	}
	if total == 0 {
		return 0
	}
	return slotShares[slot] / total
}

// SlotsFor returns the ordered slot layout for a day given the number of main
// meals and the snack policy. mealsPerDay is clamped to [3, 4]; snacks adds
// the collation slots.
func SlotsFor(mealsPerDay int, snacks bool) []Slot {
	slots := []Slot{SlotBreakfast, SlotLunch}
	if mealsPerDay >= 4 {
		slots = append(slots, SlotSnack)
	}
	slots = append(slots, SlotDinner)
	if snacks {
		slots = append(slots, SlotCollation1, SlotCollation2)
	}
	return slots
}

// MacroProfile holds the energy and macronutrient totals of a recipe, a meal
// option, or a whole day. All fields are non-negative.
type MacroProfile struct {
	// Calories is the energy content in kcal.
	Calories float64 `json:"calories"`
	// ProteinG is protein in grams.
	ProteinG float64 `json:"protein_g"`
	// CarbG is carbohydrate in grams.
	CarbG float64 `json:"carb_g"`
	// FatG is fat in grams.
	FatG float64 `json:"fat_g"`
}

// Add returns the component-wise sum of m and other.
func (m MacroProfile) Add(other MacroProfile) MacroProfile {
	return MacroProfile{
		Calories: m.Calories + other.Calories,
		ProteinG: m.ProteinG + other.ProteinG,
		CarbG:    m.CarbG + other.CarbG,
		FatG:     m.FatG + other.FatG,
	}
}

// Ingredient is a single component of a meal option or recipe.
type Ingredient struct {
	// Name is the ingredient name as it appears in the plan.
	Name string `json:"name"`
	// Grams is the exact quantity. Zero is only legal when FreePortion is set.
	Grams float64 `json:"grams"`
	// FreePortion marks a visually-portioned vegetable with no gram quantity.
	// Never legal for type-C vegetables or fruit.
	FreePortion bool `json:"free_portion,omitempty"`
	// Basis is the weight basis the quantity refers to.
	Basis WeightBasis `json:"basis,omitempty"`
	// Tags lists the content tags of the ingredient (e.g. "gluten",
	// "lactosa", "frutos_secos", "fruta"). Used for restriction checks.
	Tags []string `json:"tags,omitempty"`
}

// typeCNames identifies starchy (type-C) vegetables that must always be
// quantified in exact grams.
var typeCNames = []string{"papa", "batata", "choclo", "potato", "sweet potato", "corn"}

// IsTypeC reports whether the ingredient name denotes a type-C vegetable.
func IsTypeC(name string) bool {
	lower := strings.ToLower(name)
	for _, n := range typeCNames {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// IsFruit reports whether the ingredient is tagged as fruit. Fruit follows
// the same exact-gram rule as type-C vegetables.
func (i Ingredient) IsFruit() bool {
	for _, t := range i.Tags {
		if t == "fruta" || t == "fruit" {
			return true
		}
	}
	return false
}

// ViolatesRestriction reports whether the ingredient conflicts with a patient
// restriction identifier. Restrictions use the corpus vocabulary
// "sin_<tag>" (e.g. "sin_gluten"); an ingredient violates it when its tags
// contain the bare "<tag>", or the restriction itself verbatim.
func (i Ingredient) ViolatesRestriction(restriction string) bool {
	bare := strings.TrimPrefix(restriction, "sin_")
	for _, t := range i.Tags {
		if t == restriction || t == bare {
			return true
		}
	}
	return false
}

// RecipeItem is one indexed corpus entry: a recipe or equivalence with its
// metadata and pre-computed embedding. Items are immutable after ingestion;
// the serving path only reads them.
type RecipeItem struct {
	// ID is the unique corpus identifier. Retrieval ties are broken by
	// ascending ID so results are reproducible.
	ID string `json:"id"`
	// Name is the display name of the recipe.
	Name string `json:"name"`
	// Category is the fixed category this recipe belongs to.
	Category Category `json:"category"`
	// Ingredients lists the recipe components with quantities.
	Ingredients []Ingredient `json:"ingredients"`
	// Preparation is the step-by-step preparation text.
	Preparation string `json:"preparation"`
	// Macros holds the per-portion nutritional totals.
	Macros MacroProfile `json:"macros"`
	// EconomicTier is the ingredient cost level of this recipe.
	EconomicTier EconomicTier `json:"economic_tier"`
	// DietaryTags lists the restriction identifiers this recipe is compatible
	// with (e.g. "sin_gluten", "sin_lactosa", "vegetariano").
	DietaryTags []string `json:"dietary_tags"`
	// Embedding is the fixed-dimension vector computed at ingestion time.
	// Empty on items reconstructed from search payloads.
	Embedding []float32 `json:"-"`
}

// CompatibleWith reports whether the recipe is tagged compatible with every
// restriction in the list.
func (r RecipeItem) CompatibleWith(restrictions []string) bool {
	for _, want := range restrictions {
		found := false
		for _, tag := range r.DietaryTags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// PatientProfile carries the clinical and preference attributes of one
// patient. It is supplied whole by the caller and never mutated by the core.
type PatientProfile struct {
	// Name is the patient's display name, used in prompt headers.
	Name string `json:"name"`
	// Age in years.
	Age int `json:"age"`
	// Sex as reported by the caller.
	Sex string `json:"sex"`
	// HeightCm is height in centimetres.
	HeightCm float64 `json:"height_cm"`
	// WeightKg is current weight in kilograms.
	WeightKg float64 `json:"weight_kg"`
	// ActivityLevel describes habitual physical activity.
	ActivityLevel string `json:"activity_level"`
	// Objective is the plan objective (e.g. "mantenimiento", "bajar_1kg").
	Objective string `json:"objective"`
	// Pathologies lists conditions the plan silently adapts to.
	Pathologies []string `json:"pathologies,omitempty"`
	// Restrictions lists restriction identifiers ("sin_gluten", ...). No
	// accepted plan may contain an ingredient conflicting with any of them.
	Restrictions []string `json:"restrictions,omitempty"`
	// Preferences lists foods to prioritize during retrieval re-ranking.
	Preferences []string `json:"preferences,omitempty"`
	// Dislikes lists foods to penalize during retrieval re-ranking.
	Dislikes []string `json:"dislikes,omitempty"`
	// EconomicLevel caps the economic tier of retrieved recipes.
	EconomicLevel EconomicTier `json:"economic_level"`
	// Basis is the patient's preferred weight basis for quantities.
	Basis WeightBasis `json:"weight_basis"`
	// MealsPerDay is the number of main meals (3 or 4).
	MealsPerDay int `json:"meals_per_day"`
	// Snacks enables the two collation slots.
	Snacks bool `json:"snacks"`
}

// Slots returns the slot layout implied by the profile.
func (p PatientProfile) Slots() []Slot {
	return SlotsFor(p.MealsPerDay, p.Snacks)
}

// Directives are the control-motor adjustment instructions parsed from the
// nutritionist's AGREGAR / SACAR / DEJAR sheet.
type Directives struct {
	// Add lists foods to introduce into the plan.
	Add []string `json:"add,omitempty"`
	// Remove lists foods that must disappear from the plan.
	Remove []string `json:"remove,omitempty"`
	// Keep lists foods or meals explicitly kept as-is.
	Keep []string `json:"keep,omitempty"`
}

// Empty reports whether the directives carry no instructions.
func (d Directives) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0 && len(d.Keep) == 0
}
