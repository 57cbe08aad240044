package nutrition

import "strings"

// Energy densities in kcal per gram, used for the macro split.
const (
	kcalPerGramProtein = 4
	kcalPerGramCarb    = 4
	kcalPerGramFat     = 9
)

// Macro split fractions of total daily calories.
const (
	proteinShare = 0.15
	carbShare    = 0.55
	fatShare     = 0.30
)

// activityFactors maps activity level names to the TDEE multiplier applied to
// the Mifflin-St Jeor basal rate.
var activityFactors = map[string]float64{
	"sedentario":  1.2,
	"sedentary":   1.2,
	"ligero":      1.375,
	"light":       1.375,
	"moderado":    1.55,
	"moderate":    1.55,
	"activo":      1.725,
	"active":      1.725,
	"muy_activo":  1.9,
	"very_active": 1.9,
}

// objectiveAdjustments maps plan objectives to the daily kcal delta applied
// on top of the TDEE.
var objectiveAdjustments = map[string]float64{
	"mantenimiento": 0,
	"bajar_0.5kg":   -250,
	"bajar_05kg":    -250,
	"bajar_1kg":     -500,
	"bajar_2kg":     -750,
	"subir_0.5kg":   250,
	"subir_05kg":    250,
	"subir_1kg":     500,
}

// TargetsForProfile derives daily nutrient targets from a patient profile:
// Mifflin-St Jeor basal rate, activity multiplier, objective adjustment, and
// a 15/55/30 protein/carbohydrate/fat calorie split. Callers with an external
// calculator can skip this and supply NutrientTargets directly.
func TargetsForProfile(p PatientProfile) NutrientTargets {
	bmr := 10*p.WeightKg + 6.25*p.HeightCm - 5*float64(p.Age)
	if strings.EqualFold(p.Sex, "male") || strings.EqualFold(p.Sex, "masculino") || strings.EqualFold(p.Sex, "m") {
		bmr += 5
	} else {
		bmr -= 161
	}

	factor, ok := activityFactors[strings.ToLower(p.ActivityLevel)]
	if !ok {
		factor = 1.2
	}
	calories := bmr*factor + objectiveAdjustments[strings.ToLower(p.Objective)]
	if calories < 0 {
		calories = 0
	}

	return NutrientTargets{
		Calories: calories,
		ProteinG: calories * proteinShare / kcalPerGramProtein,
		CarbG:    calories * carbShare / kcalPerGramCarb,
		FatG:     calories * fatShare / kcalPerGramFat,
	}
}

// SlotTargets scales daily targets down to one slot's share given the day's
// slot layout.
func SlotTargets(daily NutrientTargets, slot Slot, slots []Slot) NutrientTargets {
	share := SlotShare(slot, slots)
	return NutrientTargets{
		Calories: daily.Calories * share,
		ProteinG: daily.ProteinG * share,
		CarbG:    daily.CarbG * share,
		FatG:     daily.FatG * share,
	}
}
