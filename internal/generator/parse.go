package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// Wire envelopes. These mirror the JSON contract stated in the system
// prompts; parsing into dedicated types keeps model output quirks out of the
// domain structs.

type ingredientEnvelope struct {
	Name        string   `json:"name"`
	Grams       float64  `json:"grams"`
	FreePortion bool     `json:"free_portion"`
	Tags        []string `json:"tags"`
}

type optionEnvelope struct {
	Name        string                 `json:"name"`
	Ingredients []ingredientEnvelope   `json:"ingredients"`
	Preparation string                 `json:"preparation"`
	Macros      nutrition.MacroProfile `json:"macros"`
}

type mealEnvelope struct {
	Slot    string           `json:"slot"`
	Options []optionEnvelope `json:"options"`
}

type dayEnvelope struct {
	Meals []mealEnvelope `json:"meals"`
}

type planEnvelope struct {
	Days    []dayEnvelope `json:"days"`
	Summary string        `json:"summary"`
}

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object. Models occasionally wrap the envelope despite the
// JSON-only instruction.
func extractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("generator: no JSON object in model output: %w", nutrition.ErrPlanStructureInvalid)
	}
	return content[start : end+1], nil
}

// parsePlan decodes a full-plan envelope into the domain plan tree.
// Decoding failures and empty envelopes map to ErrPlanStructureInvalid;
// deeper structural checks (day count, slot layout, option minimums) belong
// to the validator.
func parsePlan(content string) (*nutrition.NutritionPlan, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var env planEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("generator: decode plan envelope: %v: %w", err, nutrition.ErrPlanStructureInvalid)
	}
	if len(env.Days) == 0 {
		return nil, fmt.Errorf("generator: plan envelope has no days: %w", nutrition.ErrPlanStructureInvalid)
	}

	plan := &nutrition.NutritionPlan{
		Summary: env.Summary,
		Days:    make([]nutrition.PlanDay, len(env.Days)),
	}
	for i, day := range env.Days {
		meals := make([]nutrition.Meal, 0, len(day.Meals))
		for _, m := range day.Meals {
			meals = append(meals, convertMeal(m))
		}
		plan.Days[i].Meals = meals
	}
	return plan, nil
}

// parseMeal decodes a single-meal envelope (replacement motor).
func parseMeal(content string) (*nutrition.Meal, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var env mealEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("generator: decode meal envelope: %v: %w", err, nutrition.ErrPlanStructureInvalid)
	}
	if len(env.Options) == 0 {
		return nil, fmt.Errorf("generator: meal envelope has no options: %w", nutrition.ErrPlanStructureInvalid)
	}

	meal := convertMeal(env)
	return &meal, nil
}

func convertMeal(env mealEnvelope) nutrition.Meal {
	meal := nutrition.Meal{
		Slot:    nutrition.Slot(env.Slot),
		Options: make([]nutrition.MealOption, 0, len(env.Options)),
	}
	for _, opt := range env.Options {
		ings := make([]nutrition.Ingredient, 0, len(opt.Ingredients))
		for _, ing := range opt.Ingredients {
			ings = append(ings, nutrition.Ingredient{
				Name:        ing.Name,
				Grams:       ing.Grams,
				FreePortion: ing.FreePortion,
				Tags:        ing.Tags,
			})
		}
		meal.Options = append(meal.Options, nutrition.MealOption{
			Name:        opt.Name,
			Ingredients: ings,
			Preparation: opt.Preparation,
			Macros:      opt.Macros,
		})
	}
	return meal
}
