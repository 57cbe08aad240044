package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nutria-ai/nutria-go/internal/generator"
	"github.com/nutria-ai/nutria-go/internal/logging"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// DefaultMaxRepairs is the number of regeneration cycles allowed after the
// initial attempt.
const DefaultMaxRepairs = 2

// Engine runs the draft → validate → repair loop until a plan is accepted,
// rejected as structurally invalid, or the repair budget runs out.
// Stateless across requests; safe for concurrent use.
type Engine struct {
	gen        generator.Generator
	val        *Validator
	maxRepairs int
}

// NewEngine constructs an Engine. maxRepairs ≤ 0 uses DefaultMaxRepairs.
func NewEngine(gen generator.Generator, val *Validator, maxRepairs int) (*Engine, error) {
	if gen == nil {
		return nil, fmt.Errorf("validator: generator must not be nil")
	}
	if val == nil {
		return nil, fmt.Errorf("validator: validator must not be nil")
	}
	if maxRepairs <= 0 {
		maxRepairs = DefaultMaxRepairs
	}
	return &Engine{gen: gen, val: val, maxRepairs: maxRepairs}, nil
}

// Run produces an accepted full plan for the new-patient and control motors.
// The accepted plan is frozen before it is returned. Generation failures
// consume a repair slot; structural violations reject immediately; an
// exhausted budget returns ErrValidationExhausted with the outstanding
// violations in the message.
func (e *Engine) Run(ctx context.Context, req generator.Request) (*nutrition.NutritionPlan, error) {
	log := logging.FromContext(ctx)

	// prior holds the last rejected draft; priorViolations what was wrong
	// with it. When every outstanding violation is scoped to a (day, slot)
	// pair, repairs merge only those meals from the fresh draft instead of
	// discarding the whole prior draft.
	var prior *nutrition.NutritionPlan
	var priorViolations []Violation
	var lastErr error

	for attempt := 0; attempt <= e.maxRepairs; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("validator: %w", err)
		}

		draft, err := e.gen.GeneratePlan(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			log.Warn("plan generation attempt failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}

		plan := draft
		if prior != nil && allSlotScoped(priorViolations) {
			plan = mergeSlotRepairs(prior, draft, priorViolations)
		}

		violations := e.val.ValidatePlan(plan, req.Patient)
		if len(violations) == 0 {
			plan.Freeze()
			log.Info("plan accepted",
				slog.String("motor", string(req.Motor)),
				slog.Int("attempts", attempt+1),
			)
			return plan, nil
		}

		for _, v := range violations {
			if !v.Repairable() {
				return nil, fmt.Errorf("validator: %s: %w", v.Detail, nutrition.ErrPlanStructureInvalid)
			}
		}

		log.Info("plan draft rejected",
			slog.Int("attempt", attempt+1),
			slog.Int("violations", len(violations)),
			slog.String("first", violations[0].Detail),
		)
		prior = plan
		priorViolations = violations
		req.Corrective = correctiveInstructions(violations)
		lastErr = nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("validator: repair budget of %d exhausted (%d violations outstanding, first: %s): %w",
		e.maxRepairs, len(priorViolations), priorViolations[0].Detail, nutrition.ErrValidationExhausted)
}

// RunReplacement produces an accepted single-meal replacement. Same loop
// shape as Run, validated against the macro window instead of daily targets.
func (e *Engine) RunReplacement(ctx context.Context, req generator.Request) (*nutrition.Meal, error) {
	log := logging.FromContext(ctx)

	var priorViolations []Violation
	var lastErr error

	for attempt := 0; attempt <= e.maxRepairs; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("validator: %w", err)
		}

		meal, err := e.gen.GenerateReplacement(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			log.Warn("replacement generation attempt failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}

		violations := e.val.ValidateReplacement(meal, req.Patient, req.Window)
		if len(violations) == 0 {
			log.Info("replacement accepted",
				slog.String("slot", string(req.Slot)),
				slog.Int("attempts", attempt+1),
			)
			return meal, nil
		}

		for _, v := range violations {
			if !v.Repairable() {
				return nil, fmt.Errorf("validator: %s: %w", v.Detail, nutrition.ErrPlanStructureInvalid)
			}
		}

		log.Info("replacement draft rejected",
			slog.Int("attempt", attempt+1),
			slog.Int("violations", len(violations)),
		)
		priorViolations = violations
		req.Corrective = correctiveInstructions(violations)
		lastErr = nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("validator: repair budget of %d exhausted (%d violations outstanding, first: %s): %w",
		e.maxRepairs, len(priorViolations), priorViolations[0].Detail, nutrition.ErrValidationExhausted)
}

// allSlotScoped reports whether every violation names a concrete (day, slot)
// pair. Day-level numeric violations force a whole-plan regeneration.
func allSlotScoped(violations []Violation) bool {
	for _, v := range violations {
		if v.Day < 0 || v.Slot == "" {
			return false
		}
	}
	return true
}

// mergeSlotRepairs grafts the regenerated meals for the violating (day, slot)
// pairs onto a clone of the prior draft, leaving accepted meals untouched.
func mergeSlotRepairs(prior, draft *nutrition.NutritionPlan, violations []Violation) *nutrition.NutritionPlan {
	merged := prior.Clone()
	seen := make(map[string]bool)
	for _, v := range violations {
		key := fmt.Sprintf("%d/%s", v.Day, v.Slot)
		if seen[key] {
			continue
		}
		seen[key] = true

		if v.Day >= len(draft.Days) {
			continue
		}
		repaired := draft.Days[v.Day].Meal(v.Slot)
		if repaired == nil {
			continue
		}
		// Clone() never returns a frozen plan, so ReplaceMeal cannot fail on
		// the frozen check; position errors just leave the prior meal.
		_ = merged.ReplaceMeal(v.Day, v.Slot, *repaired)
	}
	return merged
}

// correctiveInstructions turns violations into the repair directives appended
// to the regeneration prompt.
func correctiveInstructions(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Detail)
	}
	return out
}
