package motor

import (
	"context"
	"fmt"

	"github.com/nutria-ai/nutria-go/internal/generator"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
	"github.com/nutria-ai/nutria-go/internal/packer"
	"github.com/nutria-ai/nutria-go/internal/rag"
)

// ReplaceRequest is the input for a single-meal swap.
type ReplaceRequest struct {
	// PatientID identifies the patient.
	PatientID string

	// Patient is the profile the replacement must respect.
	Patient nutrition.PatientProfile

	// PriorPlan is the plan holding the meal. Nil loads the latest archived
	// plan.
	PriorPlan *nutrition.NutritionPlan

	// Slot names the meal to replace. Days are equal, so the swap applies to
	// every day.
	Slot nutrition.Slot

	// Reason is optional free text ("no come pescado") folded into the
	// retrieval intent.
	Reason string
}

// ReplaceResult pairs the accepted replacement meal with the updated plan.
type ReplaceResult struct {
	// Meal is the validated replacement.
	Meal *nutrition.Meal

	// Plan is the prior plan with the slot swapped on every day, frozen and
	// archived.
	Plan *nutrition.NutritionPlan
}

// Replace swaps one meal for a calorically equivalent alternative. The
// acceptance window is ±ReplacementTolerance around the original meal's
// canonical option.
func (p *Pipeline) Replace(ctx context.Context, req ReplaceRequest) (*ReplaceResult, error) {
	prior := req.PriorPlan
	if prior == nil {
		if p.archive == nil {
			return nil, fmt.Errorf("motor: replace requires a prior plan and no archive is configured")
		}
		loaded, err := p.archive.Latest(ctx, req.PatientID)
		if err != nil {
			return nil, fmt.Errorf("motor: load prior plan: %w", err)
		}
		if loaded == nil {
			return nil, fmt.Errorf("motor: patient %q has no prior plan: %w", req.PatientID, nutrition.ErrInsufficientCandidates)
		}
		prior = loaded
	}
	if len(prior.Days) == 0 {
		return nil, fmt.Errorf("motor: prior plan has no days: %w", nutrition.ErrPlanStructureInvalid)
	}

	original := prior.Days[0].Meal(req.Slot)
	if original == nil || len(original.Options) == 0 {
		return nil, fmt.Errorf("motor: prior plan has no meal at slot %q: %w", req.Slot, nutrition.ErrPlanStructureInvalid)
	}

	intent := slotIntent(req.Slot, req.Patient)
	if req.Reason != "" {
		intent += ", motivo: " + req.Reason
	}
	res, err := p.retriever.Retrieve(ctx, rag.RetrievalQuery{
		IntentText: intent,
		Filter: rag.Filter{
			Category:        slotCategory(req.Slot, req.Patient),
			MaxEconomicTier: req.Patient.EconomicLevel,
			RequiredTags:    req.Patient.Restrictions,
		},
		Preferences: req.Patient.Preferences,
		Dislikes:    req.Patient.Dislikes,
		TopK:        p.cfg.CandidatesPerSlot,
	})
	if err != nil {
		return nil, err
	}

	window := nutrition.MacroWindow{
		Center:    original.Options[0].Macros,
		Tolerance: p.cfg.ReplacementTolerance,
	}

	meal, err := p.engine.RunReplacement(ctx, generator.Request{
		Motor:        generator.MotorReplacement,
		PatientID:    req.PatientID,
		Patient:      req.Patient,
		Context:      p.packer.Pack([]packer.SlotCandidates{{Slot: req.Slot, Items: res.Items}}),
		OriginalMeal: original,
		Slot:         req.Slot,
		Window:       window,
	})
	if err != nil {
		return nil, err
	}

	updated := prior.Clone()
	// The prior plan may have been supplied by the caller and carry another
	// patient's id; the request decides where the result is archived.
	updated.PatientID = req.PatientID
	updated.Motor = string(generator.MotorReplacement)
	for d := range updated.Days {
		if err := updated.ReplaceMeal(d, req.Slot, *meal); err != nil {
			return nil, fmt.Errorf("motor: apply replacement: %w", err)
		}
	}
	updated.Freeze()

	if err := p.persist(ctx, updated); err != nil {
		return nil, err
	}
	return &ReplaceResult{Meal: meal, Plan: updated}, nil
}
