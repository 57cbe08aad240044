package motor

import (
	"context"
	"fmt"

	"github.com/nutria-ai/nutria-go/internal/generator"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// ControlRequest is the input for a control-visit adjustment.
type ControlRequest struct {
	// PatientID identifies the patient.
	PatientID string

	// Patient is the updated profile (weight and objective may have moved
	// since the prior plan).
	Patient nutrition.PatientProfile

	// Targets are externally calculated daily goals. Nil derives them from
	// the profile.
	Targets *nutrition.NutrientTargets

	// PriorPlan is the plan being adjusted. Nil loads the patient's latest
	// archived plan.
	PriorPlan *nutrition.NutritionPlan

	// Directives are the parsed AGREGAR/SACAR/DEJAR instructions. Use
	// ParseDirectives for raw sheet text.
	Directives nutrition.Directives
}

// Control adjusts a prior plan under the nutritionist's directives. Fresh
// candidates are retrieved only for the slots the directives touch; the
// whole adjusted plan is re-validated before acceptance.
func (p *Pipeline) Control(ctx context.Context, req ControlRequest) (*nutrition.NutritionPlan, error) {
	prior := req.PriorPlan
	if prior == nil {
		if p.archive == nil {
			return nil, fmt.Errorf("motor: control requires a prior plan and no archive is configured")
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

	targets := resolveTargets(req.Targets, req.Patient)

	slots := affectedSlots(prior, req.Directives)
	if len(slots) == 0 {
		// Nothing named a slot (e.g. only DEJAR directives); re-retrieve the
		// whole layout so the regeneration still has candidates to draw on.
		slots = req.Patient.Slots()
	}

	candidates, err := p.retrieveSlots(ctx, slots, req.Patient)
	if err != nil {
		return nil, err
	}

	plan, err := p.engine.Run(ctx, generator.Request{
		Motor:          generator.MotorControl,
		PatientID:      req.PatientID,
		Patient:        req.Patient,
		Targets:        targets,
		Context:        p.packer.Pack(candidates),
		PriorPlan:      prior,
		Directives:     req.Directives,
		OptionsPerMeal: p.cfg.OptionsPerMeal,
	})
	if err != nil {
		return nil, err
	}

	if err := p.persist(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
