package motor

import (
	"context"

	"github.com/nutria-ai/nutria-go/internal/generator"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// NewPatientRequest is the input for a first full plan.
type NewPatientRequest struct {
	// PatientID identifies the patient; plans are archived under it.
	PatientID string

	// Patient is the complete intake profile.
	Patient nutrition.PatientProfile

	// Targets are externally calculated daily goals. Nil derives them from
	// the profile.
	Targets *nutrition.NutrientTargets
}

// NewPatient generates, validates, and archives a first three-day plan.
func (p *Pipeline) NewPatient(ctx context.Context, req NewPatientRequest) (*nutrition.NutritionPlan, error) {
	targets := resolveTargets(req.Targets, req.Patient)
	slots := req.Patient.Slots()

	candidates, err := p.retrieveSlots(ctx, slots, req.Patient)
	if err != nil {
		return nil, err
	}

	plan, err := p.engine.Run(ctx, generator.Request{
		Motor:          generator.MotorNewPatient,
		PatientID:      req.PatientID,
		Patient:        req.Patient,
		Targets:        targets,
		Context:        p.packer.Pack(candidates),
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
