// Package motor wires the retrieval, packing, generation, and validation
// stages into the three plan flows: new patient, control adjustment, and
// meal replacement. Each invocation builds its state from the request alone,
// so motors are safe to call concurrently.
package motor

import (
	"context"
	"fmt"
	"strings"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
	"github.com/nutria-ai/nutria-go/internal/packer"
	"github.com/nutria-ai/nutria-go/internal/rag"
	"github.com/nutria-ai/nutria-go/internal/validator"
)

// Archive persists accepted plans and serves the control motor's prior-plan
// lookup. Implementations must be safe for concurrent use.
type Archive interface {
	// Save persists a frozen plan.
	Save(ctx context.Context, plan *nutrition.NutritionPlan) error

	// Latest returns the most recent plan for the patient, or nil when the
	// patient has none.
	Latest(ctx context.Context, patientID string) (*nutrition.NutritionPlan, error)
}

// Config holds the motor tuning knobs.
type Config struct {
	// CandidatesPerSlot is the retrieval k per slot. Zero means 5.
	CandidatesPerSlot int

	// OptionsPerMeal is the number of equivalent options per meal. Zero uses
	// nutrition.DefaultOptionsPerMeal.
	OptionsPerMeal int

	// ReplacementTolerance is the calorie window half-width for the
	// replacement motor. Zero means 0.05.
	ReplacementTolerance float64
}

// Pipeline composes the stages shared by all three motors.
type Pipeline struct {
	retriever rag.Retriever
	packer    *packer.Packer
	engine    *validator.Engine
	archive   Archive
	cfg       Config
}

// New constructs a Pipeline. The archive may be nil; plans are then not
// persisted and the control motor requires an explicit prior plan.
func New(retriever rag.Retriever, pk *packer.Packer, engine *validator.Engine, archive Archive, cfg Config) (*Pipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("motor: retriever must not be nil")
	}
	if pk == nil {
		return nil, fmt.Errorf("motor: packer must not be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("motor: engine must not be nil")
	}
	if cfg.CandidatesPerSlot <= 0 {
		cfg.CandidatesPerSlot = 5
	}
	if cfg.OptionsPerMeal <= 0 {
		cfg.OptionsPerMeal = nutrition.DefaultOptionsPerMeal
	}
	if cfg.ReplacementTolerance <= 0 {
		cfg.ReplacementTolerance = 0.05
	}
	return &Pipeline{retriever: retriever, packer: pk, engine: engine, archive: archive, cfg: cfg}, nil
}

// slotCategory maps a slot to the retrieval category filter. Lunch and
// dinner mains switch to the vegetarian category when the patient is tagged
// vegetarian; breakfast and merienda span two corpus categories, so they
// search unfiltered and rely on the intent text.
func slotCategory(slot nutrition.Slot, patient nutrition.PatientProfile) nutrition.Category {
	switch slot {
	case nutrition.SlotLunch, nutrition.SlotDinner:
		if isVegetarian(patient) {
			return nutrition.CategoryVegetarian
		}
		return nutrition.CategoryProteinMain
	case nutrition.SlotCollation1, nutrition.SlotCollation2:
		return nutrition.CategorySnack
	}
	return ""
}

func isVegetarian(patient nutrition.PatientProfile) bool {
	for _, r := range patient.Restrictions {
		if strings.Contains(strings.ToLower(r), "vegetarian") {
			return true
		}
	}
	return false
}

// slotIntent builds the free-text retrieval intent for one slot.
func slotIntent(slot nutrition.Slot, patient nutrition.PatientProfile) string {
	labels := map[nutrition.Slot]string{
		nutrition.SlotBreakfast:  "desayuno",
		nutrition.SlotLunch:      "almuerzo",
		nutrition.SlotSnack:      "merienda",
		nutrition.SlotDinner:     "cena",
		nutrition.SlotCollation1: "colación",
		nutrition.SlotCollation2: "colación",
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s para paciente con objetivo %s", labels[slot], patient.Objective)
	if len(patient.Pathologies) > 0 {
		fmt.Fprintf(&sb, ", patologías: %s", strings.Join(patient.Pathologies, ", "))
	}
	if len(patient.Preferences) > 0 {
		fmt.Fprintf(&sb, ", prefiere %s", strings.Join(patient.Preferences, ", "))
	}
	return sb.String()
}

// retrieveSlots runs one retrieval per slot and assembles the packer input.
// A partial result is acceptable; zero candidates for a slot propagate the
// retriever's error only when every slot is empty — otherwise the packer
// flags the empty slot and generation proceeds.
func (p *Pipeline) retrieveSlots(ctx context.Context, slots []nutrition.Slot, patient nutrition.PatientProfile) ([]packer.SlotCandidates, error) {
	out := make([]packer.SlotCandidates, 0, len(slots))
	var firstErr error
	nonEmpty := 0

	for _, slot := range slots {
		res, err := p.retriever.Retrieve(ctx, rag.RetrievalQuery{
			IntentText: slotIntent(slot, patient),
			Filter: rag.Filter{
				Category:        slotCategory(slot, patient),
				MaxEconomicTier: patient.EconomicLevel,
				RequiredTags:    patient.Restrictions,
			},
			Preferences: patient.Preferences,
			Dislikes:    patient.Dislikes,
			TopK:        p.cfg.CandidatesPerSlot,
		})
		if err != nil {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("motor: %w", err)
			}
			if firstErr == nil {
				firstErr = err
			}
			out = append(out, packer.SlotCandidates{Slot: slot})
			continue
		}
		nonEmpty++
		out = append(out, packer.SlotCandidates{Slot: slot, Items: res.Items})
	}

	if nonEmpty == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// resolveTargets returns the explicit targets when supplied, falling back to
// the profile-derived calculation.
func resolveTargets(targets *nutrition.NutrientTargets, patient nutrition.PatientProfile) nutrition.NutrientTargets {
	if targets != nil {
		return *targets
	}
	return nutrition.TargetsForProfile(patient)
}

// persist saves an accepted plan when an archive is configured.
func (p *Pipeline) persist(ctx context.Context, plan *nutrition.NutritionPlan) error {
	if p.archive == nil {
		return nil
	}
	if err := p.archive.Save(ctx, plan); err != nil {
		return fmt.Errorf("motor: persist plan: %w", err)
	}
	return nil
}
