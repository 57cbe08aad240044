// Package generator adapts an LLM chat model into the plan generation stage:
// it assembles the motor-specific prompt, makes exactly one model call per
// attempt under a deadline, and parses the JSON envelope into the domain
// plan tree. Retry policy lives in the validator's repair loop, not here.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/nutria-ai/nutria-go/internal/budget"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
	"github.com/nutria-ai/nutria-go/internal/packer"
)

// Motor identifies which generation flow a request belongs to.
type Motor string

const (
	// MotorNewPatient builds a first full plan from the patient profile.
	MotorNewPatient Motor = "nuevo_paciente"
	// MotorControl adjusts a prior plan under nutritionist directives.
	MotorControl Motor = "control"
	// MotorReplacement swaps a single meal within a macro window.
	MotorReplacement Motor = "reemplazo"
)

// Request carries everything one generation attempt needs. Motors fill the
// fields relevant to their flow; the rest stay zero.
type Request struct {
	// Motor selects the prompt flavor.
	Motor Motor

	// PatientID identifies the patient the plan is for.
	PatientID string

	// Patient is the full profile rendered into the prompt.
	Patient nutrition.PatientProfile

	// Targets are the daily goals the plan must hit.
	Targets nutrition.NutrientTargets

	// Context is the packed candidate block from the packer.
	Context packer.ContextBlock

	// PriorPlan is the plan being adjusted (control motor only).
	PriorPlan *nutrition.NutritionPlan

	// Directives are the control-motor instructions (control motor only).
	Directives nutrition.Directives

	// OriginalMeal is the meal being swapped (replacement motor only).
	OriginalMeal *nutrition.Meal

	// Slot is the position of the replacement (replacement motor only).
	Slot nutrition.Slot

	// Window is the calorie acceptance band (replacement motor only).
	Window nutrition.MacroWindow

	// OptionsPerMeal is the number of equivalent options each meal offers.
	// Zero uses nutrition.DefaultOptionsPerMeal.
	OptionsPerMeal int

	// Corrective carries repair instructions from a rejected attempt. Empty
	// on the first attempt.
	Corrective []string
}

// Generator is the interface the motors and the repair loop call.
// Implementations must be safe for concurrent use.
type Generator interface {
	// GeneratePlan produces a full three-day plan draft.
	GeneratePlan(ctx context.Context, req Request) (*nutrition.NutritionPlan, error)

	// GenerateReplacement produces a single replacement meal.
	GenerateReplacement(ctx context.Context, req Request) (*nutrition.Meal, error)
}

// Config holds the generator tuning knobs.
type Config struct {
	// AttemptTimeout bounds one model call. Zero means 90 seconds.
	AttemptTimeout time.Duration

	// MaxContextTokens bounds the assembled prompt. Zero uses the budget
	// package default.
	MaxContextTokens int
}

// ChatGenerator implements Generator on top of an eino chat model.
type ChatGenerator struct {
	model model.BaseChatModel
	cfg   Config
}

// New constructs a ChatGenerator, applying defaults to zero config fields.
func New(m model.BaseChatModel, cfg Config) (*ChatGenerator, error) {
	if m == nil {
		return nil, fmt.Errorf("generator: model must not be nil")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 90 * time.Second
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &ChatGenerator{model: m, cfg: cfg}, nil
}

// GeneratePlan makes one model call and parses the full-plan envelope.
// A deadline overrun maps to ErrGenerationTimeout, any other backend failure
// to ErrGenerationUnavailable; caller cancellation propagates unchanged.
func (g *ChatGenerator) GeneratePlan(ctx context.Context, req Request) (*nutrition.NutritionPlan, error) {
	options := req.OptionsPerMeal
	if options <= 0 {
		options = nutrition.DefaultOptionsPerMeal
	}

	system := fmt.Sprintf(systemPrompt, options, basisLabel(req.Patient.Basis))
	var user string
	switch req.Motor {
	case MotorControl:
		user = buildControlPrompt(req)
	default:
		user = buildNewPatientPrompt(req)
	}

	content, err := g.call(ctx, system, user)
	if err != nil {
		return nil, err
	}

	plan, err := parsePlan(content)
	if err != nil {
		return nil, err
	}
	plan.PatientID = req.PatientID
	plan.Motor = string(req.Motor)
	plan.Targets = req.Targets
	return plan, nil
}

// GenerateReplacement makes one model call and parses the single-meal
// envelope.
func (g *ChatGenerator) GenerateReplacement(ctx context.Context, req Request) (*nutrition.Meal, error) {
	center := req.Window.Center.Calories
	tolerance := req.Window.Tolerance * 100
	system := fmt.Sprintf(replacementSystemPrompt, tolerance, center, basisLabel(req.Patient.Basis))
	user := buildReplacementPrompt(req)

	content, err := g.call(ctx, system, user)
	if err != nil {
		return nil, err
	}

	meal, err := parseMeal(content)
	if err != nil {
		return nil, err
	}
	if meal.Slot == "" {
		meal.Slot = req.Slot
	}
	return meal, nil
}

// call performs the single bounded model invocation shared by both flows.
func (g *ChatGenerator) call(ctx context.Context, system, user string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	if !budget.Fits(msgs, g.cfg.MaxContextTokens) {
		return "", fmt.Errorf("generator: prompt estimate %d tokens exceeds budget %d",
			budget.EstimateMessages(msgs), g.cfg.MaxContextTokens)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()

	out, err := g.model.Generate(callCtx, msgs)
	if err != nil {
		// Caller cancellation is not a backend failure; let it propagate.
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return "", fmt.Errorf("generator: %w", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("generator: model call exceeded %s: %w", g.cfg.AttemptTimeout, nutrition.ErrGenerationTimeout)
		}
		return "", fmt.Errorf("generator: model call failed: %v: %w", err, nutrition.ErrGenerationUnavailable)
	}
	if out == nil || out.Content == "" {
		return "", fmt.Errorf("generator: model returned empty response: %w", nutrition.ErrGenerationUnavailable)
	}
	return out.Content, nil
}
