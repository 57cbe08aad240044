package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/nutria-ai/nutria-go/internal/logging"
	"github.com/nutria-ai/nutria-go/internal/motor"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
	"github.com/nutria-ai/nutria-go/internal/tracing"
)

// NewPlanCmd constructs the `nutria plan` command group: the three plan
// motors invoked directly from the terminal, printing the accepted plan as
// JSON on stdout.
func NewPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a nutrition plan from the command line",
		Long: `Run one of the three plan motors directly, without the HTTP server.

The patient profile is read from a JSON file (see --patient). The accepted
plan is printed to stdout as JSON; progress and validation output goes to
stderr.

Examples:
  nutria plan new --id pac-001 --patient ./paciente.json
  nutria plan control --id pac-001 --patient ./paciente.json --directives "AGREGAR yogur en desayuno"
  nutria plan replace --id pac-001 --patient ./paciente.json --slot almuerzo --reason "no come pescado"`,
	}

	cmd.AddCommand(newPlanNewCmd(), newPlanControlCmd(), newPlanReplaceCmd())
	return cmd
}

func newPlanNewCmd() *cobra.Command {
	var patientID, patientFile string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a first full plan for a new patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMotor(cmd, patientID, patientFile, func(pipeline *motor.Pipeline, patient nutrition.PatientProfile) (any, error) {
				return pipeline.NewPatient(cmd.Context(), motor.NewPatientRequest{
					PatientID: patientID,
					Patient:   patient,
				})
			})
		},
	}

	addPatientFlags(cmd, &patientID, &patientFile)
	return cmd
}

func newPlanControlCmd() *cobra.Command {
	var patientID, patientFile, directives, priorFile string

	cmd := &cobra.Command{
		Use:   "control",
		Short: "Adjust a patient's plan at a control visit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMotor(cmd, patientID, patientFile, func(pipeline *motor.Pipeline, patient nutrition.PatientProfile) (any, error) {
				prior, err := loadPlanFile(priorFile)
				if err != nil {
					return nil, err
				}
				return pipeline.Control(cmd.Context(), motor.ControlRequest{
					PatientID:  patientID,
					Patient:    patient,
					PriorPlan:  prior,
					Directives: motor.ParseDirectives(directives),
				})
			})
		},
	}

	addPatientFlags(cmd, &patientID, &patientFile)
	cmd.Flags().StringVarP(&directives, "directives", "d", "", "Raw directive sheet text (AGREGAR/SACAR/DEJAR lines)")
	cmd.Flags().StringVar(&priorFile, "prior", "", "Prior plan JSON file (default: latest archived plan)")
	return cmd
}

func newPlanReplaceCmd() *cobra.Command {
	var patientID, patientFile, slot, reason, priorFile string

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Replace one meal with an equivalent alternative",
		RunE: func(cmd *cobra.Command, args []string) error {
			if slot == "" {
				return fmt.Errorf("plan replace: --slot is required")
			}
			parsed, err := nutrition.ParseSlot(slot)
			if err != nil {
				return fmt.Errorf("plan replace: %w", err)
			}
			return runMotor(cmd, patientID, patientFile, func(pipeline *motor.Pipeline, patient nutrition.PatientProfile) (any, error) {
				prior, err := loadPlanFile(priorFile)
				if err != nil {
					return nil, err
				}
				return pipeline.Replace(cmd.Context(), motor.ReplaceRequest{
					PatientID: patientID,
					Patient:   patient,
					PriorPlan: prior,
					Slot:      parsed,
					Reason:    reason,
				})
			})
		},
	}

	addPatientFlags(cmd, &patientID, &patientFile)
	cmd.Flags().StringVarP(&slot, "slot", "s", "", "Meal slot to replace (desayuno, almuerzo, merienda, cena, colacion_1, colacion_2)")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Free-text reason for the swap")
	cmd.Flags().StringVar(&priorFile, "prior", "", "Prior plan JSON file (default: latest archived plan)")
	return cmd
}

func addPatientFlags(cmd *cobra.Command, patientID, patientFile *string) {
	cmd.Flags().StringVar(patientID, "id", "", "Patient identifier for archiving and lookups")
	cmd.Flags().StringVar(patientFile, "patient", "", "Patient profile JSON file")
}

// runMotor builds the plan engine, loads the patient profile, runs the given
// motor, and prints the result as indented JSON.
func runMotor(cmd *cobra.Command, patientID, patientFile string, run func(*motor.Pipeline, nutrition.PatientProfile) (any, error)) error {
	if patientID == "" {
		return fmt.Errorf("plan: --id is required")
	}
	if patientFile == "" {
		return fmt.Errorf("plan: --patient is required")
	}

	patient, err := loadPatientFile(patientFile)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	log := logging.New()
	ctx := logging.WithLogger(cmd.Context(), log)
	cmd.SetContext(ctx)

	handler, flush, ok := tracing.Setup()
	if ok {
		callbacks.AppendGlobalHandlers(handler)
		defer flush()
	}

	deps, err := buildEngine(ctx, log)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	defer deps.close()

	result, err := run(deps.pipeline, patient)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func loadPatientFile(path string) (nutrition.PatientProfile, error) {
	var patient nutrition.PatientProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return patient, fmt.Errorf("read patient file: %w", err)
	}
	if err := json.Unmarshal(data, &patient); err != nil {
		return patient, fmt.Errorf("parse patient file %s: %w", path, err)
	}
	return patient, nil
}

// loadPlanFile reads an optional prior-plan JSON file. Empty path means the
// motor falls back to the archive.
func loadPlanFile(path string) (*nutrition.NutritionPlan, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prior plan: %w", err)
	}
	var plan nutrition.NutritionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse prior plan %s: %w", path, err)
	}
	plan.Freeze()
	return &plan, nil
}
