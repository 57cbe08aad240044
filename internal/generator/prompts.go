package generator

import (
	"fmt"
	"strings"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// systemPrompt is the base instruction shared by every motor. The output
// contract is JSON-only so parsing never depends on prose layout.
const systemPrompt = `Eres un nutricionista clínico que genera planes alimentarios personalizados.

Reglas obligatorias:
- El plan tiene exactamente 3 días IGUALES entre sí.
- Cada comida ofrece %d opciones equivalentes entre sí (±5%% de calorías).
- Verduras tipo C (papa, batata, choclo) y frutas: siempre en gramos exactos.
- Las demás verduras pueden indicarse como porción libre.
- Todos los pesos son en %s.
- Cada opción incluye su preparación paso a paso.
- Usá únicamente recetas del contexto provisto; no inventes platos fuera de él.
- Respetá estrictamente las restricciones alimentarias del paciente.

Respondé ÚNICAMENTE con un objeto JSON válido, sin texto adicional ni markdown:
{
  "days": [
    {
      "meals": [
        {
          "slot": "breakfast|lunch|snack|dinner|collation_1|collation_2",
          "options": [
            {
              "name": "...",
              "ingredients": [
                {"name": "...", "grams": 0, "free_portion": false, "tags": ["..."]}
              ],
              "preparation": "...",
              "macros": {"calories": 0, "protein_g": 0, "carb_g": 0, "fat_g": 0}
            }
          ]
        }
      ]
    }
  ],
  "summary": "..."
}`

// replacementSystemPrompt is the single-meal variant used by the replacement
// motor. Same rules, but the envelope is one meal instead of a full plan.
const replacementSystemPrompt = `Eres un nutricionista clínico que reemplaza una comida puntual de un plan existente.

Reglas obligatorias:
- El reemplazo debe mantenerse dentro de ±%.0f%% de las calorías de la comida original (%.0f kcal).
- Verduras tipo C (papa, batata, choclo) y frutas: siempre en gramos exactos.
- Las demás verduras pueden indicarse como porción libre.
- Todos los pesos son en %s.
- Incluí la preparación paso a paso.
- Usá únicamente recetas del contexto provisto.
- Respetá estrictamente las restricciones alimentarias del paciente.

Respondé ÚNICAMENTE con un objeto JSON válido, sin texto adicional ni markdown:
{
  "slot": "...",
  "options": [
    {
      "name": "...",
      "ingredients": [
        {"name": "...", "grams": 0, "free_portion": false, "tags": ["..."]}
      ],
      "preparation": "...",
      "macros": {"calories": 0, "protein_g": 0, "carb_g": 0, "fat_g": 0}
    }
  ]
}`

// basisLabel renders the weight basis the way the prompts state it.
func basisLabel(b nutrition.WeightBasis) string {
	if b == nutrition.WeightCooked {
		return "cocido"
	}
	return "crudo"
}

// buildPatientSection renders the patient block shared by all motors.
func buildPatientSection(req Request) string {
	p := req.Patient
	var sb strings.Builder
	sb.WriteString("## Paciente\n")
	fmt.Fprintf(&sb, "Nombre: %s | Edad: %d | Sexo: %s\n", p.Name, p.Age, p.Sex)
	fmt.Fprintf(&sb, "Peso: %.1f kg | Altura: %.0f cm | Actividad: %s\n", p.WeightKg, p.HeightCm, p.ActivityLevel)
	fmt.Fprintf(&sb, "Objetivo: %s\n", p.Objective)
	if len(p.Pathologies) > 0 {
		fmt.Fprintf(&sb, "Patologías: %s\n", strings.Join(p.Pathologies, ", "))
	}
	if len(p.Restrictions) > 0 {
		fmt.Fprintf(&sb, "Restricciones (obligatorias): %s\n", strings.Join(p.Restrictions, ", "))
	}
	if len(p.Preferences) > 0 {
		fmt.Fprintf(&sb, "Preferencias: %s\n", strings.Join(p.Preferences, ", "))
	}
	if len(p.Dislikes) > 0 {
		fmt.Fprintf(&sb, "No consume: %s\n", strings.Join(p.Dislikes, ", "))
	}
	fmt.Fprintf(&sb, "\n## Objetivos diarios\n")
	fmt.Fprintf(&sb, "Calorías: %.0f kcal | Proteínas: %.0f g | Carbohidratos: %.0f g | Grasas: %.0f g\n",
		req.Targets.Calories, req.Targets.ProteinG, req.Targets.CarbG, req.Targets.FatG)
	return sb.String()
}

// buildCorrectiveSection renders repair instructions appended on
// regeneration attempts. Empty on the first attempt.
func buildCorrectiveSection(corrective []string) string {
	if len(corrective) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n## Correcciones obligatorias\nEl intento anterior fue rechazado. Corregí exactamente lo siguiente:\n")
	for _, c := range corrective {
		fmt.Fprintf(&sb, "- %s\n", c)
	}
	return sb.String()
}

// buildNewPatientPrompt assembles the user message for a first full plan.
func buildNewPatientPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("Generá el plan alimentario completo de 3 días iguales para el siguiente paciente.\n\n")
	sb.WriteString(buildPatientSection(req))
	sb.WriteString("\n## Recetas disponibles\n")
	sb.WriteString(req.Context.Render())
	sb.WriteString(buildCorrectiveSection(req.Corrective))
	return sb.String()
}

// buildControlPrompt assembles the user message for a control adjustment:
// prior plan plus the nutritionist's directives.
func buildControlPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("Ajustá el plan vigente del paciente según las instrucciones de control.\n\n")
	sb.WriteString(buildPatientSection(req))

	sb.WriteString("\n## Instrucciones de control\n")
	for _, a := range req.Directives.Add {
		fmt.Fprintf(&sb, "AGREGAR: %s\n", a)
	}
	for _, r := range req.Directives.Remove {
		fmt.Fprintf(&sb, "SACAR: %s\n", r)
	}
	for _, k := range req.Directives.Keep {
		fmt.Fprintf(&sb, "DEJAR: %s\n", k)
	}

	if req.PriorPlan != nil {
		sb.WriteString("\n## Plan vigente (día tipo)\n")
		sb.WriteString(renderPlanDay(req.PriorPlan))
	}

	sb.WriteString("\n## Recetas disponibles\n")
	sb.WriteString(req.Context.Render())
	sb.WriteString(buildCorrectiveSection(req.Corrective))
	return sb.String()
}

// buildReplacementPrompt assembles the user message for a single-meal swap.
func buildReplacementPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reemplazá la comida %q manteniendo la equivalencia calórica.\n\n", req.Slot)
	sb.WriteString(buildPatientSection(req))

	if req.OriginalMeal != nil && len(req.OriginalMeal.Options) > 0 {
		orig := req.OriginalMeal.Options[0]
		sb.WriteString("\n## Comida original\n")
		fmt.Fprintf(&sb, "%s (%.0f kcal, P %.0fg, C %.0fg, G %.0fg)\n",
			orig.Name, orig.Macros.Calories, orig.Macros.ProteinG, orig.Macros.CarbG, orig.Macros.FatG)
	}

	sb.WriteString("\n## Recetas disponibles\n")
	sb.WriteString(req.Context.Render())
	sb.WriteString(buildCorrectiveSection(req.Corrective))
	return sb.String()
}

// renderPlanDay serializes the first day of a plan (all days are equal) for
// the control prompt.
func renderPlanDay(plan *nutrition.NutritionPlan) string {
	if len(plan.Days) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, meal := range plan.Days[0].Meals {
		fmt.Fprintf(&sb, "%s:\n", meal.Slot)
		for _, opt := range meal.Options {
			names := make([]string, 0, len(opt.Ingredients))
			for _, ing := range opt.Ingredients {
				names = append(names, ing.Name)
			}
			fmt.Fprintf(&sb, "  - %s (%.0f kcal): %s\n", opt.Name, opt.Macros.Calories, strings.Join(names, ", "))
		}
	}
	return sb.String()
}
