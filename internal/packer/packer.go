// Package packer assembles retrieved recipe candidates into a token-bounded
// context block for the generator. Packing is deterministic: the same
// candidates and budget always produce the same block.
package packer

import (
	"fmt"
	"strings"

	"github.com/nutria-ai/nutria-go/internal/budget"
	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// DefaultMinOptions is the minimum number of candidate recipes the packer
// tries to guarantee per slot before spending budget on extras.
const DefaultMinOptions = 3

// SlotCandidates is one slot's ranked retrieval output, best candidate first.
type SlotCandidates struct {
	// Slot identifies the meal position these candidates feed.
	Slot nutrition.Slot

	// Items are the ranked candidates from the retriever.
	Items []nutrition.RecipeItem
}

// Section is the packed candidate list for one slot.
type Section struct {
	// Slot identifies the meal position.
	Slot nutrition.Slot

	// Items are the candidates that made it into the block, in rank order.
	Items []nutrition.RecipeItem
}

// ContextBlock is the packer output handed to the generator.
type ContextBlock struct {
	// Sections holds the per-slot candidate lists in packing priority order.
	Sections []Section

	// EstimatedTokens is the heuristic token count of the rendered block.
	// Always ≤ the budget the block was packed under.
	EstimatedTokens int

	// Flagged lists slots that ended up with zero candidates. The generator
	// surfaces these instead of inventing dishes for them.
	Flagged []nutrition.Slot
}

// Config holds the packer tuning knobs.
type Config struct {
	// BudgetTokens is the hard token ceiling for the rendered block.
	// Zero uses budget.DefaultMaxContextTokens.
	BudgetTokens int

	// MinOptions is the per-slot minimum candidate count the packer tries to
	// guarantee before filling extras. Zero uses DefaultMinOptions.
	MinOptions int
}

// Packer packs slot candidates into context blocks. Stateless; safe for
// concurrent use.
type Packer struct {
	cfg Config
}

// New constructs a Packer, applying defaults to zero config fields.
func New(cfg Config) *Packer {
	if cfg.BudgetTokens <= 0 {
		cfg.BudgetTokens = budget.DefaultMaxContextTokens
	}
	if cfg.MinOptions <= 0 {
		cfg.MinOptions = DefaultMinOptions
	}
	return &Packer{cfg: cfg}
}

// Pack greedily fits candidates under the token budget. Slots are processed
// in priority order (main meals before collations, input order otherwise).
// Phase one guarantees up to MinOptions entries per slot, stealing budget
// from the lowest-priority slot that still has spare entries when a
// higher-priority slot cannot reach its minimum. Phase two spends leftover
// budget on extra candidates in the same priority order. Slots with zero
// candidates are flagged, never silently dropped.
func (p *Packer) Pack(slots []SlotCandidates) ContextBlock {
	ordered := prioritize(slots)

	block := ContextBlock{Sections: make([]Section, len(ordered))}
	for i, sc := range ordered {
		block.Sections[i].Slot = sc.Slot
		if len(sc.Items) == 0 {
			block.Flagged = append(block.Flagged, sc.Slot)
		}
	}

	used := 0
	for i := range ordered {
		used += budget.Estimate(sectionHeader(ordered[i].Slot))
	}

	// Phase one: per-slot minimum, highest priority first.
	for i, sc := range ordered {
		for n := 0; n < p.cfg.MinOptions && n < len(sc.Items); n++ {
			cost := budget.Estimate(renderItem(sc.Items[n]))
			for used+cost > p.cfg.BudgetTokens {
				if !p.steal(&block, &used, i) {
					break
				}
			}
			if used+cost > p.cfg.BudgetTokens {
				break
			}
			block.Sections[i].Items = append(block.Sections[i].Items, sc.Items[n])
			used += cost
		}
	}

	// Phase two: extras beyond the minimum while budget remains.
	for i, sc := range ordered {
		for n := len(block.Sections[i].Items); n < len(sc.Items); n++ {
			cost := budget.Estimate(renderItem(sc.Items[n]))
			if used+cost > p.cfg.BudgetTokens {
				break
			}
			block.Sections[i].Items = append(block.Sections[i].Items, sc.Items[n])
			used += cost
		}
	}

	block.EstimatedTokens = used
	return block
}

// steal frees budget for a slot that cannot reach its minimum by removing the
// last entry from the lowest-priority already-filled section that holds more
// than one entry. Reports whether anything was freed.
func (p *Packer) steal(block *ContextBlock, used *int, requester int) bool {
	for i := requester - 1; i >= 0; i-- {
		items := block.Sections[i].Items
		if len(items) <= 1 {
			continue
		}
		victim := items[len(items)-1]
		block.Sections[i].Items = items[:len(items)-1]
		*used -= budget.Estimate(renderItem(victim))
		return true
	}
	return false
}

// prioritize reorders slots so main meals come before collations, preserving
// input order within each group.
func prioritize(slots []SlotCandidates) []SlotCandidates {
	ordered := make([]SlotCandidates, 0, len(slots))
	for _, sc := range slots {
		if sc.Slot.MainSlot() {
			ordered = append(ordered, sc)
		}
	}
	for _, sc := range slots {
		if !sc.Slot.MainSlot() {
			ordered = append(ordered, sc)
		}
	}
	return ordered
}

// slotLabels maps slots to the Spanish headers used in the rendered context.
var slotLabels = map[nutrition.Slot]string{
	nutrition.SlotBreakfast:  "Desayuno",
	nutrition.SlotLunch:      "Almuerzo",
	nutrition.SlotSnack:      "Merienda",
	nutrition.SlotDinner:     "Cena",
	nutrition.SlotCollation1: "Colación 1",
	nutrition.SlotCollation2: "Colación 2",
}

func sectionHeader(slot nutrition.Slot) string {
	label, ok := slotLabels[slot]
	if !ok {
		label = string(slot)
	}
	return fmt.Sprintf("### %s\n", label)
}

// renderItem serializes one candidate into the line format the generator
// prompt consumes. The same text feeds the token estimate, so the estimate
// and the rendered block can never drift apart.
func renderItem(item nutrition.RecipeItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- %s [%s]", item.Name, item.Category)
	if len(item.Ingredients) > 0 {
		parts := make([]string, 0, len(item.Ingredients))
		for _, ing := range item.Ingredients {
			if ing.FreePortion {
				parts = append(parts, ing.Name+" (porción libre)")
				continue
			}
			parts = append(parts, fmt.Sprintf("%s %.0fg", ing.Name, ing.Grams))
		}
		fmt.Fprintf(&sb, " | Ingredientes: %s", strings.Join(parts, ", "))
	}
	if item.Preparation != "" {
		fmt.Fprintf(&sb, " | Preparación: %s", item.Preparation)
	}
	fmt.Fprintf(&sb, " | %.0f kcal, P %.0fg, C %.0fg, G %.0fg\n",
		item.Macros.Calories, item.Macros.ProteinG, item.Macros.CarbG, item.Macros.FatG)
	return sb.String()
}

// Render produces the prompt text for the packed block: one header per slot
// followed by its candidate lines. Flagged slots render an explicit
// no-candidates marker.
func (b ContextBlock) Render() string {
	var sb strings.Builder
	for _, sec := range b.Sections {
		sb.WriteString(sectionHeader(sec.Slot))
		if len(sec.Items) == 0 {
			sb.WriteString("(sin recetas disponibles)\n")
			continue
		}
		for _, item := range sec.Items {
			sb.WriteString(renderItem(item))
		}
	}
	return sb.String()
}
