package motor

import (
	"strings"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// ParseDirectives reads the AGREGAR / SACAR / DEJAR control sheet. One
// directive per line, prefix case-insensitive, with or without a colon.
// Unrecognized lines are ignored.
func ParseDirectives(text string) nutrition.Directives {
	var d nutrition.Directives
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "AGREGAR"):
			if v := directiveValue(line, "AGREGAR"); v != "" {
				d.Add = append(d.Add, v)
			}
		case strings.HasPrefix(upper, "SACAR"):
			if v := directiveValue(line, "SACAR"); v != "" {
				d.Remove = append(d.Remove, v)
			}
		case strings.HasPrefix(upper, "DEJAR"):
			if v := directiveValue(line, "DEJAR"); v != "" {
				d.Keep = append(d.Keep, v)
			}
		}
	}
	return d
}

func directiveValue(line, keyword string) string {
	rest := line[len(keyword):]
	rest = strings.TrimLeft(rest, " :")
	return strings.TrimSpace(rest)
}

// addKeywords routes AGREGAR items to a slot by food keyword. Anything
// unrecognized lands in lunch, the largest meal.
var addKeywords = []struct {
	words []string
	slot  nutrition.Slot
}{
	{[]string{"yogur", "avena", "tostada", "huevo revuelto", "cereal", "mate"}, nutrition.SlotBreakfast},
	{[]string{"colación", "colacion", "fruto seco", "barrita"}, nutrition.SlotCollation1},
	{[]string{"sopa", "liviano"}, nutrition.SlotDinner},
}

// slotForAddition classifies one AGREGAR item.
func slotForAddition(item string) nutrition.Slot {
	lower := strings.ToLower(item)
	for _, k := range addKeywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				return k.slot
			}
		}
	}
	return nutrition.SlotLunch
}

// affectedSlots resolves which (shared across equal days) slots a control
// adjustment touches: SACAR items by matching prior-plan ingredient or
// option names, AGREGAR items by keyword classification. DEJAR items pin
// meals in place and never trigger re-retrieval. Only affected slots get
// fresh candidates; the rest of the plan travels unchanged into the prompt.
func affectedSlots(prior *nutrition.NutritionPlan, d nutrition.Directives) []nutrition.Slot {
	set := make(map[nutrition.Slot]bool)

	for _, item := range d.Remove {
		for _, slot := range slotsMentioning(prior, item) {
			set[slot] = true
		}
	}
	for _, item := range d.Add {
		set[slotForAddition(item)] = true
	}

	if prior == nil || len(prior.Days) == 0 {
		return orderedSlots(set, nil)
	}
	layout := make([]nutrition.Slot, 0, len(prior.Days[0].Meals))
	for _, m := range prior.Days[0].Meals {
		layout = append(layout, m.Slot)
	}
	return orderedSlots(set, layout)
}

// slotsMentioning finds the slots whose meals mention the food, by
// case-insensitive substring over option and ingredient names.
func slotsMentioning(plan *nutrition.NutritionPlan, food string) []nutrition.Slot {
	if plan == nil || len(plan.Days) == 0 {
		return nil
	}
	lower := strings.ToLower(food)
	var out []nutrition.Slot
	// Days are equal; the first day is representative.
	for _, meal := range plan.Days[0].Meals {
		if mealMentions(meal, lower) {
			out = append(out, meal.Slot)
		}
	}
	return out
}

func mealMentions(meal nutrition.Meal, lowerFood string) bool {
	for _, opt := range meal.Options {
		if strings.Contains(strings.ToLower(opt.Name), lowerFood) {
			return true
		}
		for _, ing := range opt.Ingredients {
			if strings.Contains(strings.ToLower(ing.Name), lowerFood) {
				return true
			}
		}
	}
	return false
}

// orderedSlots returns the affected set in the layout's order so retrieval
// and packing stay deterministic. Slots not in the layout append in their
// canonical order.
func orderedSlots(set map[nutrition.Slot]bool, layout []nutrition.Slot) []nutrition.Slot {
	var out []nutrition.Slot
	for _, slot := range layout {
		if set[slot] {
			out = append(out, slot)
			delete(set, slot)
		}
	}
	for _, slot := range nutrition.SlotsFor(4, true) {
		if set[slot] {
			out = append(out, slot)
		}
	}
	return out
}
