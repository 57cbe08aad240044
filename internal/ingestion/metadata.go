package ingestion

import (
	"strings"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// InferredMetadata holds the category and economic tier inferred from a
// recipe's name and ingredients. Explicit corpus fields take precedence —
// this is the best-effort fallback for sparse records.
type InferredMetadata struct {
	// Category is the inferred recipe category.
	Category nutrition.Category
	// EconomicTier is the inferred cost tier.
	EconomicTier nutrition.EconomicTier
}

// meatKeywords identify animal-protein mains.
var meatKeywords = []string{
	"pollo", "carne", "vacuno", "lomo", "bife", "cerdo", "pavo",
	"pescado", "merluza", "salmón", "salmon", "atún", "atun", "langostino",
	"milanesa", "hamburguesa",
}

// vegetarianKeywords identify legume- or soy-based mains.
var vegetarianKeywords = []string{
	"lenteja", "garbanzo", "poroto", "tofu", "soja", "seitán", "seitan",
	"quinoa", "falafel",
}

// snackKeywords identify collation-sized items.
var snackKeywords = []string{
	"barrita", "fruto seco", "frutos secos", "almendra", "nuez", "maní",
	"puñado", "gelatina",
}

// sweetBreakfastKeywords identify the sweet breakfast register.
var sweetBreakfastKeywords = []string{
	"avena", "panqueque", "mermelada", "miel", "granola", "banana",
	"licuado", "yogur",
}

// savoryBreakfastKeywords identify the savory breakfast register.
var savoryBreakfastKeywords = []string{
	"huevo revuelto", "tostada", "queso", "palta", "jamón", "jamon",
	"omelette",
}

// premiumKeywords mark ingredients that push a recipe into the high cost tier.
var premiumKeywords = []string{
	"salmón", "salmon", "lomo", "langostino", "atún", "atun", "almendra",
	"castaña", "castana", "palta", "brie",
}

// budgetKeywords mark staples that keep a recipe in the low cost tier.
var budgetKeywords = []string{
	"lenteja", "arroz", "papa", "polenta", "fideo", "avena", "banana",
	"zanahoria", "repollo", "acelga",
}

// InferMetadata inspects a recipe's name and ingredients and returns
// best-effort metadata. Unrecognized recipes default to the sides category
// and the medium cost tier.
func InferMetadata(item nutrition.RecipeItem) InferredMetadata {
	text := searchText(item)

	m := InferredMetadata{
		Category:     nutrition.CategorySide,
		EconomicTier: nutrition.TierMedium,
	}

	switch {
	case matchesAny(text, meatKeywords):
		m.Category = nutrition.CategoryProteinMain
	case matchesAny(text, vegetarianKeywords):
		m.Category = nutrition.CategoryVegetarian
	case matchesAny(text, snackKeywords):
		m.Category = nutrition.CategorySnack
	case matchesAny(text, sweetBreakfastKeywords):
		m.Category = nutrition.CategoryBreakfastSweet
	case matchesAny(text, savoryBreakfastKeywords):
		m.Category = nutrition.CategoryBreakfastSavory
	}

	// Premium wins over budget: one expensive ingredient sets the tier for
	// the whole dish.
	switch {
	case matchesAny(text, premiumKeywords):
		m.EconomicTier = nutrition.TierHigh
	case matchesAny(text, budgetKeywords):
		m.EconomicTier = nutrition.TierLow
	}

	return m
}

// searchText folds the recipe name and ingredient names into one lowercase
// haystack.
func searchText(item nutrition.RecipeItem) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(item.Name))
	for _, ing := range item.Ingredients {
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(ing.Name))
	}
	return sb.String()
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
