package receipt

import (
	"slices"
	"strings"
)

// Category is a member of the fixed spending vocabulary
type Category string

const (
	CategoryBasics        Category = "basics"
	CategoryRent          Category = "rent"
	CategoryGroceries     Category = "groceries"
	CategoryDining        Category = "dining"
	CategoryFastFood      Category = "fast-food"
	CategoryEntertainment Category = "entertainment"
	CategoryHealth        Category = "health"
	CategoryTransport     Category = "transport"
	CategoryEducation     Category = "education"
	CategoryOther         Category = "other"
)

// Categories is the vocabulary in display order
var Categories = []Category{
	CategoryBasics,
	CategoryRent,
	CategoryGroceries,
	CategoryDining,
	CategoryFastFood,
	CategoryEntertainment,
	CategoryHealth,
	CategoryTransport,
	CategoryEducation,
	CategoryOther,
}

var categoryLabels = map[Category]string{
	CategoryBasics:        "Gastos básicos",
	CategoryRent:          "Arriendo",
	CategoryGroceries:     "Supermercado",
	CategoryDining:        "Comidas",
	CategoryFastFood:      "Comida chatarra",
	CategoryEntertainment: "Ocio",
	CategoryHealth:        "Salud",
	CategoryTransport:     "Transporte",
	CategoryEducation:     "Educación",
	CategoryOther:         "Otros",
}

// Label returns the user-facing name of the category
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Rank is the position of the category in display order. Unknown categories sort last.
func (c Category) Rank() int {
	if i := slices.Index(Categories, c); i >= 0 {
		return i
	}
	return len(Categories)
}

// CategoryNames returns the raw vocabulary values, for prompting analysis providers
func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return names
}

// MapCategories maps free-form category strings onto the vocabulary.
// Each string is lower-cased and trimmed, then matched exactly against a
// value or label, else against the first value where either string contains
// the other. Unmatched strings are dropped. The result is deduplicated,
// sorted in display order, and never empty.
func MapCategories(raw []string) []Category {
	seen := make(map[Category]bool)
	var result []Category

	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		c, ok := matchCategory(s)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		result = append(result, c)
	}

	if len(result) == 0 {
		return []Category{CategoryOther}
	}
	slices.SortFunc(result, func(a, b Category) int {
		return a.Rank() - b.Rank()
	})
	return result
}

func matchCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if s == string(c) || s == strings.ToLower(c.Label()) {
			return c, true
		}
	}
	for _, c := range Categories {
		if strings.Contains(s, string(c)) || strings.Contains(string(c), s) {
			return c, true
		}
	}
	return "", false
}
