package model

// Vehicle category labels as submitted by the WaitIn form.
const (
	CategoryMarinePlus = "Marine plus"
	CategorySanstha    = "Sanstha"
	CategoryMahamera   = "Mahamera"
	CategoryScamale    = "Scamale"
	CategoryRedSlow    = "red slow"
	CategoryBulk       = "Bulk"
)

// DefaultCategory is the category preselected on a fresh WaitIn form.
const DefaultCategory = CategorySanstha

// DefaultPrefix is the ticket prefix for any label missing from the code table.
// All unmapped labels share its counter.
const DefaultPrefix = "XX"

// categoryCodes is the fixed label to ticket prefix table. Lookups are exact.
var categoryCodes = map[string]string{
	CategoryMarinePlus: "MP",
	CategorySanstha:    "S",
	CategoryMahamera:   "MM",
	CategoryScamale:    "WH",
	CategoryRedSlow:    "R",
	CategoryBulk:       "B",
}

// categoryOrder is the display order of the known categories.
var categoryOrder = []string{
	CategoryMarinePlus,
	CategorySanstha,
	CategoryMahamera,
	CategoryScamale,
	CategoryRedSlow,
	CategoryBulk,
}

// CategoryCode returns the ticket prefix for a category label, or DefaultPrefix.
func CategoryCode(label string) string {
	if code, ok := categoryCodes[label]; ok {
		return code
	}
	return DefaultPrefix
}

// IsKnownCategory reports whether the label has its own prefix.
func IsKnownCategory(label string) bool {
	_, ok := categoryCodes[label]
	return ok
}

// Categories returns the known category labels in display order.
func Categories() []string {
	out := make([]string, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}
