package domain

// Category classifies an event into one of the pipeline's closed set of kinds.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryAnalytics
	CategoryCrash
	CategoryPerformance
)

// categorySynonyms maps legacy category strings from older SDK versions onto
// the closed enumeration, so persisted events written by any past version
// still hydrate.
var categorySynonyms = map[string]Category{
	"general":     CategoryGeneral,
	"network":     CategoryGeneral,
	"security":    CategoryGeneral,
	"custom":      CategoryGeneral,
	"log":         CategoryGeneral,
	"error":       CategoryGeneral,
	"analytics":   CategoryAnalytics,
	"event":       CategoryAnalytics,
	"crash":       CategoryCrash,
	"exception":   CategoryCrash,
	"performance": CategoryPerformance,
}

// String returns the wire name of the category.
func (c Category) String() string {
	switch c {
	case CategoryAnalytics:
		return "analytics"
	case CategoryCrash:
		return "crash"
	case CategoryPerformance:
		return "performance"
	default:
		return "general"
	}
}

// ParseCategory maps a wire or legacy category string onto the closed
// enumeration. Unknown strings map to CategoryGeneral.
func ParseCategory(s string) Category {
	if c, ok := categorySynonyms[s]; ok {
		return c
	}
	return CategoryGeneral
}
