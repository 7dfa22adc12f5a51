package enums

import "fmt"

// GarmentCategory classifies a garment for provider submission.
type GarmentCategory string

const (
	GarmentCategoryTops      GarmentCategory = "tops"
	GarmentCategoryBottoms   GarmentCategory = "bottoms"
	GarmentCategoryDresses   GarmentCategory = "dresses"
	GarmentCategoryOuterwear GarmentCategory = "outerwear"
)

var validGarmentCategories = []GarmentCategory{
	GarmentCategoryTops,
	GarmentCategoryBottoms,
	GarmentCategoryDresses,
	GarmentCategoryOuterwear,
}

// String implements fmt.Stringer.
func (c GarmentCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c GarmentCategory) IsValid() bool {
	for _, candidate := range validGarmentCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseGarmentCategory converts raw input into a GarmentCategory.
func ParseGarmentCategory(value string) (GarmentCategory, error) {
	for _, candidate := range validGarmentCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid garment category %q", value)
}
