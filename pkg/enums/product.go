package enums

import "fmt"

// ProductCategory is the top-level catalog department.
type ProductCategory string

const (
	ProductCategoryMen   ProductCategory = "men"
	ProductCategoryWomen ProductCategory = "women"
	ProductCategoryKids  ProductCategory = "kids"
)

var validProductCategories = []ProductCategory{
	ProductCategoryMen,
	ProductCategoryWomen,
	ProductCategoryKids,
}

// String implements fmt.Stringer.
func (c ProductCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ProductCategory.
func (c ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	for _, candidate := range validProductCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}

// ProductSubCategory narrows a category into a garment type.
type ProductSubCategory string

const (
	ProductSubCategoryTShirt ProductSubCategory = "tshirt"
	ProductSubCategoryShirt  ProductSubCategory = "shirt"
	ProductSubCategoryJeans  ProductSubCategory = "jeans"
	ProductSubCategoryDress  ProductSubCategory = "dress"
	ProductSubCategoryTop    ProductSubCategory = "top"
	ProductSubCategoryShorts ProductSubCategory = "shorts"
)

var subCategoriesByCategory = map[ProductCategory][]ProductSubCategory{
	ProductCategoryMen:   {ProductSubCategoryTShirt, ProductSubCategoryShirt, ProductSubCategoryJeans},
	ProductCategoryWomen: {ProductSubCategoryDress, ProductSubCategoryTop, ProductSubCategoryJeans},
	ProductCategoryKids:  {ProductSubCategoryTShirt, ProductSubCategoryShorts},
}

func (s ProductSubCategory) String() string {
	return string(s)
}

// BelongsTo reports whether the sub-category is offered under the category.
func (s ProductSubCategory) BelongsTo(category ProductCategory) bool {
	for _, candidate := range subCategoriesByCategory[category] {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProductSubCategory validates the sub-category against its parent category.
func ParseProductSubCategory(category ProductCategory, value string) (ProductSubCategory, error) {
	sub := ProductSubCategory(value)
	if !sub.BelongsTo(category) {
		return "", fmt.Errorf("invalid sub category %q for %s", value, category)
	}
	return sub, nil
}
