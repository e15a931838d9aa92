package product

import (
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VariantDTO is one color with its per-size stock.
type VariantDTO struct {
	Color string         `json:"color"`
	Sizes map[string]int `json:"sizes"`
}

// ProductDTO is the catalog representation served to clients.
type ProductDTO struct {
	ID          uuid.UUID                `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Price       decimal.Decimal          `json:"price"`
	Category    enums.ProductCategory    `json:"category"`
	SubCategory enums.ProductSubCategory `json:"sub_category"`
	Images      []string                 `json:"images"`
	Variants    []VariantDTO             `json:"variants"`
	InStock     bool                     `json:"in_stock"`
	CreatedAt   time.Time                `json:"created_at"`
}

// ProductListResult is one page of catalog entries.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// VariantKey addresses one (color, size) stock row.
type VariantKey struct {
	Color string
	Size  string
}

// NewVariantKey normalizes color and size labels.
func NewVariantKey(color, size string) VariantKey {
	return VariantKey{Color: NormalizeLabel(color), Size: NormalizeLabel(size)}
}

// NormalizeLabel trims and upper-cases a color or size label.
func NormalizeLabel(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// Snapshot is a point-in-time view of a product's price and stock.
type Snapshot struct {
	ProductID uuid.UUID
	Name      string
	Price     decimal.Decimal
	Image     string
	Stock     map[VariantKey]int
}

// StockFor returns the recorded stock for a variant, or 0 when unknown.
func (s *Snapshot) StockFor(color, size string) int {
	if s == nil {
		return 0
	}
	return s.Stock[NewVariantKey(color, size)]
}

// StockDecrement is one line of a conditional stock decrement.
type StockDecrement struct {
	ProductID uuid.UUID
	Color     string
	Size      string
	Quantity  int
}

func toSnapshot(p models.Product) *Snapshot {
	stock := make(map[VariantKey]int, len(p.Stock))
	for _, row := range p.Stock {
		stock[NewVariantKey(row.Color, row.Size)] = row.Stock
	}
	return &Snapshot{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Images.First(),
		Stock:     stock,
	}
}

func toDTO(p models.Product) ProductDTO {
	rows := append([]models.ProductStock(nil), p.Stock...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Position != rows[j].Position {
			return rows[i].Position < rows[j].Position
		}
		return rows[i].Color < rows[j].Color
	})

	variants := []VariantDTO{}
	index := map[string]int{}
	inStock := false
	for _, row := range rows {
		i, ok := index[row.Color]
		if !ok {
			i = len(variants)
			index[row.Color] = i
			variants = append(variants, VariantDTO{Color: row.Color, Sizes: map[string]int{}})
		}
		variants[i].Sizes[row.Size] = row.Stock
		if row.Stock > 0 {
			inStock = true
		}
	}

	images := []string(p.Images)
	if images == nil {
		images = []string{}
	}

	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		SubCategory: p.SubCategory,
		Images:      images,
		Variants:    variants,
		InStock:     inStock,
		CreatedAt:   p.CreatedAt,
	}
}
