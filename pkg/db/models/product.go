package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Product is a catalog entry. Prices are in major currency units.
type Product struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Name        string                   `gorm:"column:name;not null"`
	Description string                   `gorm:"column:description;not null;default:''"`
	Price       decimal.Decimal          `gorm:"column:price;type:numeric(12,2);not null"`
	Category    enums.ProductCategory    `gorm:"column:category;type:text;not null"`
	SubCategory enums.ProductSubCategory `gorm:"column:sub_category;type:text;not null"`
	Images      types.StringList         `gorm:"column:images;type:jsonb;not null"`
	Stock       []ProductStock           `gorm:"foreignKey:ProductID;references:ID"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProductStock is the on-hand count for one color and size of a product.
type ProductStock struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Color     string    `gorm:"column:color;primaryKey"`
	Size      string    `gorm:"column:size;primaryKey"`
	Position  int       `gorm:"column:position;not null;default:0"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductStock) TableName() string {
	return "product_stock"
}
