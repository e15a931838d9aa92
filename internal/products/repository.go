package product

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientStock is returned when a conditional decrement matches no row.
var ErrInsufficientStock = errors.New("insufficient stock")

// ListQuery filters the catalog browse query.
type ListQuery struct {
	Category    enums.ProductCategory
	SubCategory enums.ProductSubCategory
	Search      string
	Limit       int
	Cursor      *pagination.Cursor
}

// Repository persists products and their stock rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) withStock(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Stock", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC").Order("color ASC").Order("size ASC")
	})
}

// Create inserts the product together with its stock rows.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// FindByID loads a product with its stock rows.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.withStock(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads every listed product with stock. Missing ids are skipped.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Product
	err := r.withStock(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

// List returns products newest first, fetching one extra row for paging.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]models.Product, error) {
	query := r.withStock(ctx).Model(&models.Product{})
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.SubCategory != "" {
		query = query.Where("sub_category = ?", q.SubCategory)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	if q.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", q.Cursor.CreatedAt, q.Cursor.CreatedAt, q.Cursor.ID)
	}
	var rows []models.Product
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(q.Limit)).
		Find(&rows).Error
	return rows, err
}

// Related returns other products in the same category.
func (r *Repository) Related(ctx context.Context, product *models.Product, limit int) ([]models.Product, error) {
	var rows []models.Product
	err := r.withStock(ctx).
		Where("category = ? AND id <> ?", product.Category, product.ID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// UpsertStock sets the absolute stock for a variant, creating the row if needed.
func (r *Repository) UpsertStock(ctx context.Context, row models.ProductStock) error {
	row.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "color"}, {Name: "size"}},
		DoUpdates: clause.AssignmentColumns([]string{"stock", "updated_at"}),
	}).Create(&row).Error
}

// DecrementStock subtracts qty only when enough stock remains.
func (r *Repository) DecrementStock(ctx context.Context, line StockDecrement) error {
	res := r.db.WithContext(ctx).
		Model(&models.ProductStock{}).
		Where("product_id = ? AND color = ? AND size = ? AND stock >= ?", line.ProductID, line.Color, line.Size, line.Quantity).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", line.Quantity),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrInsufficientStock
	}
	return nil
}
