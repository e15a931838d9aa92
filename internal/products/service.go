package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultRelatedLimit = 4

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes catalog reads, admin writes and stock checks.
type Service interface {
	List(ctx context.Context, input ListInput) (*ProductListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	Related(ctx context.Context, id uuid.UUID) ([]ProductDTO, error)
	Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	SetStock(ctx context.Context, input SetStockInput) error
	Snapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	Snapshots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Snapshot, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, lines []StockDecrement) error
}

// ListInput carries the raw browse query parameters.
type ListInput struct {
	Category    string
	SubCategory string
	Query       string
	Pagination  pagination.Params
}

// VariantInput is one color with per-size stock.
type VariantInput struct {
	Color string         `json:"color" validate:"required"`
	Sizes map[string]int `json:"sizes" validate:"required,min=1,dive,keys,required,endkeys,min=0"`
}

// CreateProductInput is the admin form for a new product.
type CreateProductInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=4000"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required"`
	SubCategory string          `json:"sub_category" validate:"required"`
	Images      []string        `json:"images" validate:"dive,required,url"`
	Variants    []VariantInput  `json:"variants" validate:"required,min=1,dive"`
}

// SetStockInput sets the absolute stock for one variant.
type SetStockInput struct {
	ProductID uuid.UUID
	Color     string
	Size      string
	Stock     int
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds the catalog service.
func NewService(repo *Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox}, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ProductListResult, error) {
	q := ListQuery{Search: input.Query, Limit: input.Pagination.Limit}
	if raw := strings.TrimSpace(input.Category); raw != "" {
		category, err := enums.ParseProductCategory(strings.ToLower(raw))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
		}
		q.Category = category
	}
	if raw := strings.TrimSpace(input.SubCategory); raw != "" {
		if q.Category == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sub_category requires category")
		}
		sub, err := enums.ParseProductSubCategory(q.Category, strings.ToLower(raw))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sub_category")
		}
		q.SubCategory = sub
	}
	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	q.Cursor = cursor

	rows, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	page, more := pagination.Trim(rows, input.Pagination.Limit)

	result := &ProductListResult{Products: make([]ProductDTO, 0, len(page))}
	for _, p := range page {
		result.Products = append(result.Products, toDTO(p))
	}
	if more && len(page) > 0 {
		last := page[len(page)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return p, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*p)
	return &dto, nil
}

func (s *service) Related(ctx context.Context, id uuid.UUID) ([]ProductDTO, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Related(ctx, p, defaultRelatedLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load related products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	category, err := enums.ParseProductCategory(strings.ToLower(strings.TrimSpace(input.Category)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
	}
	sub, err := enums.ParseProductSubCategory(category, strings.ToLower(strings.TrimSpace(input.SubCategory)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sub_category")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	if input.Price.Exponent() < -2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price supports at most two decimals")
	}

	product := &models.Product{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price,
		Category:    category,
		SubCategory: sub,
		Images:      types.StringList(input.Images),
	}
	seen := map[VariantKey]struct{}{}
	for position, variant := range input.Variants {
		for size, stock := range variant.Sizes {
			key := NewVariantKey(variant.Color, size)
			if key.Color == "" || key.Size == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant color and size are required")
			}
			if stock < 0 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
			}
			if _, dup := seen[key]; dup {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate variant %s/%s", key.Color, key.Size))
			}
			seen[key] = struct{}{}
			product.Stock = append(product.Stock, models.ProductStock{
				ProductID: product.ID,
				Color:     key.Color,
				Size:      key.Size,
				Position:  position,
				Stock:     stock,
			})
		}
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	dto := toDTO(*product)
	return &dto, nil
}

func (s *service) SetStock(ctx context.Context, input SetStockInput) error {
	if input.Stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	key := NewVariantKey(input.Color, input.Size)
	if key.Color == "" || key.Size == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "color and size are required")
	}
	p, err := s.load(ctx, input.ProductID)
	if err != nil {
		return err
	}
	position := nextPosition(p.Stock, key.Color)

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpsertStock(ctx, models.ProductStock{
			ProductID: p.ID,
			Color:     key.Color,
			Size:      key.Size,
			Position:  position,
			Stock:     input.Stock,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set stock")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductStockChanged,
			AggregateType: enums.AggregateProduct,
			AggregateID:   p.ID,
			Data: payloads.ProductStockChangedEvent{
				ProductID: p.ID,
				Color:     key.Color,
				Size:      key.Size,
				Stock:     input.Stock,
			},
		})
	})
}

// nextPosition keeps an existing color's display slot or appends a new one.
func nextPosition(rows []models.ProductStock, color string) int {
	max := -1
	for _, row := range rows {
		if row.Color == color {
			return row.Position
		}
		if row.Position > max {
			max = row.Position
		}
	}
	return max + 1
}

func (s *service) Snapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSnapshot(*p), nil
}

func (s *service) Snapshots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Snapshot, error) {
	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	out := make(map[uuid.UUID]*Snapshot, len(rows))
	for _, row := range rows {
		out[row.ID] = toSnapshot(row)
	}
	return out, nil
}

// DecrementStock applies every decrement inside tx. The first line without
// enough stock aborts with ErrInsufficientStock so the caller rolls back.
func (s *service) DecrementStock(ctx context.Context, tx *gorm.DB, lines []StockDecrement) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		key := NewVariantKey(line.Color, line.Size)
		line.Color, line.Size = key.Color, key.Size
		if err := repo.DecrementStock(ctx, line); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return fmt.Errorf("%s %s/%s: %w", line.ProductID, line.Color, line.Size, ErrInsufficientStock)
			}
			return err
		}
	}
	return nil
}
