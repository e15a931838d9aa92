package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders, the per-user order
// index and payment reconciliations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateIndexEntry(ctx context.Context, entry *models.UserOrder) error
	CreateReconciliation(ctx context.Context, rec *models.PaymentReconciliation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	FindReconciliationByPaymentID(ctx context.Context, paymentID string) (*models.PaymentReconciliation, error)
	ListByUser(ctx context.Context, userID string, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	List(ctx context.Context, status *enums.OrderStatus, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
}
