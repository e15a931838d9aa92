package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the durable record of a paid checkout.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID           string            `gorm:"column:user_id;not null;index:ix_orders_user_created,priority:1"`
	Items            OrderItems        `gorm:"column:items;type:jsonb;not null"`
	Total            decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Currency         string            `gorm:"column:currency;not null"`
	Address          string            `gorm:"column:address;not null"`
	GatewayOrderID   string            `gorm:"column:gateway_order_id;not null"`
	GatewayPaymentID string            `gorm:"column:gateway_payment_id;not null;uniqueIndex:ux_orders_gateway_payment_id"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null"`
	CreatedAt        time.Time         `gorm:"column:created_at;index:ix_orders_user_created,priority:2"`
	UpdatedAt        time.Time         `gorm:"column:updated_at"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is a snapshot of one purchased line at checkout time.
type OrderItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// OrderItems persists as a JSON array.
type OrderItems []OrderItem

func (o OrderItems) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]OrderItem(o))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *OrderItems) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*o = OrderItems{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("order items: unsupported scan type %T", value)
	}
	var items []OrderItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("order items: %w", err)
	}
	*o = items
	return nil
}

// UserOrder is the per-user reverse index read by order history.
type UserOrder struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (UserOrder) TableName() string {
	return "user_orders"
}
