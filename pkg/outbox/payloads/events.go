package payloads

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is the snapshot of one purchased line carried by order events.
type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderPaidEvent is emitted when a verified payment becomes an order record.
type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	UserID           string          `json:"user_id"`
	Total            decimal.Decimal `json:"total"`
	Currency         string          `json:"currency"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
	Lines            []OrderLine     `json:"lines"`
	PaidAt           time.Time       `json:"paid_at"`
}

// OrderStatusChangedEvent is emitted on every administrative status change.
type OrderStatusChangedEvent struct {
	OrderID  uuid.UUID         `json:"order_id"`
	UserID   string            `json:"user_id"`
	Previous enums.OrderStatus `json:"previous"`
	Status   enums.OrderStatus `json:"status"`
}

// PaymentReconciliationRequiredEvent flags a captured payment that could not
// be turned into an order.
type PaymentReconciliationRequiredEvent struct {
	ReconciliationID uuid.UUID `json:"reconciliation_id"`
	UserID           string    `json:"user_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	AmountMinor      int64     `json:"amount_minor"`
	Currency         string    `json:"currency"`
	Reason           string    `json:"reason"`
}

// ProductStockChangedEvent is emitted when an admin sets a variant's stock.
type ProductStockChangedEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
	Stock     int       `json:"stock"`
}
