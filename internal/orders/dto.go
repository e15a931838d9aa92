package orders

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is one purchased line as captured at checkout.
type Item struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// OrderDTO is the order record served to shoppers and admins.
type OrderDTO struct {
	ID               uuid.UUID         `json:"id"`
	UserID           string            `json:"user_id"`
	Items            []Item            `json:"items"`
	Total            decimal.Decimal   `json:"total"`
	Currency         string            `json:"currency"`
	Address          string            `json:"address"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayPaymentID string            `json:"payment_id"`
	Status           enums.OrderStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ReconciliationDTO describes a captured payment awaiting manual handling.
type ReconciliationDTO struct {
	ID               uuid.UUID `json:"id"`
	UserID           string    `json:"user_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	AmountMinor      int64     `json:"amount_minor"`
	Currency         string    `json:"currency"`
	Reason           string    `json:"reason"`
	CreatedAt        time.Time `json:"created_at"`
}

func toOrderDTO(o models.Order) OrderDTO {
	items := make([]Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, Item(it))
	}
	return OrderDTO{
		ID:               o.ID,
		UserID:           o.UserID,
		Items:            items,
		Total:            o.Total,
		Currency:         o.Currency,
		Address:          o.Address,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		Status:           o.Status,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toModelItems(items []Item) models.OrderItems {
	out := make(models.OrderItems, 0, len(items))
	for _, it := range items {
		out = append(out, models.OrderItem(it))
	}
	return out
}

func toReconciliationDTO(r models.PaymentReconciliation) ReconciliationDTO {
	return ReconciliationDTO{
		ID:               r.ID,
		UserID:           r.UserID,
		GatewayOrderID:   r.GatewayOrderID,
		GatewayPaymentID: r.GatewayPaymentID,
		AmountMinor:      r.AmountMinor,
		Currency:         r.Currency,
		Reason:           r.Reason,
		CreatedAt:        r.CreatedAt,
	}
}
