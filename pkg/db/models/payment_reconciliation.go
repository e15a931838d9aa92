package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentReconciliation flags a captured payment that could not become an
// order and needs a refund or manual fulfilment.
type PaymentReconciliation struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID           string     `gorm:"column:user_id;not null"`
	GatewayOrderID   string     `gorm:"column:gateway_order_id;not null"`
	GatewayPaymentID string     `gorm:"column:gateway_payment_id;not null;uniqueIndex:ux_payment_reconciliations_payment"`
	AmountMinor      int64      `gorm:"column:amount_minor;not null"`
	Currency         string     `gorm:"column:currency;not null"`
	Reason           string     `gorm:"column:reason;not null"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt       *time.Time `gorm:"column:resolved_at"`
}

func (p *PaymentReconciliation) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
