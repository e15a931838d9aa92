package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Profile holds the contact details a signed-in shopper maintains.
type Profile struct {
	UserID    string         `gorm:"column:user_id;primaryKey"`
	Name      string         `gorm:"column:name;not null;default:''"`
	Email     string         `gorm:"column:email;not null;default:''"`
	Phone     string         `gorm:"column:phone;not null;default:''"`
	Address   string         `gorm:"column:address;not null;default:''"`
	Role      enums.UserRole `gorm:"column:role;type:text;not null;default:'user'"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
