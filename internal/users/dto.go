package users

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ProfileDTO is the transport shape of a shopper profile.
type ProfileDTO struct {
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Address   string         `json:"address"`
	Role      enums.UserRole `json:"role"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

// Identity is what the session token says about the caller.
type Identity struct {
	UserID string
	Email  string
	Role   enums.UserRole
}

// UpdateProfileInput replaces the editable profile fields.
type UpdateProfileInput struct {
	Name    string `json:"name" validate:"max=120"`
	Phone   string `json:"phone" validate:"omitempty,min=7,max=20"`
	Address string `json:"address" validate:"max=500"`
}

func FromModel(p *models.Profile) *ProfileDTO {
	if p == nil {
		return nil
	}
	updated := p.UpdatedAt
	return &ProfileDTO{
		UserID:    p.UserID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		Address:   p.Address,
		Role:      p.Role,
		UpdatedAt: &updated,
	}
}
