package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"gorm.io/gorm"
)

// Service manages shopper profiles keyed by the identity provider's user id.
type Service interface {
	Get(ctx context.Context, who Identity) (*ProfileDTO, error)
	Update(ctx context.Context, who Identity, input UpdateProfileInput) (*ProfileDTO, error)
	SavedAddress(ctx context.Context, userID string) (string, error)
}

type profileStore interface {
	FindByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error
}

type service struct {
	repo profileStore
}

func NewService(repo profileStore) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("profile repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) find(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return profile, nil
}

// Get returns the stored profile, or an empty one seeded from the token
// when the shopper never saved details.
func (s *service) Get(ctx context.Context, who Identity) (*ProfileDTO, error) {
	if strings.TrimSpace(who.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	profile, err := s.find(ctx, who.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return &ProfileDTO{UserID: who.UserID, Email: who.Email, Role: roleOrDefault(who.Role)}, nil
	}
	dto := FromModel(profile)
	dto.Role = roleOrDefault(who.Role)
	return dto, nil
}

func (s *service) Update(ctx context.Context, who Identity, input UpdateProfileInput) (*ProfileDTO, error) {
	if strings.TrimSpace(who.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	profile := &models.Profile{
		UserID:  who.UserID,
		Name:    strings.TrimSpace(input.Name),
		Email:   strings.TrimSpace(who.Email),
		Phone:   strings.TrimSpace(input.Phone),
		Address: strings.TrimSpace(input.Address),
		Role:    roleOrDefault(who.Role),
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save profile")
	}
	stored, err := s.find(ctx, who.UserID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = profile
	}
	return FromModel(stored), nil
}

// SavedAddress returns the delivery address on file, or "" when none.
func (s *service) SavedAddress(ctx context.Context, userID string) (string, error) {
	profile, err := s.find(ctx, userID)
	if err != nil || profile == nil {
		return "", err
	}
	return profile.Address, nil
}

func roleOrDefault(role enums.UserRole) enums.UserRole {
	if role.IsValid() {
		return role
	}
	return enums.UserRoleUser
}
