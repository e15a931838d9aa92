package cart

import (
	"context"
	"fmt"
	"strings"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Owner is the session context a cart belongs to. A signed-in user always
// takes precedence over the guest marker.
type Owner struct {
	UserID  string
	GuestID string
}

type catalog interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*product.Snapshot, error)
	Snapshots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*product.Snapshot, error)
}

// Service exposes cart operations for both signed-in users and guests.
type Service interface {
	Get(ctx context.Context, owner Owner) (*CartDTO, error)
	Lines(ctx context.Context, owner Owner) (Lines, error)
	AddItem(ctx context.Context, owner Owner, input AddItemInput) (*MutationResult, error)
	SetQuantity(ctx context.Context, owner Owner, input SetQuantityInput) (*MutationResult, error)
	RemoveItem(ctx context.Context, owner Owner, input KeyInput) (*CartDTO, error)
	Clear(ctx context.Context, owner Owner) error
	MergeOnLogin(ctx context.Context, userID, guestID string) (*CartDTO, error)
}

// KeyInput addresses an existing line.
type KeyInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Color     string    `json:"color" validate:"required"`
	Size      string    `json:"size" validate:"required"`
}

// AddItemInput adds quantity units of one variant.
type AddItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
	Quantity  int       `json:"quantity"`
}

// SetQuantityInput replaces the quantity of one line.
type SetQuantityInput struct {
	KeyInput
	Quantity int `json:"quantity"`
}

// LineDTO is one line as served to clients.
type LineDTO struct {
	Line
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartDTO is the cart as served to clients.
type CartDTO struct {
	Items    []LineDTO       `json:"items"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// MutationResult reports the cart after a quantity change and whether the
// requested amount was reduced to fit stock.
type MutationResult struct {
	Cart      *CartDTO `json:"cart"`
	Outcome   Outcome  `json:"outcome"`
	Available int      `json:"available,omitempty"`
	Message   string   `json:"message,omitempty"`
}

type service struct {
	users   Store
	guests  Store
	catalog catalog
	logg    *logger.Logger
}

// NewService wires the cart service.
func NewService(users Store, guests Store, catalog catalog, logg *logger.Logger) (Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user cart store required")
	}
	if guests == nil {
		return nil, fmt.Errorf("guest cart store required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{users: users, guests: guests, catalog: catalog, logg: logg}, nil
}

func (s *service) resolve(owner Owner) (Store, string, error) {
	if id := strings.TrimSpace(owner.UserID); id != "" {
		return s.users, id, nil
	}
	if id := strings.TrimSpace(owner.GuestID); id != "" {
		return s.guests, id, nil
	}
	return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session required")
}

func (s *service) load(ctx context.Context, owner Owner) (Store, string, Lines, error) {
	store, id, err := s.resolve(owner)
	if err != nil {
		return nil, "", nil, err
	}
	lines, err := store.Load(ctx, id)
	if err != nil {
		return nil, "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart unavailable")
	}
	return store, id, lines, nil
}

// persist writes lines to the active store. Failures are logged only; the
// returned cart stays authoritative for this request.
func (s *service) persist(ctx context.Context, store Store, id string, lines Lines) {
	if err := store.Save(ctx, id, lines); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "cart_owner", id), "persist cart", err)
	}
}

func (s *service) Get(ctx context.Context, owner Owner) (*CartDTO, error) {
	lines, err := s.Lines(ctx, owner)
	if err != nil {
		return nil, err
	}
	return toCartDTO(lines), nil
}

func (s *service) Lines(ctx context.Context, owner Owner) (Lines, error) {
	_, _, lines, err := s.load(ctx, owner)
	return lines, err
}

func (s *service) stockFor(ctx context.Context, productID uuid.UUID, color, size string) (*product.Snapshot, int, error) {
	snap, err := s.catalog.Snapshot(ctx, productID)
	if err != nil {
		return nil, 0, err
	}
	return snap, snap.StockFor(color, size), nil
}

func (s *service) AddItem(ctx context.Context, owner Owner, input AddItemInput) (*MutationResult, error) {
	key := NewKey(input.ProductID, input.Color, input.Size)
	if !key.Valid() {
		s.logg.Warn(ctx, "add to cart without color or size")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "select a color and size")
	}
	if input.Quantity <= 0 {
		s.logg.Warn(ctx, "add to cart with non-positive quantity")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	store, id, lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	snap, stock, err := s.stockFor(ctx, key.ProductID, key.Color, key.Size)
	if err != nil {
		return nil, err
	}
	if stock <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "out of stock")
	}

	next, res := lines.Add(Line{
		ProductID: key.ProductID,
		Name:      snap.Name,
		Price:     snap.Price,
		Image:     snap.Image,
		Color:     key.Color,
		Size:      key.Size,
		Quantity:  input.Quantity,
	}, stock)
	if res.Outcome != OutcomeUnchanged {
		s.persist(ctx, store, id, next)
	}
	return mutation(next, res.Outcome, stock), nil
}

func (s *service) SetQuantity(ctx context.Context, owner Owner, input SetQuantityInput) (*MutationResult, error) {
	store, id, lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	key := NewKey(input.ProductID, input.Color, input.Size)
	current, ok := lines.Find(key)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	if input.Quantity <= 0 {
		return mutation(lines, OutcomeUnchanged, 0), nil
	}

	_, stock, err := s.stockFor(ctx, key.ProductID, key.Color, key.Size)
	if err != nil {
		return nil, err
	}
	if stock <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "out of stock")
	}

	next, granted, _ := lines.SetQuantity(key, input.Quantity, stock)
	outcome := OutcomeAdded
	switch {
	case granted < input.Quantity:
		outcome = OutcomeClamped
	case granted == current.Quantity:
		outcome = OutcomeUnchanged
	}
	if granted != current.Quantity {
		s.persist(ctx, store, id, next)
	}
	return mutation(next, outcome, stock), nil
}

func (s *service) RemoveItem(ctx context.Context, owner Owner, input KeyInput) (*CartDTO, error) {
	store, id, lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	next := lines.Remove(NewKey(input.ProductID, input.Color, input.Size))
	if len(next) != len(lines) {
		s.persist(ctx, store, id, next)
	}
	return toCartDTO(next), nil
}

func (s *service) Clear(ctx context.Context, owner Owner) error {
	store, id, err := s.resolve(owner)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, id); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "cart_owner", id), "clear cart", err)
	}
	return nil
}

// MergeOnLogin folds the guest cart into the user's cart and discards the
// guest cart. Stock is re-read for every product on either side.
func (s *service) MergeOnLogin(ctx context.Context, userID, guestID string) (*CartDTO, error) {
	userID = strings.TrimSpace(userID)
	guestID = strings.TrimSpace(guestID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	remote, err := s.users.Load(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart unavailable")
	}
	if guestID == "" {
		return toCartDTO(remote), nil
	}
	local, err := s.guests.Load(ctx, guestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart unavailable")
	}
	if len(local) == 0 {
		return toCartDTO(remote), nil
	}

	snaps, err := s.catalog.Snapshots(ctx, productIDs(remote, local))
	if err != nil {
		return nil, err
	}
	merged := Merge(remote, local, func(key Key) int {
		return snaps[key.ProductID].StockFor(key.Color, key.Size)
	})

	s.persist(ctx, s.users, userID, merged)
	if err := s.guests.Delete(ctx, guestID); err != nil {
		s.logg.Error(s.logg.WithGuestID(ctx, guestID), "discard guest cart", err)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"guest_id":    guestID,
		"guest_lines": len(local),
		"cart_lines":  len(merged),
	}), "guest cart merged")
	return toCartDTO(merged), nil
}

func productIDs(sets ...Lines) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	ids := []uuid.UUID{}
	for _, lines := range sets {
		for _, line := range lines {
			if _, ok := seen[line.ProductID]; ok {
				continue
			}
			seen[line.ProductID] = struct{}{}
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}

func mutation(lines Lines, outcome Outcome, available int) *MutationResult {
	res := &MutationResult{Cart: toCartDTO(lines), Outcome: outcome}
	if outcome == OutcomeClamped {
		res.Available = available
		res.Message = fmt.Sprintf("only %d available", available)
	}
	return res
}

func toCartDTO(lines Lines) *CartDTO {
	items := make([]LineDTO, 0, len(lines))
	for _, line := range lines {
		items = append(items, LineDTO{Line: line, LineTotal: line.Total()})
	}
	return &CartDTO{Items: items, Count: lines.Count(), Subtotal: lines.Subtotal()}
}
