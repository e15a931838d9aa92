package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const paymentIDConstraint = "ux_orders_gateway_payment_id"

// ErrStockExhausted wraps product.ErrInsufficientStock when an order could
// not be placed because a line sold out.
var ErrStockExhausted = product.ErrInsufficientStock

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockDecrementer interface {
	DecrementStock(ctx context.Context, tx *gorm.DB, lines []product.StockDecrement) error
}

// Service defines order placement, history and administration.
type Service interface {
	Place(ctx context.Context, input PlaceInput) (*OrderDTO, error)
	FlagReconciliation(ctx context.Context, input ReconciliationInput) (*ReconciliationDTO, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*OrderDTO, error)
	GetForUser(ctx context.Context, userID string, id uuid.UUID) (*OrderDTO, error)
	ListForUser(ctx context.Context, userID string, params pagination.Params) (*OrderList, error)
	List(ctx context.Context, input ListInput) (*OrderList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error)
}

// PlaceInput carries a verified payment and the lines it paid for.
type PlaceInput struct {
	UserID           string
	Items            []Item
	Total            decimal.Decimal
	Currency         string
	Address          string
	GatewayOrderID   string
	GatewayPaymentID string
}

// ReconciliationInput describes a captured payment that could not be honored.
type ReconciliationInput struct {
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	AmountMinor      int64
	Currency         string
	Reason           string
}

// ListInput filters the admin order list.
type ListInput struct {
	Status     string
	Pagination pagination.Params
}

// UpdateStatusInput is an admin delivery status change.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  string
	Actor   *outbox.ActorRef
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	stock  stockDecrementer
	now    func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, stock stockDecrementer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock decrementer required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		stock:  stock,
		now:    time.Now,
	}, nil
}

func validatePlace(input PlaceInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(input.GatewayOrderID) == "" || strings.TrimSpace(input.GatewayPaymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway order and payment ids are required")
	}
	if strings.TrimSpace(input.Address) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}
	sum := decimal.Zero
	for _, it := range input.Items {
		if it.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !sum.Equal(input.Total) {
		return pkgerrors.New(pkgerrors.CodeValidation, "order total does not match items")
	}
	return nil
}

// Place persists a paid order in one transaction: conditional stock
// decrement for every line, the order row, the user index entry and the
// order_paid event. A payment id that already has an order returns it.
func (s *service) Place(ctx context.Context, input PlaceInput) (*OrderDTO, error) {
	if err := validatePlace(input); err != nil {
		return nil, err
	}
	if existing, err := s.GetByPaymentID(ctx, input.GatewayPaymentID); err == nil {
		return existing, nil
	} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:               uuid.New(),
		UserID:           input.UserID,
		Items:            toModelItems(input.Items),
		Total:            input.Total,
		Currency:         input.Currency,
		Address:          strings.TrimSpace(input.Address),
		GatewayOrderID:   input.GatewayOrderID,
		GatewayPaymentID: input.GatewayPaymentID,
		Status:           enums.OrderStatusPaid,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		decrements := make([]product.StockDecrement, 0, len(input.Items))
		for _, it := range input.Items {
			decrements = append(decrements, product.StockDecrement{
				ProductID: it.ProductID,
				Color:     it.Color,
				Size:      it.Size,
				Quantity:  it.Quantity,
			})
		}
		if err := s.stock.DecrementStock(ctx, tx, decrements); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := repo.CreateIndexEntry(ctx, &models.UserOrder{UserID: order.UserID, OrderID: order.ID, CreatedAt: now}); err != nil {
			return err
		}

		lines := make([]payloads.OrderLine, 0, len(input.Items))
		for _, it := range input.Items {
			lines = append(lines, payloads.OrderLine{
				ProductID: it.ProductID,
				Color:     it.Color,
				Size:      it.Size,
				Quantity:  it.Quantity,
				Price:     it.Price,
			})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.UserID},
			OccurredAt:    now,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				UserID:           order.UserID,
				Total:            order.Total,
				Currency:         order.Currency,
				GatewayOrderID:   order.GatewayOrderID,
				GatewayPaymentID: order.GatewayPaymentID,
				Lines:            lines,
				PaidAt:           now,
			},
		})
	})
	if err != nil {
		if errors.Is(err, product.ErrInsufficientStock) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "an item in your cart is no longer available")
		}
		if db.IsUniqueViolation(err, paymentIDConstraint) {
			return s.GetByPaymentID(ctx, input.GatewayPaymentID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
	}

	dto := toOrderDTO(*order)
	return &dto, nil
}

// FlagReconciliation records a captured payment for manual refund or
// fulfilment and emits payment_reconciliation_required.
func (s *service) FlagReconciliation(ctx context.Context, input ReconciliationInput) (*ReconciliationDTO, error) {
	if strings.TrimSpace(input.GatewayPaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment id is required")
	}

	rec := &models.PaymentReconciliation{
		ID:               uuid.New(),
		UserID:           input.UserID,
		GatewayOrderID:   input.GatewayOrderID,
		GatewayPaymentID: input.GatewayPaymentID,
		AmountMinor:      input.AmountMinor,
		Currency:         input.Currency,
		Reason:           input.Reason,
		CreatedAt:        s.now().UTC(),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateReconciliation(ctx, rec); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReconciliationRequired,
			AggregateType: enums.AggregatePaymentReconciliation,
			AggregateID:   rec.ID,
			Actor:         &outbox.ActorRef{UserID: rec.UserID},
			Data: payloads.PaymentReconciliationRequiredEvent{
				ReconciliationID: rec.ID,
				UserID:           rec.UserID,
				GatewayOrderID:   rec.GatewayOrderID,
				GatewayPaymentID: rec.GatewayPaymentID,
				AmountMinor:      rec.AmountMinor,
				Currency:         rec.Currency,
				Reason:           rec.Reason,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "ux_payment_reconciliations_payment") {
			existing, findErr := s.repo.FindReconciliationByPaymentID(ctx, input.GatewayPaymentID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load reconciliation")
			}
			dto := toReconciliationDTO(*existing)
			return &dto, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reconciliation")
	}
	dto := toReconciliationDTO(*rec)
	return &dto, nil
}

func (s *service) GetByPaymentID(ctx context.Context, paymentID string) (*OrderDTO, error) {
	order, err := s.repo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	dto := toOrderDTO(*order)
	return &dto, nil
}

// GetForUser returns the order only to its owner. Other users see not found.
func (s *service) GetForUser(ctx context.Context, userID string, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := toOrderDTO(*order)
	return &dto, nil
}

func (s *service) ListForUser(ctx context.Context, userID string, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return toOrderList(rows, params.Limit), nil
}

func (s *service) List(ctx context.Context, input ListInput) (*OrderList, error) {
	var status *enums.OrderStatus
	if strings.TrimSpace(input.Status) != "" {
		parsed, err := enums.ParseOrderStatus(strings.TrimSpace(input.Status))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		status = &parsed
	}
	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, status, pagination.LimitWithBuffer(input.Pagination.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return toOrderList(rows, input.Pagination.Limit), nil
}

// UpdateStatus applies an admin delivery status change and emits
// order_status_changed in the same transaction.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error) {
	next, err := enums.ParseOrderStatus(strings.TrimSpace(input.Status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
	}

	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapLookupError(err)
		}
		if order.Status.IsTerminal() || !order.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", order.Status, next)).
				WithDetails(map[string]any{"current_status": order.Status, "requested_status": next})
		}

		now := s.now().UTC()
		ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, next, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
		}

		previous := order.Status
		order.Status = next
		order.UpdatedAt = now
		updated = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor,
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:  order.ID,
				UserID:   order.UserID,
				Previous: previous,
				Status:   next,
			},
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	dto := toOrderDTO(*updated)
	return &dto, nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func toOrderList(rows []models.Order, limit int) *OrderList {
	page, more := pagination.Trim(rows, limit)
	out := &OrderList{Orders: make([]OrderDTO, 0, len(page))}
	for _, row := range page {
		out.Orders = append(out.Orders, toOrderDTO(row))
	}
	if more && len(page) > 0 {
		last := page[len(page)-1]
		out.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return out
}
