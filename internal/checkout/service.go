package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	reasonGatewayFailed  = "payment could not be started"
	reasonSignature      = "payment signature mismatch"
	reasonVerifyFailed   = "payment verification unavailable"
	reasonCancelled      = "payment was not completed"
	reasonStockConflict  = "an item sold out before your payment completed; the payment has been flagged for refund"
	reasonPersistFailed  = "order could not be saved; please confirm again"
	outcomeComplete      = "complete"
	outcomeValidation    = "validation_failed"
	outcomeStockExceeded = "stock_exceeded"
	outcomeGatewayFailed = "gateway_failed"
	outcomeSignature     = "signature_mismatch"
	outcomeCancelled     = "cancelled"
	outcomeStockConflict = "stock_conflict"
	outcomePersistFailed = "persist_failed"
	outcomeVerifyFailed  = "verification_unavailable"
	defaultLockKeyPrefix = "checkout:lock:"
	busyMessage          = "a checkout is already in progress"
)

type cartReader interface {
	Lines(ctx context.Context, owner cart.Owner) (cart.Lines, error)
	Clear(ctx context.Context, owner cart.Owner) error
}

type catalog interface {
	Snapshots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*product.Snapshot, error)
}

type addressBook interface {
	SavedAddress(ctx context.Context, userID string) (string, error)
}

type paymentService interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, notes map[string]string) (*razorpay.Order, error)
	Verify(ctx context.Context, c payments.Confirmation) (bool, error)
	PublicKeyID() string
	Currency() string
}

type orderService interface {
	Place(ctx context.Context, input orders.PlaceInput) (*orders.OrderDTO, error)
	FlagReconciliation(ctx context.Context, input orders.ReconciliationInput) (*orders.ReconciliationDTO, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*orders.OrderDTO, error)
}

type lockFactory interface {
	NewLock(key string) (redis.Lock, error)
}

type checkoutMetrics interface {
	ObserveState(state string)
	ObserveOutcome(outcome string)
	IncReconciliation()
}

// Service drives a user's checkout from cart to paid order.
type Service interface {
	Start(ctx context.Context, userID string, input StartInput) (*StartResult, error)
	Confirm(ctx context.Context, userID string, input ConfirmInput) (*ConfirmResult, error)
	Fail(ctx context.Context, userID string, input FailInput) (*Attempt, error)
	Status(ctx context.Context, userID string) (*Attempt, error)
}

// StartInput optionally overrides the saved delivery address.
type StartInput struct {
	Address string `json:"address" validate:"max=500"`
}

// StartResult is what the client needs to open the gateway checkout widget.
type StartResult struct {
	AttemptID      uuid.UUID           `json:"attempt_id"`
	State          enums.CheckoutState `json:"state"`
	GatewayOrderID string              `json:"gateway_order_id"`
	Amount         int64               `json:"amount"`
	Currency       string              `json:"currency"`
	Total          decimal.Decimal     `json:"total"`
	KeyID          string              `json:"key_id"`
}

// ConfirmInput is the gateway widget's success callback.
type ConfirmInput struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

// ConfirmResult carries the persisted order.
type ConfirmResult struct {
	State enums.CheckoutState `json:"state"`
	Order *orders.OrderDTO    `json:"order"`
}

// FailInput is the gateway widget's failure callback.
type FailInput struct {
	OrderID string `json:"razorpay_order_id"`
	Reason  string `json:"reason" validate:"max=500"`
}

type Params struct {
	Carts    cartReader
	Catalog  catalog
	Profiles addressBook
	Payments paymentService
	Orders   orderService
	Attempts AttemptStore
	Locks    lockFactory
	LockKey  func(userID string) string
	Metrics  checkoutMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	carts    cartReader
	catalog  catalog
	profiles addressBook
	payments paymentService
	orders   orderService
	attempts AttemptStore
	locks    lockFactory
	lockKey  func(userID string) string
	metrics  checkoutMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the checkout orchestrator.
func NewService(p Params) (Service, error) {
	switch {
	case p.Carts == nil:
		return nil, fmt.Errorf("cart service required")
	case p.Catalog == nil:
		return nil, fmt.Errorf("catalog required")
	case p.Profiles == nil:
		return nil, fmt.Errorf("profile service required")
	case p.Payments == nil:
		return nil, fmt.Errorf("payments service required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case p.Attempts == nil:
		return nil, fmt.Errorf("attempt store required")
	case p.Locks == nil:
		return nil, fmt.Errorf("lock factory required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	lockKey := p.LockKey
	if lockKey == nil {
		lockKey = func(userID string) string { return defaultLockKeyPrefix + userID }
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		carts:    p.Carts,
		catalog:  p.Catalog,
		profiles: p.Profiles,
		payments: p.Payments,
		orders:   p.Orders,
		attempts: p.Attempts,
		locks:    p.Locks,
		lockKey:  lockKey,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      now,
	}, nil
}

// withLock runs fn while holding the user's checkout lock. A second call
// while one is in flight fails with a conflict instead of waiting.
func (s *service) withLock(ctx context.Context, userID string, fn func() error) error {
	lock, err := s.locks.NewLock(s.lockKey(userID))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout lock unavailable")
	}
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout lock unavailable")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, busyMessage)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release checkout lock", err)
		}
	}()
	return fn()
}

func (s *service) load(ctx context.Context, userID string) (*Attempt, error) {
	attempt, err := s.attempts.Load(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout state unavailable")
	}
	return attempt, nil
}

func (s *service) transition(ctx context.Context, attempt *Attempt, state enums.CheckoutState, reason string) error {
	attempt.State = state
	attempt.Reason = reason
	attempt.UpdatedAt = s.now().UTC()
	if s.metrics != nil {
		s.metrics.ObserveState(string(state))
	}
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout state unavailable")
	}
	return nil
}

// settle records a failure state; save errors are logged because the
// caller is already returning the original failure.
func (s *service) settle(ctx context.Context, attempt *Attempt, state enums.CheckoutState, reason, outcome string) {
	if err := s.transition(ctx, attempt, state, reason); err != nil {
		s.logg.Error(ctx, "persist checkout attempt", err)
	}
	s.outcome(outcome)
}

func (s *service) outcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOutcome(outcome)
	}
}

func (s *service) Start(ctx context.Context, userID string, input StartInput) (*StartResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	ctx = s.logg.WithUserID(ctx, userID)

	var result *StartResult
	err := s.withLock(ctx, userID, func() error {
		current, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		if current != nil && !current.State.CanStart() {
			return pkgerrors.New(pkgerrors.CodeConflict, busyMessage)
		}

		now := s.now().UTC()
		attempt := &Attempt{ID: uuid.New(), UserID: userID, Total: decimal.Zero, CreatedAt: now}
		ctx := s.logg.WithField(ctx, "checkout_attempt_id", attempt.ID.String())
		if err := s.transition(ctx, attempt, enums.CheckoutStateValidating, ""); err != nil {
			return err
		}

		lines, snaps, address, err := s.validate(ctx, userID, input)
		if err != nil {
			outcome := outcomeValidation
			if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
				outcome = outcomeStockExceeded
			}
			s.settle(ctx, attempt, enums.CheckoutStateIdle, publicReason(err, "checkout could not be validated"), outcome)
			return err
		}

		items, total := helpers.BuildItems(lines, snaps)
		attempt.Address = address
		attempt.Lines = items
		attempt.Total = total
		if err := s.transition(ctx, attempt, enums.CheckoutStateCreatingGatewayOrder, ""); err != nil {
			return err
		}

		gatewayOrder, err := s.payments.CreateOrder(ctx, total, map[string]string{
			"attempt_id": attempt.ID.String(),
			"user_id":    userID,
		})
		if err != nil {
			s.settle(ctx, attempt, enums.CheckoutStateIdle, publicReason(err, reasonGatewayFailed), outcomeGatewayFailed)
			return err
		}

		attempt.GatewayOrderID = gatewayOrder.ID
		attempt.AmountMinor = gatewayOrder.AmountMinor
		attempt.Currency = gatewayOrder.Currency
		if err := s.transition(ctx, attempt, enums.CheckoutStateAwaitingGatewayConfirmation, ""); err != nil {
			return err
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"gateway_order_id": gatewayOrder.ID,
			"amount_minor":     gatewayOrder.AmountMinor,
		}), "checkout awaiting gateway confirmation")

		result = &StartResult{
			AttemptID:      attempt.ID,
			State:          attempt.State,
			GatewayOrderID: gatewayOrder.ID,
			Amount:         gatewayOrder.AmountMinor,
			Currency:       gatewayOrder.Currency,
			Total:          total,
			KeyID:          s.payments.PublicKeyID(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validate needs an address, a non-empty cart and enough stock for every
// line as of now. Only the stock re-read touches the network.
func (s *service) validate(ctx context.Context, userID string, input StartInput) (cart.Lines, map[uuid.UUID]*product.Snapshot, string, error) {
	saved := ""
	if strings.TrimSpace(input.Address) == "" {
		var err error
		if saved, err = s.profiles.SavedAddress(ctx, userID); err != nil {
			return nil, nil, "", err
		}
	}
	address, err := helpers.ResolveAddress(input.Address, saved)
	if err != nil {
		return nil, nil, "", err
	}

	lines, err := s.carts.Lines(ctx, cart.Owner{UserID: userID})
	if err != nil {
		return nil, nil, "", err
	}
	if len(lines) == 0 {
		return nil, nil, "", pkgerrors.New(pkgerrors.CodeValidation, "your cart is empty")
	}

	snaps, err := s.catalog.Snapshots(ctx, helpers.ProductIDs(lines))
	if err != nil {
		return nil, nil, "", err
	}
	if err := helpers.StockError(helpers.CheckStock(lines, snaps)); err != nil {
		return nil, nil, "", err
	}
	return lines, snaps, address, nil
}

func (s *service) Confirm(ctx context.Context, userID string, input ConfirmInput) (*ConfirmResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	ctx = s.logg.WithUserID(ctx, userID)
	confirmation := payments.Confirmation{
		OrderID:   strings.TrimSpace(input.OrderID),
		PaymentID: strings.TrimSpace(input.PaymentID),
		Signature: strings.TrimSpace(input.Signature),
	}
	if !confirmation.Complete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id, payment id and signature are required")
	}

	var result *ConfirmResult
	err := s.withLock(ctx, userID, func() error {
		attempt, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		if attempt == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no checkout in progress")
		}
		ctx := s.logg.WithFields(ctx, map[string]any{
			"checkout_attempt_id": attempt.ID.String(),
			"gateway_order_id":    confirmation.OrderID,
			"gateway_payment_id":  confirmation.PaymentID,
		})

		if attempt.State == enums.CheckoutStateComplete && attempt.GatewayPaymentID == confirmation.PaymentID {
			existing, err := s.orders.GetByPaymentID(ctx, confirmation.PaymentID)
			if err != nil {
				return err
			}
			result = &ConfirmResult{State: attempt.State, Order: existing}
			return nil
		}
		if !attempt.State.CanConfirm() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no checkout is awaiting payment")
		}
		if attempt.GatewayOrderID != confirmation.OrderID {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to the current checkout")
		}

		if err := s.transition(ctx, attempt, enums.CheckoutStateVerifyingSignature, ""); err != nil {
			return err
		}
		ok, err := s.payments.Verify(ctx, confirmation)
		if err != nil {
			s.settle(ctx, attempt, enums.CheckoutStateFailed, reasonVerifyFailed, outcomeVerifyFailed)
			return err
		}
		if !ok {
			s.settle(ctx, attempt, enums.CheckoutStateFailed, reasonSignature, outcomeSignature)
			return pkgerrors.New(pkgerrors.CodeIntegrity, "payment verification failed")
		}

		attempt.GatewayPaymentID = confirmation.PaymentID
		if err := s.transition(ctx, attempt, enums.CheckoutStatePersistingOrder, ""); err != nil {
			return err
		}
		order, err := s.orders.Place(ctx, orders.PlaceInput{
			UserID:           userID,
			Items:            attempt.Lines,
			Total:            attempt.Total,
			Currency:         attempt.Currency,
			Address:          attempt.Address,
			GatewayOrderID:   attempt.GatewayOrderID,
			GatewayPaymentID: confirmation.PaymentID,
		})
		if err != nil {
			if errors.Is(err, orders.ErrStockExhausted) {
				s.reconcile(ctx, attempt)
				return err
			}
			s.logg.Error(ctx, "persist paid order", err)
			s.settle(ctx, attempt, enums.CheckoutStateAwaitingGatewayConfirmation, reasonPersistFailed, outcomePersistFailed)
			return err
		}

		if err := s.carts.Clear(ctx, cart.Owner{UserID: userID}); err != nil {
			s.logg.Error(ctx, "clear cart after order", err)
		}
		attempt.OrderID = &order.ID
		if err := s.transition(ctx, attempt, enums.CheckoutStateComplete, ""); err != nil {
			s.logg.Error(ctx, "persist completed checkout attempt", err)
		}
		s.outcome(outcomeComplete)
		s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID.String()), "checkout complete")
		result = &ConfirmResult{State: enums.CheckoutStateComplete, Order: order}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reconcile flags a captured payment whose order could not be written
// because stock ran out. The cart stays as it is.
func (s *service) reconcile(ctx context.Context, attempt *Attempt) {
	if _, err := s.orders.FlagReconciliation(ctx, orders.ReconciliationInput{
		UserID:           attempt.UserID,
		GatewayOrderID:   attempt.GatewayOrderID,
		GatewayPaymentID: attempt.GatewayPaymentID,
		AmountMinor:      attempt.AmountMinor,
		Currency:         attempt.Currency,
		Reason:           "insufficient stock at order persistence",
	}); err != nil {
		s.logg.Error(ctx, "flag payment for reconciliation", err)
	} else {
		s.logg.Warn(ctx, "payment flagged for reconciliation")
	}
	if s.metrics != nil {
		s.metrics.IncReconciliation()
	}
	s.settle(ctx, attempt, enums.CheckoutStateFailed, reasonStockConflict, outcomeStockConflict)
}

func (s *service) Fail(ctx context.Context, userID string, input FailInput) (*Attempt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	var result *Attempt
	err := s.withLock(ctx, userID, func() error {
		attempt, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		if attempt == nil || attempt.State != enums.CheckoutStateAwaitingGatewayConfirmation {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no checkout is awaiting payment")
		}
		if id := strings.TrimSpace(input.OrderID); id != "" && id != attempt.GatewayOrderID {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to the current checkout")
		}
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			reason = reasonCancelled
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"checkout_attempt_id": attempt.ID.String(),
			"reason":              reason,
		}), "gateway reported payment failure")
		if err := s.transition(ctx, attempt, enums.CheckoutStateFailed, reason); err != nil {
			return err
		}
		s.outcome(outcomeCancelled)
		result = attempt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Status(ctx context.Context, userID string) (*Attempt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	attempt, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return idleAttempt(userID), nil
	}
	return attempt, nil
}

// publicReason is the typed error's public message, or fallback for
// untyped errors.
func publicReason(err error, fallback string) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return fallback
}
