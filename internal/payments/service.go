package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	gatewayOpCreateOrder = "create_order"
	receiptPrefix        = "rcpt_"
)

var (
	minorUnitsPerMajor = decimal.NewFromInt(100)
	maxMinorUnits      = decimal.NewFromInt(math.MaxInt64)
)

// Gateway creates orders on the payment processor.
type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
}

type gatewayMetrics interface {
	ObserveGateway(operation string, duration time.Duration, err error)
}

// Service creates gateway orders and verifies payment confirmations.
type Service interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, notes map[string]string) (*razorpay.Order, error)
	Verify(ctx context.Context, c Confirmation) (bool, error)
	PublicKeyID() string
	Currency() string
}

type ServiceParams struct {
	Gateway  Gateway
	Config   config.RazorpayConfig
	Logger   *logger.Logger
	Metrics  gatewayMetrics
	Now      func() time.Time
	Receipts func(now time.Time) string
}

type service struct {
	gateway     Gateway
	verifier    *Verifier
	publicKeyID string
	currency    string
	logg        *logger.Logger
	metrics     gatewayMetrics
	now         func() time.Time
	receipts    func(now time.Time) string
}

// NewService builds the payments service. A nil gateway is allowed: order
// creation then fails as a configuration error on each request.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Config.Currency))
	if currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	receipts := params.Receipts
	if receipts == nil {
		receipts = NewReceipt
	}
	return &service{
		gateway:     params.Gateway,
		verifier:    NewVerifier(params.Config.PrivateKeySecret),
		publicKeyID: params.Config.PublicKeyID,
		currency:    currency,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         now,
		receipts:    receipts,
	}, nil
}

func (s *service) PublicKeyID() string { return s.publicKeyID }

func (s *service) Currency() string { return s.currency }

func (s *service) CreateOrder(ctx context.Context, amount decimal.Decimal, notes map[string]string) (*razorpay.Order, error) {
	minor, err := MinorUnits(amount)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil || s.publicKeyID == "" || s.verifier == nil || len(s.verifier.secret) == 0 {
		s.logg.Error(ctx, "payment gateway credentials missing", razorpay.ErrNotConfigured)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, razorpay.ErrNotConfigured, "payment gateway not configured")
	}

	req := razorpay.OrderRequest{
		AmountMinor: minor,
		Currency:    s.currency,
		Receipt:     s.receipts(s.now()),
		Notes:       notes,
	}

	started := time.Now()
	order, err := s.gateway.CreateOrder(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveGateway(gatewayOpCreateOrder, time.Since(started), err)
	}
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"amount_minor": req.AmountMinor,
			"receipt":      req.Receipt,
		})
		s.logg.Error(logCtx, "gateway order creation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order creation failed")
	}
	return order, nil
}

func (s *service) Verify(ctx context.Context, c Confirmation) (bool, error) {
	ok, err := s.verifier.Verify(c)
	if err != nil {
		s.logg.Error(ctx, "payment verification unavailable", err)
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payment verification unavailable")
	}
	if !ok {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"gateway_order_id":   c.OrderID,
			"gateway_payment_id": c.PaymentID,
		})
		s.logg.Warn(logCtx, "payment signature rejected")
	}
	return ok, nil
}

// MinorUnits converts a major-unit amount to minor units, rounding half away
// from zero. Amounts that round to nothing or do not fit in an int64 are
// rejected rather than truncated.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(minorUnitsPerMajor).Round(0)
	if !minor.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be at least one minor currency unit")
	}
	if minor.GreaterThan(maxMinorUnits) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount is too large")
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts minor units back to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// ParseAmount accepts a JSON number or a numeric string.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount is required")
	}
	var text string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be numeric")
		}
		text = strings.TrimSpace(text)
	} else {
		var num json.Number
		if err := json.Unmarshal(trimmed, &num); err != nil {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be numeric")
		}
		text = num.String()
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be numeric")
	}
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if _, err := MinorUnits(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// NewReceipt returns a receipt id unique enough to avoid gateway-side
// idempotency collisions.
func NewReceipt(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%s", receiptPrefix, now.UnixMilli(), suffix)
}
