package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	calls []razorpay.OrderRequest
	err   error
}

func (g *stubGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &razorpay.Order{ID: "order_abc", AmountMinor: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt}, nil
}

type recordingMetrics struct {
	ops []string
}

func (m *recordingMetrics) ObserveGateway(op string, _ time.Duration, _ error) {
	m.ops = append(m.ops, op)
}

func testConfig() config.RazorpayConfig {
	return config.RazorpayConfig{PublicKeyID: "rzp_test", PrivateKeySecret: "secret", Currency: "inr"}
}

func newTestService(t *testing.T, gw Gateway, cfg config.RazorpayConfig) (Service, *recordingMetrics) {
	t.Helper()
	m := &recordingMetrics{}
	svc, err := NewService(ServiceParams{
		Gateway:  gw,
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Metrics:  m,
		Now:      func() time.Time { return time.UnixMilli(1700000000000) },
		Receipts: func(now time.Time) string { return "rcpt_fixed" },
	})
	require.NoError(t, err)
	return svc, m
}

func TestCreateOrderRoundsToMinorUnits(t *testing.T) {
	gw := &stubGateway{}
	svc, m := newTestService(t, gw, testConfig())

	cases := map[string]int64{
		"999":     99900,
		"0.015":   2,
		"10.004":  1000,
		"10.005":  1001,
		"1234.56": 123456,
	}
	for in, want := range cases {
		_, err := svc.CreateOrder(context.Background(), decimal.RequireFromString(in), nil)
		require.NoError(t, err)
		got := gw.calls[len(gw.calls)-1]
		assert.Equal(t, want, got.AmountMinor, "amount %s", in)
		assert.Equal(t, "INR", got.Currency)
		assert.Equal(t, "rcpt_fixed", got.Receipt)
	}
	assert.Len(t, m.ops, len(cases))
	assert.Equal(t, "rzp_test", svc.PublicKeyID())
}

func TestCreateOrderRejectsNonPositiveBeforeGateway(t *testing.T) {
	gw := &stubGateway{}
	svc, _ := newTestService(t, gw, testConfig())

	for _, in := range []string{"0", "-5"} {
		_, err := svc.CreateOrder(context.Background(), decimal.RequireFromString(in), nil)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	}
	assert.Empty(t, gw.calls)
}

func TestCreateOrderWithoutCredentialsIsInternal(t *testing.T) {
	gw := &stubGateway{}
	cfg := testConfig()
	cfg.PrivateKeySecret = ""
	svc, _ := newTestService(t, gw, cfg)

	_, err := svc.CreateOrder(context.Background(), decimal.NewFromInt(10), nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
	assert.Empty(t, gw.calls)

	svc, _ = newTestService(t, nil, testConfig())
	_, err = svc.CreateOrder(context.Background(), decimal.NewFromInt(10), nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
}

func TestCreateOrderGatewayFailureIsDependency(t *testing.T) {
	gw := &stubGateway{err: errors.New("BAD_REQUEST_ERROR: key secret rzp_live_xyz")}
	svc, _ := newTestService(t, gw, testConfig())

	_, err := svc.CreateOrder(context.Background(), decimal.NewFromInt(10), nil)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
	assert.NotContains(t, typed.Message(), "rzp_live_xyz")
}

func TestVerifyThroughService(t *testing.T) {
	svc, _ := newTestService(t, &stubGateway{}, testConfig())
	sig := Sign("secret", "order_abc", "pay_1")

	ok, err := svc.Verify(context.Background(), Confirmation{OrderID: "order_abc", PaymentID: "pay_1", Signature: sig})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify(context.Background(), Confirmation{OrderID: "order_abc", PaymentID: "pay_2", Signature: sig})
	require.NoError(t, err)
	assert.False(t, ok)

	cfg := testConfig()
	cfg.PrivateKeySecret = ""
	svc, _ = newTestService(t, &stubGateway{}, cfg)
	ok, err = svc.Verify(context.Background(), Confirmation{OrderID: "order_abc", PaymentID: "pay_1", Signature: sig})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	valid := map[string]string{
		`999`:     "999",
		`"12.50"`: "12.5",
		`0.01`:    "0.01",
		` 1e2 `:   "100",
		`"  7  "`: "7",
	}
	for raw, want := range valid {
		got, err := ParseAmount(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), raw)
	}

	for _, raw := range []string{``, `null`, `"abc"`, `true`, `{}`, `0`, `-1`, `"-3"`, `2e17`, `"92233720368547758.08"`, `0.001`} {
		_, err := ParseAmount(json.RawMessage(raw))
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), raw)
	}
}

func TestNewReceiptIsUnique(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	a, b := NewReceipt(now), NewReceipt(now)
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "rcpt_1700000000000_")
	assert.LessOrEqual(t, len(a), 40)
}

func TestMinorUnitConversionRoundTrip(t *testing.T) {
	assert.True(t, FromMinorUnits(99900).Equal(decimal.NewFromInt(999)))
	minor, err := MinorUnits(FromMinorUnits(99900))
	require.NoError(t, err)
	assert.Equal(t, int64(99900), minor)
}

func TestMinorUnitsBounds(t *testing.T) {
	largest, err := MinorUnits(decimal.RequireFromString("92233720368547758.07"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), largest)

	_, err = MinorUnits(decimal.RequireFromString("92233720368547758.08"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = MinorUnits(decimal.RequireFromString("0.004"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	half, err := MinorUnits(decimal.RequireFromString("0.005"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), half)
}

func TestCreateOrderRejectsOverflowBeforeGateway(t *testing.T) {
	gw := &stubGateway{}
	svc, m := newTestService(t, gw, testConfig())

	_, err := svc.CreateOrder(context.Background(), decimal.RequireFromString("2e17"), nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, gw.calls)
	assert.Empty(t, m.ops)
}
