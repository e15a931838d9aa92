package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	internalpayments "github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test_secret"

type stubGateway struct {
	requests []razorpay.OrderRequest
	err      error
}

func (g *stubGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &razorpay.Order{ID: "order_abc", AmountMinor: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt}, nil
}

func newService(t *testing.T, gw *stubGateway, cfg config.RazorpayConfig) internalpayments.Service {
	t.Helper()
	svc, err := internalpayments.NewService(internalpayments.ServiceParams{
		Gateway: gw,
		Config:  cfg,
		Logger:  logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func configured() config.RazorpayConfig {
	return config.RazorpayConfig{PublicKeyID: "rzp_test_key", PrivateKeySecret: secret, Currency: "INR"}
}

func post(handler http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderConvertsToMinorUnits(t *testing.T) {
	gw := &stubGateway{}
	handler := CreateOrder(newService(t, gw, configured()), nil)

	rec := post(handler, "/createorder", `{"amount": 999}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body createOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "order_abc", body.ID)
	assert.Equal(t, int64(99900), body.Amount)
	assert.Equal(t, "INR", body.Currency)
	assert.True(t, strings.HasPrefix(body.Receipt, "rcpt_"))
	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(99900), gw.requests[0].AmountMinor)
}

func TestCreateOrderRoundsFractionalAmounts(t *testing.T) {
	gw := &stubGateway{}
	handler := CreateOrder(newService(t, gw, configured()), nil)

	rec := post(handler, "/createorder", `{"amount": "10.005"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1001), gw.requests[0].AmountMinor)
}

func TestCreateOrderRejectsInvalidAmountsBeforeGateway(t *testing.T) {
	gw := &stubGateway{}
	handler := CreateOrder(newService(t, gw, configured()), nil)

	for _, body := range []string{`{}`, `{"amount": 0}`, `{"amount": -5}`, `{"amount": "abc"}`, `not json`, `{"amount": 2e17}`, `{"amount": 0.001}`} {
		rec := post(handler, "/createorder", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"Invalid amount"}`, rec.Body.String(), body)
	}
	assert.Empty(t, gw.requests)
}

func TestCreateOrderMethodNotAllowed(t *testing.T) {
	handler := CreateOrder(newService(t, &stubGateway{}, configured()), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/createorder", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestCreateOrderMissingCredentials(t *testing.T) {
	gw := &stubGateway{}
	handler := CreateOrder(newService(t, gw, config.RazorpayConfig{Currency: "INR"}), nil)

	rec := post(handler, "/createorder", `{"amount": 10}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, gw.requests)
}

func TestCreateOrderGatewayFailureIsOpaque(t *testing.T) {
	gw := &stubGateway{err: errors.New("BAD_REQUEST_ERROR: key rzp_live_xyz invalid")}
	handler := CreateOrder(newService(t, gw, configured()), nil)

	rec := post(handler, "/createorder", `{"amount": 10}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Order creation failed"}`, rec.Body.String())
}

func TestVerifyPayment(t *testing.T) {
	handler := VerifyPayment(newService(t, &stubGateway{}, configured()), nil)
	good := internalpayments.Sign(secret, "order_abc", "pay_123")

	cases := []struct {
		name   string
		body   string
		status int
		ok     bool
	}{
		{"valid", `{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_123","razorpay_signature":"` + good + `"}`, http.StatusOK, true},
		{"tampered", `{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_999","razorpay_signature":"` + good + `"}`, http.StatusBadRequest, false},
		{"missing signature", `{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_123"}`, http.StatusBadRequest, false},
		{"malformed", `{`, http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(handler, "/verifypayment", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			var body verifyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.ok, body.Verified)
		})
	}
}

func TestVerifyPaymentWithoutSecretIsInternalError(t *testing.T) {
	handler := VerifyPayment(newService(t, &stubGateway{}, config.RazorpayConfig{Currency: "INR"}), nil)

	rec := post(handler, "/verifypayment", `{"razorpay_order_id":"o","razorpay_payment_id":"p","razorpay_signature":"s"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"verified":false}`, rec.Body.String())
}
