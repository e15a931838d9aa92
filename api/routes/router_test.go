package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryIdempotency struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{data: map[string]string{}}
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryIdempotency) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

type countingCheckout struct {
	starts int
}

func (c *countingCheckout) Start(_ context.Context, userID string, _ checkout.StartInput) (*checkout.StartResult, error) {
	c.starts++
	return &checkout.StartResult{State: enums.CheckoutStateAwaitingGatewayConfirmation, GatewayOrderID: "order_1", Amount: 99900, Currency: "INR"}, nil
}

func (c *countingCheckout) Confirm(context.Context, string, checkout.ConfirmInput) (*checkout.ConfirmResult, error) {
	return nil, nil
}

func (c *countingCheckout) Fail(context.Context, string, checkout.FailInput) (*checkout.Attempt, error) {
	return nil, nil
}

func (c *countingCheckout) Status(_ context.Context, userID string) (*checkout.Attempt, error) {
	return &checkout.Attempt{UserID: userID, State: enums.CheckoutStateIdle}, nil
}

type memoryCarts struct {
	mu    sync.Mutex
	carts map[string]cart.Lines
}

func newMemoryCarts() *memoryCarts {
	return &memoryCarts{carts: map[string]cart.Lines{}}
}

func (m *memoryCarts) Load(_ context.Context, owner string) (cart.Lines, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(cart.Lines(nil), m.carts[owner]...), nil
}

func (m *memoryCarts) Save(_ context.Context, owner string, lines cart.Lines) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[owner] = append(cart.Lines(nil), lines...)
	return nil
}

func (m *memoryCarts) Delete(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, owner)
	return nil
}

func (m *memoryCarts) owners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.carts))
	for owner := range m.carts {
		out = append(out, owner)
	}
	return out
}

type stubCatalog struct {
	snapshots map[uuid.UUID]*product.Snapshot
}

func (c stubCatalog) Snapshot(_ context.Context, id uuid.UUID) (*product.Snapshot, error) {
	snap, ok := c.snapshots[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return snap, nil
}

func (c stubCatalog) Snapshots(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*product.Snapshot, error) {
	out := make(map[uuid.UUID]*product.Snapshot, len(ids))
	for _, id := range ids {
		if snap, ok := c.snapshots[id]; ok {
			out[id] = snap
		}
	}
	return out, nil
}

var teeID = uuid.MustParse("7d2f9a8e-52f4-4c4d-9a57-1a1f0a0c6b21")

func testCatalog() stubCatalog {
	return stubCatalog{snapshots: map[uuid.UUID]*product.Snapshot{
		teeID: {
			ProductID: teeID,
			Name:      "Everyday Tee",
			Price:     decimal.RequireFromString("999.00"),
			Stock:     map[product.VariantKey]int{product.NewVariantKey("black", "m"): 5},
		},
	}}
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT:  config.JWTConfig{Secret: "router-secret", Issuer: "storefront", ExpirationMinutes: 30},
		Cart: config.CartConfig{GuestTTL: 720 * time.Hour},
	}
}

type harness struct {
	handler  http.Handler
	cfg      *config.Config
	checkout *countingCheckout
	metrics  *metrics.HTTPMetrics
	users    *memoryCarts
	guests   *memoryCarts
}

func newHarness(t *testing.T, pingers map[string]controllers.Pinger) harness {
	t.Helper()
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "router-test", Level: logger.ParseLevel("error"), Output: io.Discard})
	checkoutSvc := &countingCheckout{}
	httpMetrics := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	users, guests := newMemoryCarts(), newMemoryCarts()
	cartSvc, err := cart.NewService(users, guests, testCatalog(), logg)
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	handler := NewRouter(cfg, logg, pingers, newMemoryIdempotency(), httpMetrics, nil, Services{Checkout: checkoutSvc, Cart: cartSvc})
	return harness{handler: handler, cfg: cfg, checkout: checkoutSvc, metrics: httpMetrics, users: users, guests: guests}
}

func (h harness) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintSessionToken(h.cfg.JWT, time.Now(), pkgAuth.SessionTokenPayload{
		UserID: "user-1",
		Email:  "shopper@example.com",
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h harness) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t, map[string]controllers.Pinger{"redis": stubPinger{}})

	resp := h.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Storefront-Env") != "test" {
		t.Fatalf("missing env header")
	}

	resp = h.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", resp.Code)
	}
}

func TestHealthReadyReportsDownDependency(t *testing.T) {
	h := newHarness(t, map[string]controllers.Pinger{"redis": stubPinger{err: context.DeadlineExceeded}})

	resp := h.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestCreateOrderRejectsOtherMethods(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.do(httptest.NewRequest(http.MethodGet, "/createorder", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", resp.Code)
	}
	if resp.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", resp.Header().Get("Allow"))
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Method not allowed" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPublicPingCarriesGuestID(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	req.Header.Set("X-Guest-Id", "6f1c7f2e-9a55-4a0b-8f1e-2d0c3f2b4a11")
	resp := h.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "6f1c7f2e-9a55-4a0b-8f1e-2d0c3f2b4a11") {
		t.Fatalf("guest id not echoed: %s", resp.Body.String())
	}
}

func TestPrivateRoutesRequireToken(t *testing.T) {
	h := newHarness(t, nil)

	for _, path := range []string{"/api/v1/ping", "/api/v1/checkout/", "/api/v1/orders/", "/api/v1/profile"} {
		resp := h.do(httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}

	resp := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/cart/merge", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("merge: expected 401 got %d", resp.Code)
	}
}

func TestCheckoutStatusWithToken(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, enums.UserRoleUser))
	resp := h.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"state":"idle"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestCheckoutStartIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, enums.UserRoleUser)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := h.do(req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing key: expected 400 got %d", resp.Code)
	}
	if h.checkout.starts != 0 {
		t.Fatalf("start must not run without a key")
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout/start", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "start-1")
		resp = h.do(req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d: %s", i, resp.Code, resp.Body.String())
		}
	}
	if h.checkout.starts != 1 {
		t.Fatalf("expected a single start, got %d", h.checkout.starts)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, enums.UserRoleUser))
	if resp := h.do(req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, enums.UserRoleAdmin))
	if resp := h.do(req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRequestsAreObservedByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	handler := NewRouter(cfg, nil, nil, nil, metrics.NewHTTPMetrics(reg), nil, Services{})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	expected := `
# HELP http_requests_total HTTP requests by route, method and status.
# TYPE http_requests_total counter
http_requests_total{method="GET",route="/health/live",status="200"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "http_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestAnonymousAddToCartStartsGuestSession(t *testing.T) {
	h := newHarness(t, nil)

	body := `{"product_id":"` + teeID.String() + `","color":"black","size":"m","quantity":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := h.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var guestCookie *http.Cookie
	for _, c := range resp.Result().Cookies() {
		if c.Name == middleware.GuestIDCookie {
			guestCookie = c
		}
	}
	if guestCookie == nil {
		t.Fatalf("expected %s cookie on first add", middleware.GuestIDCookie)
	}
	if _, err := uuid.Parse(guestCookie.Value); err != nil {
		t.Fatalf("guest cookie is not a uuid: %q", guestCookie.Value)
	}
	if got := resp.Header().Get(middleware.GuestIDHeader); got != guestCookie.Value {
		t.Fatalf("expected guest header %q, got %q", guestCookie.Value, got)
	}

	var added struct {
		Data cart.MutationResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &added); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if added.Data.Outcome != cart.OutcomeAdded || added.Data.Cart == nil || added.Data.Cart.Count != 2 {
		t.Fatalf("unexpected add result: %+v", added.Data)
	}
	if owners := h.guests.owners(); len(owners) != 1 || owners[0] != guestCookie.Value {
		t.Fatalf("expected cart under minted guest, got %v", owners)
	}
	if owners := h.users.owners(); len(owners) != 0 {
		t.Fatalf("expected no user carts, got %v", owners)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
	req.AddCookie(guestCookie)
	resp = h.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(resp.Result().Cookies()) != 0 {
		t.Fatalf("expected returning guest to keep its marker")
	}
	var fetched struct {
		Data cart.CartDTO `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fetched.Data.Count != 2 || len(fetched.Data.Items) != 1 {
		t.Fatalf("expected guest cart to persist, got %+v", fetched.Data)
	}
}
