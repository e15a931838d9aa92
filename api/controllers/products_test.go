package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	productsvc "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/config"
)

type stubProducts struct {
	productsvc.Service

	listInput productsvc.ListInput
	stock     productsvc.SetStockInput
}

func (s *stubProducts) List(_ context.Context, input productsvc.ListInput) (*productsvc.ProductListResult, error) {
	s.listInput = input
	return &productsvc.ProductListResult{Products: []productsvc.ProductDTO{}}, nil
}

func (s *stubProducts) Get(_ context.Context, id uuid.UUID) (*productsvc.ProductDTO, error) {
	return &productsvc.ProductDTO{ID: id}, nil
}

func (s *stubProducts) SetStock(_ context.Context, input productsvc.SetStockInput) error {
	s.stock = input
	return nil
}

func withProductID(req *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("productID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestListProductsForwardsFilters(t *testing.T) {
	svc := &stubProducts{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?category=men&sub_category=tshirt&q=+polo+&limit=10", nil)
	rec := httptest.NewRecorder()
	ListProducts(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	in := svc.listInput
	if in.Category != "men" || in.SubCategory != "tshirt" || in.Query != "polo" || in.Pagination.Limit != 10 {
		t.Fatalf("unexpected input %+v", in)
	}
}

func TestGetProductRejectsBadID(t *testing.T) {
	rec := httptest.NewRecorder()
	GetProduct(&stubProducts{}, nil).ServeHTTP(rec, withProductID(httptest.NewRequest(http.MethodGet, "/", nil), "p1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminSetStock(t *testing.T) {
	svc := &stubProducts{}
	id := uuid.New()

	req := withProductID(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"color":"BLACK","size":"M"}`)), id.String())
	rec := httptest.NewRecorder()
	AdminSetStock(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing stock, got %d", rec.Code)
	}

	req = withProductID(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"color":"BLACK","size":"M","stock":0}`)), id.String())
	rec = httptest.NewRecorder()
	AdminSetStock(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.stock.ProductID != id || svc.stock.Stock != 0 || svc.stock.Color != "BLACK" {
		t.Fatalf("unexpected stock input %+v", svc.stock)
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	handler := HealthReady(cfg, nil, map[string]Pinger{
		"redis": pingerFunc(func(context.Context) error { return nil }),
		"mongo": pingerFunc(func(context.Context) error { return errors.New("no reachable servers") }),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mongo") || strings.Contains(rec.Body.String(), "no reachable servers") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Storefront-Env") != "test" {
		t.Fatalf("unexpected live response %d", rec.Code)
	}
}
