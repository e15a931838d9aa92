package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type recordingService struct {
	owner       cartsvc.Owner
	added       cartsvc.AddItemInput
	mergedUser  string
	mergedGuest string
	addResult   *cartsvc.MutationResult
}

func (s *recordingService) Get(_ context.Context, owner cartsvc.Owner) (*cartsvc.CartDTO, error) {
	s.owner = owner
	if owner.UserID == "" && owner.GuestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session required")
	}
	return &cartsvc.CartDTO{Items: []cartsvc.LineDTO{}}, nil
}

func (s *recordingService) Lines(context.Context, cartsvc.Owner) (cartsvc.Lines, error) {
	return nil, nil
}

func (s *recordingService) AddItem(_ context.Context, owner cartsvc.Owner, input cartsvc.AddItemInput) (*cartsvc.MutationResult, error) {
	s.owner = owner
	s.added = input
	return s.addResult, nil
}

func (s *recordingService) SetQuantity(_ context.Context, owner cartsvc.Owner, _ cartsvc.SetQuantityInput) (*cartsvc.MutationResult, error) {
	s.owner = owner
	return &cartsvc.MutationResult{Outcome: cartsvc.OutcomeUnchanged}, nil
}

func (s *recordingService) RemoveItem(_ context.Context, owner cartsvc.Owner, _ cartsvc.KeyInput) (*cartsvc.CartDTO, error) {
	s.owner = owner
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
}

func (s *recordingService) Clear(_ context.Context, owner cartsvc.Owner) error {
	s.owner = owner
	return nil
}

func (s *recordingService) MergeOnLogin(_ context.Context, userID, guestID string) (*cartsvc.CartDTO, error) {
	s.mergedUser, s.mergedGuest = userID, guestID
	return &cartsvc.CartDTO{Items: []cartsvc.LineDTO{}}, nil
}

func withSession(req *http.Request, userID, guestID string) *http.Request {
	ctx := req.Context()
	if userID != "" {
		ctx = middleware.WithUserID(ctx, userID)
	}
	if guestID != "" {
		ctx = middleware.WithGuestID(ctx, guestID)
	}
	return req.WithContext(ctx)
}

func TestGetPrefersUserOverGuest(t *testing.T) {
	svc := &recordingService{}
	req := withSession(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), "user-1", "guest-1")
	rec := httptest.NewRecorder()
	Get(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.owner.UserID != "user-1" {
		t.Fatalf("expected user owner, got %+v", svc.owner)
	}
}

func TestGetWithoutSessionIsUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	Get(&recordingService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAddItemReportsClamp(t *testing.T) {
	productID := uuid.New()
	svc := &recordingService{addResult: &cartsvc.MutationResult{
		Cart:      &cartsvc.CartDTO{Items: []cartsvc.LineDTO{}, Count: 3, Subtotal: decimal.NewFromInt(1500)},
		Outcome:   cartsvc.OutcomeClamped,
		Available: 3,
		Message:   "only 3 available",
	}}
	body := `{"product_id":"` + productID.String() + `","color":"black","size":"m","quantity":5}`
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), "", "guest-1")
	rec := httptest.NewRecorder()
	AddItem(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.owner.GuestID != "guest-1" || svc.added.ProductID != productID || svc.added.Quantity != 5 {
		t.Fatalf("unexpected call owner=%+v input=%+v", svc.owner, svc.added)
	}
	var payload struct {
		Data struct {
			Outcome string `json:"outcome"`
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Outcome != "clamped" || payload.Data.Message != "only 3 available" {
		t.Fatalf("unexpected payload %+v", payload.Data)
	}
}

func TestAddItemRejectsUnknownFields(t *testing.T) {
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":"`+uuid.NewString()+`","price":1}`)), "user-1", "")
	rec := httptest.NewRecorder()
	AddItem(&recordingService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestRemoveItemMissingLine(t *testing.T) {
	body := `{"product_id":"` + uuid.NewString() + `","color":"BLACK","size":"M"}`
	req := withSession(httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items", strings.NewReader(body)), "user-1", "")
	rec := httptest.NewRecorder()
	RemoveItem(&recordingService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestMergeRequiresUserAndExpiresGuestCookie(t *testing.T) {
	svc := &recordingService{}

	rec := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/cart/merge", nil), "", "guest-1")
	Merge(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}

	req = withSession(httptest.NewRequest(http.MethodPost, "/api/v1/cart/merge", nil), "user-1", "guest-1")
	req.AddCookie(&http.Cookie{Name: middleware.GuestIDCookie, Value: "guest-1"})
	rec = httptest.NewRecorder()
	Merge(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.mergedUser != "user-1" || svc.mergedGuest != "guest-1" {
		t.Fatalf("unexpected merge call %q %q", svc.mergedUser, svc.mergedGuest)
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected guest cookie to be expired, got %+v", cookies)
	}
}
