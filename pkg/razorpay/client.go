package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	rzp "github.com/razorpay/razorpay-go"
)

// ErrNotConfigured is returned when the key id or secret is missing.
var ErrNotConfigured = errors.New("razorpay credentials are not configured")

// orderAPI is the slice of the SDK's order resource the client uses.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// OrderRequest describes a gateway order in minor units.
type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Order is the gateway's order object. Raw keeps the response as returned.
type Order struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
	Raw         map[string]interface{}
}

// Client creates orders against the Razorpay API.
type Client struct {
	orders      orderAPI
	publicKeyID string
}

// New builds a client from the configured credentials.
func New(cfg config.RazorpayConfig) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	sdk := rzp.NewClient(cfg.PublicKeyID, cfg.PrivateKeySecret)
	return &Client{orders: sdk.Order, publicKeyID: cfg.PublicKeyID}, nil
}

func newWithAPI(orders orderAPI, keyID string) *Client {
	return &Client{orders: orders, publicKeyID: keyID}
}

// PublicKeyID is the key id handed to the client-side checkout widget.
func (c *Client) PublicKeyID() string {
	return c.publicKeyID
}

// CreateOrder creates a gateway order. The SDK has no context support, so
// cancellation is only honored before the call is issued.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if c == nil || c.orders == nil {
		return nil, ErrNotConfigured
	}
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, fmt.Errorf("currency is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"amount":   req.AmountMinor,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	raw, err := c.orders.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	return parseOrder(raw)
}

func parseOrder(raw map[string]interface{}) (*Order, error) {
	id, _ := raw["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay order response missing id")
	}
	order := &Order{ID: id, Raw: raw}
	order.Currency, _ = raw["currency"].(string)
	order.Receipt, _ = raw["receipt"].(string)
	order.Status, _ = raw["status"].(string)
	switch v := raw["amount"].(type) {
	case float64:
		order.AmountMinor = int64(v)
	case int64:
		order.AmountMinor = v
	case int:
		order.AmountMinor = int64(v)
	}
	return order, nil
}
