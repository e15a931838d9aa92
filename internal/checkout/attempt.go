package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Attempt is a user's current checkout. One attempt exists per user; a new
// Start replaces it.
type Attempt struct {
	ID               uuid.UUID           `json:"id"`
	UserID           string              `json:"user_id"`
	State            enums.CheckoutState `json:"state"`
	Reason           string              `json:"reason,omitempty"`
	GatewayOrderID   string              `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string              `json:"gateway_payment_id,omitempty"`
	AmountMinor      int64               `json:"amount_minor,omitempty"`
	Currency         string              `json:"currency,omitempty"`
	Total            decimal.Decimal     `json:"total"`
	Address          string              `json:"address,omitempty"`
	Lines            []orders.Item       `json:"lines,omitempty"`
	OrderID          *uuid.UUID          `json:"order_id,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func idleAttempt(userID string) *Attempt {
	return &Attempt{UserID: userID, State: enums.CheckoutStateIdle, Total: decimal.Zero}
}

// AttemptStore persists the current attempt per user.
type AttemptStore interface {
	Load(ctx context.Context, userID string) (*Attempt, error)
	Save(ctx context.Context, attempt *Attempt) error
}

type attemptBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CheckoutAttemptKey(userID string) string
}

// RedisAttemptStore keeps attempts as JSON without expiry: the wait for the
// gateway confirmation has no timeout.
type RedisAttemptStore struct {
	client attemptBackend
}

func NewRedisAttemptStore(client attemptBackend) (*RedisAttemptStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisAttemptStore{client: client}, nil
}

// Load returns nil when the user has no attempt.
func (s *RedisAttemptStore) Load(ctx context.Context, userID string) (*Attempt, error) {
	raw, err := s.client.Get(ctx, s.client.CheckoutAttemptKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}
	var attempt Attempt
	if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
		return nil, fmt.Errorf("decode checkout attempt: %w", err)
	}
	if !attempt.State.IsValid() {
		return nil, fmt.Errorf("checkout attempt has unknown state %q", attempt.State)
	}
	return &attempt, nil
}

func (s *RedisAttemptStore) Save(ctx context.Context, attempt *Attempt) error {
	if attempt == nil || attempt.UserID == "" {
		return errors.New("attempt with user id required")
	}
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode checkout attempt: %w", err)
	}
	if err := s.client.Set(ctx, s.client.CheckoutAttemptKey(attempt.UserID), string(payload), 0); err != nil {
		return fmt.Errorf("set checkout attempt: %w", err)
	}
	return nil
}
