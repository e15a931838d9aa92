package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists the full line collection for one owner.
type Store interface {
	Load(ctx context.Context, owner string) (Lines, error)
	Save(ctx context.Context, owner string, lines Lines) error
	Delete(ctx context.Context, owner string) error
}

type collection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// MongoStore keeps signed-in carts as one document per user.
type MongoStore struct {
	coll collection
	logg *logger.Logger
	now  func() time.Time
}

// NewMongoStore wraps the carts collection.
func NewMongoStore(coll collection, logg *logger.Logger) (*MongoStore, error) {
	if coll == nil {
		return nil, fmt.Errorf("cart collection required")
	}
	return &MongoStore{coll: coll, logg: logg, now: time.Now}, nil
}

func (s *MongoStore) Load(ctx context.Context, userID string) (Lines, error) {
	var doc document
	if err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Lines{}, nil
		}
		return nil, fmt.Errorf("find cart: %w", err)
	}
	return decode(ctx, s.logg, doc)
}

func (s *MongoStore) Save(ctx context.Context, userID string, lines Lines) error {
	doc := newDocument(userID, lines, s.now())
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": userID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("replace cart: %w", err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

type guestBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Touch(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	GuestCartKey(guestID string) string
}

// GuestStore keeps anonymous carts in Redis. Every read slides the expiry.
type GuestStore struct {
	client guestBackend
	ttl    time.Duration
	logg   *logger.Logger
	now    func() time.Time
}

// NewGuestStore builds a guest cart store expiring idle carts after ttl.
func NewGuestStore(client guestBackend, ttl time.Duration, logg *logger.Logger) (*GuestStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &GuestStore{client: client, ttl: ttl, logg: logg, now: time.Now}, nil
}

func (s *GuestStore) Load(ctx context.Context, guestID string) (Lines, error) {
	key := s.client.GuestCartKey(guestID)
	raw, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Lines{}, nil
		}
		return nil, fmt.Errorf("get guest cart: %w", err)
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	lines, err := decode(ctx, s.logg, doc)
	if err != nil {
		return nil, err
	}
	if err := s.client.Touch(ctx, key, s.ttl); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "guest cart expiry not extended")
	}
	return lines, nil
}

func (s *GuestStore) Save(ctx context.Context, guestID string, lines Lines) error {
	payload, err := json.Marshal(newDocument(guestID, lines, s.now()))
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	if err := s.client.Set(ctx, s.client.GuestCartKey(guestID), string(payload), s.ttl); err != nil {
		return fmt.Errorf("set guest cart: %w", err)
	}
	return nil
}

func (s *GuestStore) Delete(ctx context.Context, guestID string) error {
	if err := s.client.Del(ctx, s.client.GuestCartKey(guestID)); err != nil {
		return fmt.Errorf("delete guest cart: %w", err)
	}
	return nil
}

func decode(ctx context.Context, logg *logger.Logger, doc document) (Lines, error) {
	lines, dropped, err := doc.normalize()
	if err != nil {
		return nil, err
	}
	if dropped > 0 && logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"owner":   doc.Owner,
			"version": doc.Version,
			"dropped": dropped,
		}), "dropped unreadable cart lines")
	}
	return lines, nil
}
