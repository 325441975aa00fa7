package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/repositories"
)

const (
	storeVersion = 1
	defaultTTL   = 30 * 24 * time.Hour
)

var errClientRequired = errors.New("redisstore: redis client is required")

// Store persists guest carts in Redis, one key per anonymous session. It is
// the multi-instance alternative to the on-disk store: any storefront replica
// can serve the session.
type Store struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// Option customises Store construction.
type Option func(*Store)

// WithTTL overrides the expiry applied to guest cart keys.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New constructs a Store backed by the provided Redis client.
func New(client *redis.Client, logger *zap.Logger, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errClientRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{client: client, logger: logger, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// GuestCarts exposes the store as a GuestCartRepository.
func (s *Store) GuestCarts() repositories.GuestCartRepository { return s }

// Close releases the underlying Redis client.
func (s *Store) Close(context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Load reads the stored cart for the session. A missing key or unparsable
// payload loads as an empty cart.
func (s *Store) Load(ctx context.Context, sessionID string) ([]domain.CartItem, error) {
	if s == nil || s.client == nil {
		return nil, storeError{msg: "redisstore: not initialised", unavailable: true}
	}

	data, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.CartItem{}, nil
		}
		return nil, storeError{msg: fmt.Sprintf("redisstore: read cart: %v", err), unavailable: true}
	}

	var payload cartPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Version != storeVersion {
		s.logger.Warn("guest cart payload unusable, treating as empty", zap.Error(err))
		return []domain.CartItem{}, nil
	}

	items := make([]domain.CartItem, 0, len(payload.Items))
	for _, record := range payload.Items {
		items = append(items, record.toDomain())
	}
	return items, nil
}

// Save serialises the full item list under the session key, refreshing the TTL.
func (s *Store) Save(ctx context.Context, sessionID string, items []domain.CartItem) error {
	if s == nil || s.client == nil {
		return storeError{msg: "redisstore: not initialised", unavailable: true}
	}

	payload := cartPayload{Version: storeVersion, Items: make([]cartItemRecord, 0, len(items))}
	for _, item := range items {
		payload.Items = append(payload.Items, recordFromDomain(item))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return storeError{msg: fmt.Sprintf("redisstore: encode cart: %v", err), unavailable: true}
	}

	if err := s.client.Set(ctx, key(sessionID), data, s.ttl).Err(); err != nil {
		return storeError{msg: fmt.Sprintf("redisstore: write cart: %v", err), unavailable: true}
	}
	return nil
}

// Delete erases the stored cart; a missing key is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if s == nil || s.client == nil {
		return storeError{msg: "redisstore: not initialised", unavailable: true}
	}
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return storeError{msg: fmt.Sprintf("redisstore: delete cart: %v", err), unavailable: true}
	}
	return nil
}

func key(sessionID string) string {
	return fmt.Sprintf("guestcart:v%d:%s", storeVersion, strings.TrimSpace(sessionID))
}

type cartPayload struct {
	Version int              `json:"version"`
	Items   []cartItemRecord `json:"items"`
}

type cartItemRecord struct {
	ClientID   string            `json:"client_id"`
	Kind       string            `json:"kind"`
	SKU        string            `json:"sku,omitempty"`
	TreeID     string            `json:"tree_id,omitempty"`
	PlanID     string            `json:"plan_id,omitempty"`
	Quantity   int               `json:"quantity"`
	UnitPrice  int64             `json:"unit_price"`
	Name       string            `json:"name,omitempty"`
	ImageURL   string            `json:"image_url,omitempty"`
	Dedication *dedicationRecord `json:"dedication,omitempty"`
}

type dedicationRecord struct {
	Name     string `json:"name,omitempty"`
	Occasion string `json:"occasion,omitempty"`
	Message  string `json:"message,omitempty"`
}

func recordFromDomain(item domain.CartItem) cartItemRecord {
	record := cartItemRecord{
		ClientID:  item.ClientID,
		Kind:      string(item.Kind),
		SKU:       item.SKU,
		TreeID:    item.TreeID,
		PlanID:    item.PlanID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		Name:      item.Name,
		ImageURL:  item.ImageURL,
	}
	if item.Dedication != nil {
		record.Dedication = &dedicationRecord{
			Name:     item.Dedication.Name,
			Occasion: item.Dedication.Occasion,
			Message:  item.Dedication.Message,
		}
	}
	return record
}

func (r cartItemRecord) toDomain() domain.CartItem {
	item := domain.CartItem{
		ClientID:  r.ClientID,
		Kind:      domain.CartItemKind(r.Kind),
		SKU:       r.SKU,
		TreeID:    r.TreeID,
		PlanID:    r.PlanID,
		Quantity:  r.Quantity,
		UnitPrice: r.UnitPrice,
		Name:      r.Name,
		ImageURL:  r.ImageURL,
	}
	if r.Dedication != nil {
		item.Dedication = &domain.Dedication{
			Name:     r.Dedication.Name,
			Occasion: r.Dedication.Occasion,
			Message:  r.Dedication.Message,
		}
	}
	return item
}

type storeError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e storeError) Error() string       { return e.msg }
func (e storeError) IsNotFound() bool    { return e.notFound }
func (e storeError) IsConflict() bool    { return e.conflict }
func (e storeError) IsUnavailable() bool { return e.unavailable }
