package localstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/repositories"
)

// storeVersion is baked into every key so a format change invalidates old
// payloads instead of misparsing them.
const storeVersion = 1

var errDirRequired = errors.New("localstore: directory is required")

// Store persists guest carts as JSON files on local disk, one file per
// anonymous session. Mutations are serialised through a single lock; every
// write replaces the whole payload atomically via rename.
type Store struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex
}

// New constructs a Store rooted at dir, creating the directory when absent.
func New(dir string, logger *zap.Logger) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errDirRequired
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("localstore: create directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}, nil
}

// GuestCarts exposes the store as a GuestCartRepository.
func (s *Store) GuestCarts() repositories.GuestCartRepository { return s }

// Close implements the registry lifecycle hook; file handles are not held open.
func (s *Store) Close(context.Context) error { return nil }

// Load reads the stored cart for the session. A missing file, unparsable
// payload, or stale version loads as an empty cart.
func (s *Store) Load(_ context.Context, sessionID string) ([]domain.CartItem, error) {
	if s == nil {
		return nil, storeError{msg: "localstore: not initialised", unavailable: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.CartItem{}, nil
		}
		return nil, storeError{msg: fmt.Sprintf("localstore: read cart: %v", err), unavailable: true}
	}

	var file cartFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Warn("guest cart payload unparsable, treating as empty",
			zap.String("session_hash", sessionHash(sessionID)),
			zap.Error(err),
		)
		return []domain.CartItem{}, nil
	}
	if file.Version != storeVersion {
		s.logger.Warn("guest cart payload version mismatch, treating as empty",
			zap.String("session_hash", sessionHash(sessionID)),
			zap.Int("version", file.Version),
		)
		return []domain.CartItem{}, nil
	}

	items := make([]domain.CartItem, 0, len(file.Items))
	for _, record := range file.Items {
		items = append(items, record.toDomain())
	}
	return items, nil
}

// Save serialises the full item list, replacing any previous payload.
func (s *Store) Save(_ context.Context, sessionID string, items []domain.CartItem) error {
	if s == nil {
		return storeError{msg: "localstore: not initialised", unavailable: true}
	}

	file := cartFile{Version: storeVersion, Items: make([]cartItemRecord, 0, len(items))}
	for _, item := range items {
		file.Items = append(file.Items, recordFromDomain(item))
	}

	data, err := json.Marshal(file)
	if err != nil {
		return storeError{msg: fmt.Sprintf("localstore: encode cart: %v", err), unavailable: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(sessionID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return storeError{msg: fmt.Sprintf("localstore: write cart: %v", err), unavailable: true}
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return storeError{msg: fmt.Sprintf("localstore: replace cart: %v", err), unavailable: true}
	}
	return nil
}

// Delete erases the stored cart; deleting an absent cart is not an error.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	if s == nil {
		return storeError{msg: "localstore: not initialised", unavailable: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return storeError{msg: fmt.Sprintf("localstore: delete cart: %v", err), unavailable: true}
	}
	return nil
}

func (s *Store) path(sessionID string) string {
	name := fmt.Sprintf("guestcart.v%d.%s.json", storeVersion, sessionHash(sessionID))
	return filepath.Join(s.dir, name)
}

// sessionHash keeps raw session identifiers out of filenames.
func sessionHash(sessionID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sessionID)))
	return hex.EncodeToString(sum[:8])
}

type cartFile struct {
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
