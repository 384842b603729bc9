// Package cart holds the client-side shopping cart.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/storage"
	apperrors "github.com/corekit/storefront/pkg/errors"
)

// Observer receives the cart contents after every mutation
type Observer func(lines []domain.CartLine)

type subscription struct {
	id int
	fn Observer
}

// Store is the persisted line-item mapping, keyed by product ID.
//
// Mutations are synchronous and written through to storage immediately.
// Storage faults are logged and swallowed: the in-memory cart stays usable.
// Observers run after the mutation that triggered them, one mutation at a
// time, and must not mutate the store from inside the callback.
type Store struct {
	storage  storage.Store
	key      string
	notifier Notifier
	logger   *zap.Logger

	// writeMu serializes mutation plus notification
	writeMu sync.Mutex

	mu          sync.RWMutex
	lines       []domain.CartLine
	subscribers []subscription
	nextSubID   int
}

// NewStore loads the cart persisted under key. Unreadable or corrupt data
// yields an empty cart.
func NewStore(ctx context.Context, st storage.Store, key string, notifier Notifier, logger *zap.Logger) *Store {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &Store{
		storage:  st,
		key:      key,
		notifier: notifier,
		logger:   logger,
	}
	s.lines = s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) []domain.CartLine {
	data, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("Failed to read cart from storage", zap.Error(err))
		return nil
	}

	var stored []domain.CartLine
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.Warn("Discarding corrupt cart data", zap.Error(err))
		if delErr := s.storage.Delete(ctx, s.key); delErr != nil {
			s.logger.Warn("Failed to remove corrupt cart data", zap.Error(delErr))
		}
		return nil
	}

	return normalize(stored)
}

// normalize drops invalid lines and merges duplicates so a hand-edited
// file cannot break the one-line-per-product rule.
func normalize(stored []domain.CartLine) []domain.CartLine {
	var lines []domain.CartLine
	for _, line := range stored {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" || line.Quantity <= 0 {
			continue
		}
		if idx := indexOf(lines, line.ProductID); idx >= 0 {
			lines[idx].Quantity += line.Quantity
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Add puts qty units of product in the cart, incrementing an existing line
func (s *Store) Add(ctx context.Context, product domain.Product, qty int) error {
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return &apperrors.ValidationError{Message: "product id is required"}
	}
	if qty <= 0 {
		return &apperrors.ValidationError{Message: fmt.Sprintf("quantity must be > 0, got %d", qty)}
	}

	s.mutate(ctx, func(lines []domain.CartLine) ([]domain.CartLine, bool) {
		if idx := indexOf(lines, productID); idx >= 0 {
			lines[idx].Quantity += qty
			return lines, true
		}
		return append(lines, domain.CartLine{
			ProductID: productID,
			Name:      product.Name,
			UnitPrice: product.Price,
			ImageRef:  product.ImageURL,
			Quantity:  qty,
		}), true
	})
	s.notifier.Notify(fmt.Sprintf("%s added to cart", product.Name))
	return nil
}

// SetQuantity replaces the quantity of an existing line. qty <= 0 removes it.
// Unknown products are ignored.
func (s *Store) SetQuantity(ctx context.Context, productID string, qty int) {
	if qty <= 0 {
		s.Remove(ctx, productID)
		return
	}
	s.mutate(ctx, func(lines []domain.CartLine) ([]domain.CartLine, bool) {
		idx := indexOf(lines, productID)
		if idx < 0 || lines[idx].Quantity == qty {
			return lines, false
		}
		lines[idx].Quantity = qty
		return lines, true
	})
}

// Remove drops the line for productID
func (s *Store) Remove(ctx context.Context, productID string) {
	var removed string
	s.mutate(ctx, func(lines []domain.CartLine) ([]domain.CartLine, bool) {
		idx := indexOf(lines, productID)
		if idx < 0 {
			return lines, false
		}
		removed = lines[idx].Name
		return append(lines[:idx], lines[idx+1:]...), true
	})
	if removed != "" {
		s.notifier.Notify(fmt.Sprintf("%s removed from cart", removed))
	}
}

// Clear empties the cart
func (s *Store) Clear(ctx context.Context) {
	s.mutate(ctx, func(lines []domain.CartLine) ([]domain.CartLine, bool) {
		return nil, true
	})
}

// Snapshot returns a copy of the current lines
func (s *Store) Snapshot() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLines(s.lines)
}

// IsEmpty reports whether the cart has no lines
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines) == 0
}

// TotalItemCount is the sum of all quantities
func (s *Store) TotalItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, line := range s.lines {
		total += line.Quantity
	}
	return total
}

// TotalPrice is the sum of price * quantity over all lines
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, line := range s.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Subscribe registers fn and immediately emits the current contents to it.
// The returned func unregisters it.
func (s *Store) Subscribe(fn Observer) func() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscription{id: id, fn: fn})
	snap := cloneLines(s.lines)
	s.mu.Unlock()

	fn(snap)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) mutate(ctx context.Context, fn func([]domain.CartLine) ([]domain.CartLine, bool)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next, changed := fn(cloneLines(s.lines))
	if !changed {
		s.mu.Unlock()
		return
	}
	s.lines = next
	snap := cloneLines(next)
	subs := append([]subscription(nil), s.subscribers...)
	s.mu.Unlock()

	s.persist(ctx, snap)

	for _, sub := range subs {
		sub.fn(cloneLines(snap))
	}
}

func (s *Store) persist(ctx context.Context, lines []domain.CartLine) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		s.logger.Warn("Failed to encode cart", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, s.key, data); err != nil {
		s.logger.Warn("Failed to persist cart", zap.Error(err))
	}
}

func indexOf(lines []domain.CartLine, productID string) int {
	for i, line := range lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	if len(lines) == 0 {
		return []domain.CartLine{}
	}
	return append([]domain.CartLine(nil), lines...)
}
