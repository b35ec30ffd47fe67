package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mealgrid/realtime/channel"
)

// DefaultCartChannel is the channel name used when none is configured.
const DefaultCartChannel = "cart"

// CartEventKind is the closed set of cart domain events.
type CartEventKind string

const (
	CartItemAdded   CartEventKind = "item_added"
	CartItemUpdated CartEventKind = "item_updated"
	CartItemRemoved CartEventKind = "item_removed"
	CartCleared     CartEventKind = "cart_cleared"
)

// CartItem is one line in the shopping cart.
type CartItem struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// CartEvent is the domain notification delivered to the UI callback.
type CartEvent struct {
	Kind CartEventKind
	Item *CartItem // nil for cart_cleared
}

type cartPayload struct {
	Item   *CartItem `json:"item,omitempty"`
	ItemID string    `json:"item_id,omitempty"`
}

// CartConfig configures a cart synchronizer.
type CartConfig struct {
	// Channel overrides the default channel name.
	Channel string

	// Refetch reloads the authoritative cart when an event payload is not
	// self-sufficient. Optional.
	Refetch func(ctx context.Context) ([]CartItem, error)

	// Notify receives every decoded domain event. Optional.
	Notify func(CartEvent)

	// OnError receives refetch and decode failures. Optional.
	OnError func(error)

	Logger *slog.Logger
}

// CartSync keeps a local cart view in step with the remote one.
type CartSync struct {
	cfg    CartConfig
	ch     *channel.Channel
	logger *slog.Logger

	mu    sync.RWMutex
	items map[string]CartItem

	unbinds []func()
}

// NewCartSync subscribes the cart channel and starts translating its events.
func NewCartSync(reg *channel.Registry, cfg CartConfig) *CartSync {
	if cfg.Channel == "" {
		cfg.Channel = DefaultCartChannel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &CartSync{
		cfg:    cfg,
		logger: cfg.Logger.With("syncer", "cart"),
		items:  make(map[string]CartItem),
	}
	s.ch = reg.Subscribe(cfg.Channel)

	s.unbinds = append(s.unbinds,
		s.ch.On(string(CartItemAdded), s.handleUpsert(CartItemAdded)),
		s.ch.On(string(CartItemUpdated), s.handleUpsert(CartItemUpdated)),
		s.ch.On(string(CartItemRemoved), s.handleRemove),
		s.ch.On(string(CartCleared), s.handleClear),
	)
	return s
}

// Items returns a snapshot of the cached cart view.
func (s *CartSync) Items() []CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CartItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	return out
}

// AddItem publishes a local cart addition. Delivery inherits the outbound
// queue's ordering and retry guarantees.
func (s *CartSync) AddItem(item CartItem) {
	s.publish(CartItemAdded, cartPayload{Item: &item})
}

// UpdateItem publishes a local cart update.
func (s *CartSync) UpdateItem(item CartItem) {
	s.publish(CartItemUpdated, cartPayload{Item: &item})
}

// RemoveItem publishes a local cart removal.
func (s *CartSync) RemoveItem(itemID string) {
	s.publish(CartItemRemoved, cartPayload{ItemID: itemID})
}

// Clear publishes a local cart clear.
func (s *CartSync) Clear() {
	s.publish(CartCleared, cartPayload{})
}

// Close unbinds the event handlers. The channel registration stays with the
// registry.
func (s *CartSync) Close() {
	for _, unbind := range s.unbinds {
		unbind()
	}
	s.unbinds = nil
}

func (s *CartSync) publish(kind CartEventKind, p cartPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		s.fail(fmt.Errorf("encode cart payload: %w", err))
		return
	}
	s.ch.Publish(string(kind), data)
}

// handleUpsert merges a self-sufficient item payload into the cached view,
// falling back to a full refetch when the payload carries no item.
func (s *CartSync) handleUpsert(kind CartEventKind) channel.Handler {
	return func(_ string, payload []byte) {
		var p cartPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.Item == nil {
			s.refetch()
			s.notify(CartEvent{Kind: kind})
			return
		}

		s.mu.Lock()
		s.items[p.Item.ID] = *p.Item
		s.mu.Unlock()

		s.notify(CartEvent{Kind: kind, Item: p.Item})
	}
}

func (s *CartSync) handleRemove(_ string, payload []byte) {
	var p cartPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ItemID == "" {
		s.refetch()
		s.notify(CartEvent{Kind: CartItemRemoved})
		return
	}

	s.mu.Lock()
	item, ok := s.items[p.ItemID]
	delete(s.items, p.ItemID)
	s.mu.Unlock()

	ev := CartEvent{Kind: CartItemRemoved}
	if ok {
		ev.Item = &item
	}
	s.notify(ev)
}

func (s *CartSync) handleClear(_ string, _ []byte) {
	s.mu.Lock()
	s.items = make(map[string]CartItem)
	s.mu.Unlock()

	s.notify(CartEvent{Kind: CartCleared})
}

// refetch reloads the authoritative cart through the caller's callback.
func (s *CartSync) refetch() {
	if s.cfg.Refetch == nil {
		return
	}

	items, err := s.cfg.Refetch(context.Background())
	if err != nil {
		s.fail(fmt.Errorf("refetch cart: %w", err))
		return
	}

	s.mu.Lock()
	s.items = make(map[string]CartItem, len(items))
	for _, item := range items {
		s.items[item.ID] = item
	}
	s.mu.Unlock()
}

func (s *CartSync) notify(ev CartEvent) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(ev)
	}
}

func (s *CartSync) fail(err error) {
	s.logger.Warn("cart sync error", "error", err)
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}
