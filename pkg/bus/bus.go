// Package bus is the publish/subscribe channel that propagates row-level
// and domain events across processes sharing one database. Delivery is
// at-least-once and unordered across topics; handlers must be idempotent.
package bus

import (
	"context"
	"errors"
	"sync"
)

// Handler receives the encoded payload of one notification. Decode it with
// the bus's Codec.
type Handler func(payload []byte)

// Bus is the publish/subscribe abstraction. Row-level topics follow the
// CreateTopic/UpdateTopic/RemoveTopic naming; ad-hoc domain topics travel
// over the same bus.
type Bus interface {
	// Publish encodes the payload with the bus codec and broadcasts it.
	Publish(ctx context.Context, topic string, payload any) error
	// Subscribe registers a handler for a topic. Safe to call before or
	// after Listen.
	Subscribe(topic string, fn Handler)
	// Listen blocks delivering notifications until the context is
	// cancelled or the bus is closed.
	Listen(ctx context.Context) error
	// Codec returns the payload codec used by this bus.
	Codec() Codec
	Close() error
}

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus: closed")

// CreateTopic names the row-created topic of a table. Payload: full row.
func CreateTopic(table string) string { return table + "_create" }

// UpdateTopic names the row-updated topic of a table. Payload: UpdatePayload.
func UpdateTopic(table string) string { return table + "_update" }

// RemoveTopic names the row-removed topic of a table. Payload: selector.
func RemoveTopic(table string) string { return table + "_remove" }

// UpdatePayload carries the selector and patch of a row update.
type UpdatePayload struct {
	Selector map[string]any `json:"selector" msgpack:"selector"`
	Data     map[string]any `json:"data" msgpack:"data"`
}

// handlerSet is the shared topic->handlers registry of the bus
// implementations.
type handlerSet struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: map[string][]Handler{}}
}

func (h *handlerSet) add(topic string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[topic] = append(h.handlers[topic], fn)
}

func (h *handlerSet) topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.handlers))
	for topic := range h.handlers {
		out = append(out, topic)
	}
	return out
}

func (h *handlerSet) dispatch(topic string, payload []byte) {
	h.mu.RLock()
	handlers := h.handlers[topic]
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(payload)
	}
}

// MemBus is an in-process bus for tests and single-process deployments.
// Publish dispatches synchronously to local subscribers.
type MemBus struct {
	*handlerSet
	codec  Codec
	mu     sync.Mutex
	closed bool
}

// NewMemBus creates an in-process bus with the JSON codec.
func NewMemBus() *MemBus {
	return &MemBus{handlerSet: newHandlerSet(), codec: JSONCodec{}}
}

func (b *MemBus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	data, err := b.codec.Marshal(payload)
	if err != nil {
		return err
	}
	b.dispatch(topic, data)
	return nil
}

func (b *MemBus) Subscribe(topic string, fn Handler) { b.add(topic, fn) }

func (b *MemBus) Listen(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *MemBus) Codec() Codec { return b.codec }

func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
