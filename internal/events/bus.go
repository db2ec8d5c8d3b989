package events

import (
	"sync"
	"time"
)

type Type string

const (
	AgendaCreated     Type = "agenda_created"
	AgendaBulkCreated Type = "agenda_bulk_created"
	AgendaReassigned  Type = "agenda_reassigned"
	AgendaDeleted     Type = "agenda_deleted"
	BoxStateChanged   Type = "box_state_changed"
)

type Event struct {
	Type    Type
	At      time.Time
	Details map[string]any
}

type Handler func(Event)

// Bus is an in-process typed publish/subscribe fan-out. The ingestion loop
// and the reassignment committer publish; the cache invalidator and the
// websocket broadcaster subscribe. Handlers must not block.
type Bus struct {
	mu   sync.RWMutex
	subs map[Type][]Handler
	all  []Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]Handler)}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

func (b *Bus) Publish(t Type, details map[string]any) {
	e := Event{Type: t, At: time.Now().UTC(), Details: details}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[t])+len(b.all))
	handlers = append(handlers, b.subs[t]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}
