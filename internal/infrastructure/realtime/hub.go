// Package realtime fans row mutations out to the session contexts that
// subscribed to them.
package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
	"github.com/eventplanner/planner/internal/pkg/metrics"
	"github.com/eventplanner/planner/pkg/logger"
)

type subscriber struct {
	table  string
	column string
	value  string
	fn     func(domain.ChangeEvent)
}

// Hub implements ports.ChangeFeed. Handlers run on the caller of Deliver,
// never under the hub's lock, so they may subscribe or unsubscribe.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]subscriber
	nextID uint64
	log    zerolog.Logger
}

var _ ports.ChangeFeed = (*Hub)(nil)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[uint64]subscriber),
		log:  logger.WithComponent(log, "realtime_hub"),
	}
}

// Subscribe registers fn for mutations of table rows whose column equals value.
func (h *Hub) Subscribe(table, column, value string, fn func(domain.ChangeEvent)) (ports.Subscription, error) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscriber{table: table, column: column, value: value, fn: fn}
	h.mu.Unlock()

	return &subscription{hub: h, id: id}, nil
}

// Deliver invokes every matching subscriber. It satisfies queue.Handler.
func (h *Hub) Deliver(_ context.Context, ev domain.ChangeEvent) error {
	metrics.ChangeEventsTotal.WithLabelValues(ev.Table, string(ev.Op)).Inc()

	h.mu.RLock()
	var fns []func(domain.ChangeEvent)
	for _, s := range h.subs {
		if s.table == ev.Table && ev.Columns[s.column] == s.value {
			fns = append(fns, s.fn)
		}
	}
	h.mu.RUnlock()

	h.log.Debug().Str("table", ev.Table).Str("op", string(ev.Op)).Int("subscribers", len(fns)).Msg("change event")
	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type subscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}
