package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/pkg/metrics"
	"github.com/eventplanner/planner/pkg/logger"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Handler consumes change events taken off a worker queue.
type Handler interface {
	Deliver(ctx context.Context, ev domain.ChangeEvent) error
}

// Dispatcher routes change events to a fixed set of workers using consistent
// hashing on the owning user id, guaranteeing per-user event ordering.
type Dispatcher struct {
	workers []chan domain.ChangeEvent
	handler Handler
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, handler Handler, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.ChangeEvent, numWorkers),
		handler: handler,
		log:     logger.WithComponent(log, "dispatcher"),
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.ChangeEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends an event to the worker responsible for its user.
// The call blocks once channelBuffer events are waiting on that worker.
func (d *Dispatcher) Enqueue(ev domain.ChangeEvent) {
	idx := d.shardIndex(ev.Key())
	d.workers[idx] <- ev
	metrics.ChangeQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

// TryEnqueue is Enqueue for callers that may run on a worker goroutine,
// such as a repository write made while delivering an event. Instead of
// blocking on a full worker queue it drops ev and reports false.
func (d *Dispatcher) TryEnqueue(ev domain.ChangeEvent) bool {
	idx := d.shardIndex(ev.Key())
	select {
	case d.workers[idx] <- ev:
		metrics.ChangeQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return true
	default:
		metrics.ChangeEventsDroppedTotal.WithLabelValues(ev.Table).Inc()
		d.log.Warn().
			Str("table", ev.Table).
			Str("key", ev.Key()).
			Int("worker_id", idx).
			Msg("worker queue full, change event dropped")
		return false
	}
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.ChangeEvent) {
	depth := metrics.ChangeQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			depth.Set(float64(len(ch)))
			if err := d.handler.Deliver(ctx, ev); err != nil {
				d.log.Error().Err(err).
					Str("table", ev.Table).
					Str("key", ev.Key()).
					Int("worker_id", id).
					Msg("change event delivery failed")
			}
		}
	}
}
