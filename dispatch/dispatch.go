// Package dispatch implements the Dispatcher: it accepts a decoded message,
// fans it out to every matching subscription, isolates handler failures
// from each other, and enforces per-(class, handler) deduplication.
// Each subscriber is delivered to independently, on the worker pool; one
// failure must not block the others.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/smartmessage/sm/circuitbreaker"
	"github.com/smartmessage/sm/dedup"
	"github.com/smartmessage/sm/filter"
	"github.com/smartmessage/sm/header"
	"github.com/smartmessage/sm/logging"
	"github.com/smartmessage/sm/registry"
	"github.com/smartmessage/sm/schema"
	"github.com/smartmessage/sm/workerpool"
)

// SplitHandlerFunc receives the header and the raw encoded payload
// ("split-style" delivery).
type SplitHandlerFunc func(h *header.Header, payload []byte) error

// UnifiedHandlerFunc receives a reconstructed Message ("unified-style"
// delivery).
type UnifiedHandlerFunc func(m *schema.Message) error

type handlerKind int

const (
	kindSplit handlerKind = iota
	kindUnified
)

type handlerBinding struct {
	className string
	kind      handlerKind
	split     SplitHandlerFunc
	unified   UnifiedHandlerFunc
}

// DDQConfig is a message class's dedup policy. NewQueue is invoked once
// per handler id the first time that handler sees traffic for the class
// (lazily created on first use), passed the "class:handler_id" key
// (dedup.Key) so a shared-storage backend can namespace the queue it
// builds.
type DDQConfig struct {
	Enabled  bool
	NewQueue func(ddqKey string) dedup.Queue
}

type classBinding struct {
	descriptor *schema.Descriptor
	dedup      DDQConfig
}

// MissingSchemaError is the delivery failure recorded when a unified-style
// handler's class has no descriptor registered to reconstruct a Message
// from wire fields. It is logged and counted against the handler's circuit
// breaker; neither SubscribeUnified nor Route returns it.
type MissingSchemaError struct {
	ClassName string
}

func (e *MissingSchemaError) Error() string {
	return fmt.Sprintf("dispatch: class %q has no registered schema for unified-style delivery", e.ClassName)
}

// Config bundles the worker pool and circuit breaker tuning the Dispatcher
// builds its internals from.
type Config struct {
	WorkerPool     workerpool.Config
	CircuitBreaker circuitbreaker.Config
}

// Status is a point-in-time snapshot of dispatcher activity.
type Status struct {
	Running       bool
	QueueLength   int
	Scheduled     int64
	Completed     int64
	ActiveWorkers int
	Skipped       int64
}

// DDQStat is one entry of Dispatcher.DDQStats, keyed by "class:handler_id".
type DDQStat struct {
	Size        int
	Capacity    int
	Utilization float64
	StorageKind string
}

// Dispatcher is the process-wide pub/sub fan-out engine.
type Dispatcher struct {
	log      *logging.Logger
	registry *registry.Registry
	pool     *workerpool.Pool
	breakers *circuitbreaker.Registry

	mu       sync.RWMutex
	classes  map[string]*classBinding
	handlers map[string]*handlerBinding

	ddqMu sync.Mutex
	ddqs  map[string]dedup.Queue

	skipped atomic.Int64
}

// New creates a Dispatcher with its own worker pool and circuit-breaker
// registry, logging through log (logging.Default() if nil).
func New(cfg Config, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{
		log:      log,
		registry: registry.New(),
		pool:     workerpool.New(cfg.WorkerPool),
		breakers: circuitbreaker.NewRegistry(cfg.CircuitBreaker),
		classes:  make(map[string]*classBinding),
		handlers: make(map[string]*handlerBinding),
		ddqs:     make(map[string]dedup.Queue),
	}
}

// RegisterClass binds a message class's schema and dedup policy. Must be
// called before SubscribeUnified or Route for that class if dedup is
// enabled or unified-style handlers are used.
func (d *Dispatcher) RegisterClass(descriptor *schema.Descriptor, ddq DDQConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes[descriptor.ClassName()] = &classBinding{descriptor: descriptor, dedup: ddq}
}

func (d *Dispatcher) classFor(className string) *classBinding {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.classes[className]
}

// SubscribeSplit registers a split-style handler against className,
// filtered by f, and returns its synthetic handler id.
func (d *Dispatcher) SubscribeSplit(className string, f filter.Filter, handler SplitHandlerFunc) string {
	id := uuid.New().String()
	d.mu.Lock()
	d.handlers[id] = &handlerBinding{className: className, kind: kindSplit, split: handler}
	d.mu.Unlock()
	d.registry.Add(className, id, f)
	return id
}

// SubscribeUnified registers a unified-style handler against className,
// filtered by f, and returns its synthetic handler id. className must
// have a descriptor registered via RegisterClass by the time a matching
// message is routed.
func (d *Dispatcher) SubscribeUnified(className string, f filter.Filter, handler UnifiedHandlerFunc) string {
	id := uuid.New().String()
	d.mu.Lock()
	d.handlers[id] = &handlerBinding{className: className, kind: kindUnified, unified: handler}
	d.mu.Unlock()
	d.registry.Add(className, id, f)
	return id
}

// Unsubscribe removes handlerID's subscription to className and evicts its
// callable from the inline-handler registry; a lingering callable after
// unsubscribe would be a memory leak.
func (d *Dispatcher) Unsubscribe(className, handlerID string) {
	d.registry.Remove(className, handlerID)
	d.mu.Lock()
	delete(d.handlers, handlerID)
	d.mu.Unlock()
}

// UnsubscribeAll removes every subscription for className, evicting each
// handler's callable.
func (d *Dispatcher) UnsubscribeAll(className string) {
	entries := d.registry.EntriesFor(className)
	d.registry.RemoveAll(className)
	d.mu.Lock()
	for _, e := range entries {
		delete(d.handlers, e.HandlerID)
	}
	d.mu.Unlock()
}

// DropAll wipes every subscription and handler binding. Intended as a test
// aid.
func (d *Dispatcher) DropAll() {
	d.registry.DropAll()
	d.mu.Lock()
	d.handlers = make(map[string]*handlerBinding)
	d.mu.Unlock()
}

// Route is the synchronous intake point: it looks up matching
// subscriptions and schedules each onto the worker pool, then
// returns without waiting for any handler to complete. payload is the raw
// encoded bytes for split-style delivery; fields is the already-decoded
// property map for unified-style reconstruction (may be nil if no
// unified-style handler is subscribed to this class).
func (d *Dispatcher) Route(h *header.Header, payload []byte, fields map[string]interface{}) error {
	if cb := d.classFor(h.MessageClass); cb != nil && cb.descriptor != nil {
		if err := header.CheckVersion(h, cb.descriptor.Version()); err != nil {
			d.log.Warn("dispatch: version mismatch, message rejected",
				"message_class", h.MessageClass, "uuid", h.UUID, "error", err)
			return err
		}
	}

	entries := d.registry.EntriesFor(h.MessageClass)
	if len(entries) == 0 {
		return nil
	}

	fh := filter.Header{From: h.From, To: h.To}
	for _, entry := range entries {
		if !filter.Match(entry.Filter, fh) {
			continue
		}
		handlerID := entry.HandlerID
		d.pool.Submit(func() {
			d.deliver(handlerID, h, payload, fields)
		})
	}
	return nil
}

func (d *Dispatcher) deliver(handlerID string, h *header.Header, payload []byte, fields map[string]interface{}) {
	d.mu.RLock()
	binding, ok := d.handlers[handlerID]
	d.mu.RUnlock()
	if !ok {
		// Unsubscribed between scheduling and execution; nothing to do.
		return
	}

	className := h.MessageClass
	log := d.log.With("message_class", className, "handler_id", handlerID, "uuid", h.UUID)

	cb := d.classFor(className)
	dedupEnabled := cb != nil && cb.dedup.Enabled
	var queue dedup.Queue
	if dedupEnabled {
		queue = d.ddqFor(className, handlerID, cb.dedup)
		if queue.Contains(h.UUID) {
			log.Info("dispatch: duplicate message suppressed")
			d.skipped.Add(1)
			return
		}
	}

	breaker := d.breakers.For(handlerID)
	if !breaker.Allow() {
		log.Warn("dispatch: circuit breaker open, handler skipped")
		return
	}

	err := d.invokeRecovering(binding, h, payload, fields, cb)

	if err != nil {
		breaker.RecordFailure()
		log.Error("dispatch: handler invocation failed", "error", err)
		return
	}

	breaker.RecordSuccess()
	if dedupEnabled {
		if err := queue.Add(h.UUID); err != nil {
			log.Error("dispatch: ddq add failed", "error", err)
		}
	}
}

// invokeRecovering calls invoke and converts a panicking handler into an
// error instead of letting it unwind out of the worker goroutine: one
// handler's bug must not take down the pool (and with it, every other
// handler's delivery) along with it.
func (d *Dispatcher) invokeRecovering(b *handlerBinding, h *header.Header, payload []byte, fields map[string]interface{}, cb *classBinding) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return d.invoke(b, h, payload, fields, cb)
}

func (d *Dispatcher) invoke(b *handlerBinding, h *header.Header, payload []byte, fields map[string]interface{}, cb *classBinding) error {
	switch b.kind {
	case kindSplit:
		return b.split(h, payload)
	case kindUnified:
		if cb == nil || cb.descriptor == nil {
			return &MissingSchemaError{ClassName: h.MessageClass}
		}
		msg := cb.descriptor.FromWire(h, fields)
		return b.unified(msg)
	default:
		return fmt.Errorf("dispatch: unknown handler kind for class %s", h.MessageClass)
	}
}

func (d *Dispatcher) ddqFor(className, handlerID string, cfg DDQConfig) dedup.Queue {
	key := dedup.Key(className, handlerID)
	d.ddqMu.Lock()
	defer d.ddqMu.Unlock()
	q, ok := d.ddqs[key]
	if !ok {
		q = cfg.NewQueue(key)
		d.ddqs[key] = q
	}
	return q
}

// Status reports worker pool activity plus the dedup-skip counter.
func (d *Dispatcher) Status() Status {
	s := d.pool.Status()
	return Status{
		Running:       s.Running,
		QueueLength:   s.QueueLength,
		Scheduled:     s.Scheduled,
		Completed:     s.Completed,
		ActiveWorkers: s.ActiveWorkers,
		Skipped:       d.skipped.Load(),
	}
}

// DDQStats reports a snapshot of every DDQ instance created so far, keyed
// by "class:handler_id".
func (d *Dispatcher) DDQStats() map[string]DDQStat {
	d.ddqMu.Lock()
	defer d.ddqMu.Unlock()
	out := make(map[string]DDQStat, len(d.ddqs))
	for key, q := range d.ddqs {
		out[key] = DDQStat{
			Size:        q.Size(),
			Capacity:    q.Capacity(),
			Utilization: q.Utilization(),
			StorageKind: q.StorageKind(),
		}
	}
	return out
}

// Shutdown stops accepting new work and waits for in-flight handlers to
// finish, up to ctx's deadline.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return d.pool.Shutdown(ctx)
}
