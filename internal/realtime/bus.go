// Package realtime implements the process-wide fan-out bus of §4.3:
// per-topic broadcast channels of fixed capacity, with a Lagged signal
// for subscribers that fall behind instead of the teacher's
// silent-drop-on-full behavior (internal/events.EventBus.Publish),
// generalized from a single global hub into one channel per topic.
package realtime

import (
	"sync"

	"github.com/balungpisah/gotong-royong-core/internal/metrics"
)

// DefaultChannelCapacity is the recommended minimum of §4.3.
const DefaultChannelCapacity = 256

// SignalKind classifies what a Subscription's channel carries: either a
// Message or a Lagged/Closed control signal.
type SignalKind int

const (
	SignalMessage SignalKind = iota
	SignalLagged
	SignalClosed
)

// Signal is delivered to every subscriber in publication order.
type Signal struct {
	Kind    SignalKind
	Message interface{} // set when Kind == SignalMessage
	Gap     int         // set when Kind == SignalLagged: messages dropped
}

// Subscription is a single subscriber's view of one topic.
type Subscription struct {
	ch    chan Signal
	topic string
	bus   *Bus
}

// C returns the channel to range/select over.
func (s *Subscription) C() <-chan Signal { return s.ch }

// Close unregisters the subscription from its topic.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.topic, s)
}

// topicHub is the per-topic fan-out state.
type topicHub struct {
	subs map[*Subscription]struct{}
}

// Bus maps topic -> broadcast channel, one topicHub per topic, mutex-
// guarded like the teacher's EventBus.subscribers map.
type Bus struct {
	mu       sync.RWMutex
	topics   map[string]*topicHub
	capacity int
	metrics  *metrics.Metrics
}

func New(capacity int, m *metrics.Metrics) *Bus {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &Bus{topics: make(map[string]*topicHub), capacity: capacity, metrics: m}
}

// Subscribe registers a new subscription on topic. topicClass is a
// coarse label (e.g. "chat", "siaga") used only for metrics.
func (b *Bus) Subscribe(topic, topicClass string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	hub, ok := b.topics[topic]
	if !ok {
		hub = &topicHub{subs: make(map[*Subscription]struct{})}
		b.topics[topic] = hub
	}
	// One slot above capacity is reserved for a Lagged marker (see deliver).
	sub := &Subscription{ch: make(chan Signal, b.capacity+1), topic: topic, bus: b}
	hub.subs[sub] = struct{}{}

	if b.metrics != nil {
		b.metrics.BusSubscriberGauge.WithLabelValues(topicClass).Set(float64(len(hub.subs)))
	}
	return sub
}

func (b *Bus) unsubscribe(topic string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hub, ok := b.topics[topic]
	if !ok {
		return
	}
	if _, present := hub.subs[sub]; present {
		delete(hub.subs, sub)
		close(sub.ch)
	}
	if len(hub.subs) == 0 {
		delete(b.topics, topic)
	}
}

// Publish delivers message to every subscriber of topic in order. A
// subscriber whose channel is full receives a Lagged signal with a gap
// count instead of the message (never silently dropped, unlike the
// teacher's EventBus.Publish).
func (b *Bus) Publish(topic, topicClass string, message interface{}) {
	b.mu.RLock()
	hub, ok := b.topics[topic]
	if !ok {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0, len(hub.subs))
	for s := range hub.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, Signal{Kind: SignalMessage, Message: message}, topicClass)
	}
	if b.metrics != nil {
		b.metrics.BusPublishTotal.WithLabelValues(topicClass).Inc()
	}
}

// deliver attempts a non-blocking send while the subscriber holds fewer
// than capacity signals; once it is full, it pushes a Lagged marker into
// the reserved slot instead of the message.
func (b *Bus) deliver(s *Subscription, sig Signal, topicClass string) {
	if len(s.ch) < b.capacity {
		select {
		case s.ch <- sig:
			return
		default:
		}
	}

	// Channel full: the subscriber is behind. Signal Lagged(1); if a
	// Lagged signal already occupies the reserved slot we can't coalesce
	// without blocking, so this gap is swallowed by the first Lagged's
	// catch-up-by-cursor recovery on the consumer side.
	select {
	case s.ch <- Signal{Kind: SignalLagged, Gap: 1}:
	default:
		// The reserved slot is taken; the subscriber recovers this gap
		// through the same cursor-based catch-up.
	}
	if b.metrics != nil {
		b.metrics.BusLaggedTotal.WithLabelValues(topicClass).Inc()
	}
}

// CloseTopic signals every current subscriber of topic with Closed and
// tears down the hub.
func (b *Bus) CloseTopic(topic string) {
	b.mu.Lock()
	hub, ok := b.topics[topic]
	if !ok {
		b.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(hub.subs))
	for s := range hub.subs {
		subs = append(subs, s)
	}
	delete(b.topics, topic)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- Signal{Kind: SignalClosed}:
		default:
		}
		close(s.ch)
	}
}
