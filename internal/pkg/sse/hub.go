package sse

import (
	"sync"

	"github.com/google/uuid"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.uber.org/zap"
)

// Event is a single server-sent event
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// subscriber is one connected client on a topic
type subscriber struct {
	id string
	ch chan Event
}

// Hub fans events out to subscribers grouped by topic.
// Slow subscribers are dropped rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]*subscriber
	logger *logger.Logger

	// buffered per subscriber
	bufferSize int
}

// NewHub creates a hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		topics:     make(map[string]map[string]*subscriber),
		logger:     log,
		bufferSize: 64,
	}
}

// Subscribe registers a new subscriber on a topic and returns its id and channel.
// The caller must call Unsubscribe when done.
func (h *Hub) Subscribe(topic string) (string, <-chan Event) {
	sub := &subscriber{
		id: uuid.New().String(),
		ch: make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*subscriber)
		h.topics[topic] = subs
	}
	subs[sub.id] = sub
	h.mu.Unlock()

	h.logger.Debug("sse subscriber added",
		zap.String("topic", topic),
		zap.String("subscriber_id", sub.id),
	)

	return sub.id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(topic, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		return
	}

	sub, ok := subs[id]
	if !ok {
		return
	}

	delete(subs, id)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
	close(sub.ch)
}

// Publish sends an event to every subscriber on a topic
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.topics[topic] {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("sse subscriber buffer full, dropping event",
				zap.String("topic", topic),
				zap.String("subscriber_id", sub.id),
				zap.String("event_type", event.Type),
			)
		}
	}
}

// SubscriberCount returns the number of subscribers on a topic
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close closes all subscriber channels
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic, subs := range h.topics {
		for id, sub := range subs {
			close(sub.ch)
			delete(subs, id)
		}
		delete(h.topics, topic)
	}
}
