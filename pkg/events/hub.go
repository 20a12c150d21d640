// Package events delivers change notifications from the engine to its consumers.
package events

import "sync"

// Topic names a stream of notifications.
type Topic string

const (
	// TopicIndex fires when files are added, invalidated, evicted or the index is reset.
	TopicIndex Topic = "index"
	// TopicResults fires once per applied result document.
	TopicResults Topic = "results"
	// TopicWatch fires when a watch session starts or ends.
	TopicWatch Topic = "watch"
)

// Handler receives a notification. Handlers run on the publisher's goroutine and
// must not block.
type Handler func(Topic)

// Subscription identifies a registered handler.
type Subscription struct {
	hub   *Hub
	id    uint64
	topic Topic
}

// Unsubscribe removes the handler. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.subs[s.topic], s.id)
}

// Hub is a topic-keyed set of handlers. The zero value is ready to use.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Topic]map[uint64]Handler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers handler for topic.
func (h *Hub) Subscribe(topic Topic, handler Handler) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[Topic]map[uint64]Handler)
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]Handler)
	}

	h.nextID++
	h.subs[topic][h.nextID] = handler

	return &Subscription{hub: h, id: h.nextID, topic: topic}
}

// Publish calls every handler of topic once. Handlers registered or removed during
// delivery take effect on the next Publish.
func (h *Hub) Publish(topic Topic) {
	h.mu.Lock()
	handlers := make([]Handler, 0, len(h.subs[topic]))
	for _, handler := range h.subs[topic] {
		handlers = append(handlers, handler)
	}
	h.mu.Unlock()

	for _, handler := range handlers {
		handler(topic)
	}
}
