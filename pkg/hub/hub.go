package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-focus/internal/log"
)

// ErrStopped is returned when joining a hub whose Run loop has exited.
var ErrStopped = errors.New("hub: stopped")

// subscription changes a client's topic filter from inside Run.
type subscription struct {
	client *Client
	topics []string
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name string

	clients  map[*Client]bool
	retained map[string][]byte

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	done       chan struct{}
	stopOnce   sync.Once

	// guards clients and retained for readers outside Run
	mu sync.RWMutex

	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a hub. name is used in logs.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		retained:   make(map[string][]byte),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client. A hub is not restarted after Run returns.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.replayLocked(client, nil)
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("websocket client connected", "hub", h.name, "clients", count, "topics", client.topicList())

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("websocket client disconnected", "hub", h.name, "clients", count)

		case sub := <-h.subscribe:
			h.mu.Lock()
			if h.clients[sub.client] {
				before := sub.client.topics
				sub.client.topics = topicSet(sub.topics)
				h.replayLocked(sub.client, func(t string) bool { return before == nil || before[t] })
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			if msg.Retain {
				h.retained[msg.Topic] = msg.Data
			}
			for client := range h.clients {
				if client.wants(msg.Topic) {
					h.offerLocked(client, msg.Data)
				}
			}
			h.mu.Unlock()
		}
	}
}

// replayLocked sends the retained messages client wants, in topic order,
// skipping topics for which seen reports true. Caller holds mu.
func (h *Hub) replayLocked(client *Client, seen func(topic string) bool) {
	topics := make([]string, 0, len(h.retained))
	for t := range h.retained {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	for _, t := range topics {
		if !client.wants(t) {
			continue
		}
		if seen != nil && seen(t) {
			continue
		}
		if !h.offerLocked(client, h.retained[t]) {
			return
		}
	}
}

// offerLocked queues data for client without blocking. A client whose queue
// is full is dropped. Caller holds mu.
func (h *Hub) offerLocked(client *Client, data []byte) bool {
	select {
	case client.queue <- data:
		return true
	default:
		h.removeLocked(client)
		log.Warn("dropped slow websocket client", "hub", h.name)
		return false
	}
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.queue)
	}
}

// join registers client. It reports false once Run has exited.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client. It never blocks after Run has exited.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// setTopics replaces client's topic filter.
func (h *Hub) setTopics(client *Client, topics []string) {
	select {
	case h.subscribe <- subscription{client: client, topics: topics}:
	case <-h.done:
	}
}

// Broadcast queues msg for every subscribed client. It never blocks; when
// the queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		log.Debug("broadcast queue full, dropping message", "hub", h.name, "topic", msg.Topic)
	}
}

// BroadcastJSON encodes v under topic and broadcasts it.
func (h *Hub) BroadcastJSON(topic string, v any, retain bool) error {
	data, err := Encode(topic, v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Topic: topic, Data: data, Retain: retain})
	return nil
}

// Retained returns the retained message for topic.
func (h *Hub) Retained(topic string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, ok := h.retained[topic]
	return data, ok
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were dropped on a full queue.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
