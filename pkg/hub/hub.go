package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// queueSize bounds broadcasts waiting for the Run loop.
const queueSize = 256

// Hub fans messages out to connected clients. The last message of every
// topic is kept and replayed to clients when they connect, so a viewer
// that joins mid-session starts from the current state.
type Hub struct {
	name   string
	logger *slog.Logger

	queue  chan Message
	joins  chan *Client
	leaves chan *Client

	mu      sync.RWMutex
	clients map[*Client]struct{}
	latest  map[string]Message

	running atomic.Bool
	done    chan struct{}
}

// New creates a hub. name scopes its log lines.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:    name,
		logger:  logger.With("component", "hub."+name),
		queue:   make(chan Message, queueSize),
		joins:   make(chan *Client),
		leaves:  make(chan *Client),
		clients: make(map[*Client]struct{}),
		latest:  make(map[string]Message),
		done:    make(chan struct{}),
	}
}

// Run serves joins, leaves and broadcasts until ctx is done, then
// disconnects every client and closes Done.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.joins:
			h.join(c)
		case c := <-h.leaves:
			h.leave(c)
		case msg := <-h.queue:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	for _, msg := range h.replayLocked() {
		c.send <- msg
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", "total", n)
}

// replayLocked returns the latest message of each topic in topic order.
// A fresh client's buffer always has room for them.
func (h *Hub) replayLocked() []Message {
	topics := make([]string, 0, len(h.latest))
	for t := range h.latest {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	out := make([]Message, 0, len(topics))
	for _, t := range topics {
		out = append(out, h.latest[t])
	}
	return out
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", "remaining", n)
}

func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[msg.Topic] = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropLocked(c)
			h.logger.Warn("dropped slow client", "topic", msg.Topic)
		}
	}
}

func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) shutdown() {
	h.running.Store(false)
	h.mu.Lock()
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()
	close(h.done)
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.queue <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "topic", msg.Topic)
	}
}

// BroadcastJSON wraps v in an Envelope under topic and broadcasts it.
func (h *Hub) BroadcastJSON(topic string, v any) error {
	data, err := json.Marshal(Envelope{Type: topic, Data: v})
	if err != nil {
		return err
	}
	h.Broadcast(Message{Topic: topic, Data: data})
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
