package tracklog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamHubConfig configures the live channel hub.
type StreamHubConfig struct {
	// Enabled turns on channel streaming
	Enabled bool
	// BufferSize is the update buffer size per subscription
	BufferSize int
	// WriteTimeout for WebSocket writes
	WriteTimeout time.Duration
}

// DefaultStreamHubConfig returns default hub configuration.
func DefaultStreamHubConfig() StreamHubConfig {
	return StreamHubConfig{
		Enabled:      true,
		BufferSize:   256,
		WriteTimeout: 10 * time.Second,
	}
}

// ChannelUpdate is one live update: a channel path and the local value that
// just landed on it.
type ChannelUpdate struct {
	Channel string `json:"channel"`
	Value   any    `json:"value"`
}

// Subscription represents an active channel subscription.
type Subscription struct {
	ID     string
	Prefix string
	ch     chan ChannelUpdate
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// C returns the channel for receiving updates.
func (s *Subscription) C() <-chan ChannelUpdate {
	return s.ch
}

// Close closes the subscription.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// StreamHub fans PathStore inserts out to live subscribers. A subscription
// names a channel path prefix; an empty prefix matches everything.
type StreamHub struct {
	config StreamHubConfig
	mu     sync.RWMutex
	subs   map[string]*Subscription
	nextID uint64
}

// NewStreamHub creates a new hub.
func NewStreamHub(cfg StreamHubConfig) *StreamHub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &StreamHub{
		config: cfg,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe creates a subscription for a channel prefix.
func (h *StreamHub) Subscribe(prefix string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		ID:     fmt.Sprintf("sub-%d", h.nextID),
		Prefix: prefix,
		ch:     make(chan ChannelUpdate, h.config.BufferSize),
		done:   make(chan struct{}),
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription.
func (h *StreamHub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Publish fans one channel append out to matching subscriptions. Full
// buffers drop the update rather than block the inserting worker.
func (h *StreamHub) Publish(channel string, e *ChannelEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !matchesPrefix(sub.Prefix, channel) {
			continue
		}
		select {
		case sub.ch <- ChannelUpdate{Channel: channel, Value: e.Local}:
		default:
			// Buffer full, drop the update
		}
	}
}

// matchesPrefix reports whether a channel falls under a subscription prefix.
// A prefix matches itself, its descendants, and its grouped variants.
func matchesPrefix(prefix, channel string) bool {
	if prefix == "" || prefix == channel {
		return true
	}
	return strings.HasPrefix(channel, prefix+"/") || strings.HasPrefix(channel, prefix+",")
}

// Count returns the number of active subscriptions.
func (h *StreamHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// WebSocket handling

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamMessage is the JSON format for WebSocket messages.
type streamMessage struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel,omitempty"`
	Update  *ChannelUpdate `json:"update,omitempty"`
	SubID   string         `json:"sub_id,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// WebSocketHandler returns an HTTP handler for WebSocket connections.
// Clients send subscribe/unsubscribe commands and receive channel updates.
func (h *StreamHub) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Active subscriptions for this connection
		connSubs := make(map[string]*Subscription)
		var connMu sync.Mutex

		go func() {
			defer cancel()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}

				var cmd streamMessage
				if err := json.Unmarshal(msg, &cmd); err != nil {
					h.sendError(conn, "invalid message format")
					continue
				}

				switch cmd.Type {
				case "subscribe":
					sub := h.Subscribe(cmd.Channel)
					connMu.Lock()
					connSubs[sub.ID] = sub
					connMu.Unlock()

					resp, _ := json.Marshal(streamMessage{
						Type:  "subscribed",
						SubID: sub.ID,
					})
					_ = conn.WriteMessage(websocket.TextMessage, resp)

					go h.forwardUpdates(ctx, conn, sub)

				case "unsubscribe":
					connMu.Lock()
					if sub, ok := connSubs[cmd.SubID]; ok {
						delete(connSubs, cmd.SubID)
						h.Unsubscribe(sub.ID)
					}
					connMu.Unlock()

					resp, _ := json.Marshal(streamMessage{
						Type:  "unsubscribed",
						SubID: cmd.SubID,
					})
					_ = conn.WriteMessage(websocket.TextMessage, resp)

				default:
					h.sendError(conn, "unknown command: "+cmd.Type)
				}
			}
		}()

		<-ctx.Done()

		connMu.Lock()
		for _, sub := range connSubs {
			h.Unsubscribe(sub.ID)
		}
		connMu.Unlock()
	}
}

func (h *StreamHub) forwardUpdates(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case u, ok := <-sub.ch:
			if !ok {
				return
			}
			msg, _ := json.Marshal(streamMessage{
				Type:   "update",
				SubID:  sub.ID,
				Update: &u,
			})
			if h.config.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (h *StreamHub) sendError(conn *websocket.Conn, msg string) {
	resp, _ := json.Marshal(streamMessage{
		Type:  "error",
		Error: msg,
	})
	_ = conn.WriteMessage(websocket.TextMessage, resp)
}
