package rpc

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"rafflechain/core/events"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// StreamEvent is the frame pushed to /ws/events subscribers.
type StreamEvent struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type subscriber struct {
	ch      chan StreamEvent
	lottery string
}

// Hub fans committed lottery events out to websocket subscribers. Slow
// subscribers drop frames instead of blocking the engine.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	frame := StreamEvent{Type: evt.EventType()}
	if payload, ok := evt.(events.Payload); ok && payload.Event() != nil {
		frame.Attributes = payload.Event().Clone().Attributes
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.lottery != "" && sub.lottery != frame.Attributes["id"] {
			continue
		}
		select {
		case sub.ch <- frame:
		default:
		}
	}
}

// Subscribe registers a listener. lotteryID narrows the stream to one
// lottery; empty receives everything. The returned cancel func must be called
// once the listener is done.
func (h *Hub) Subscribe(lotteryID string) (<-chan StreamEvent, func()) {
	sub := &subscriber{
		ch:      make(chan StreamEvent, subscriberBuffer),
		lottery: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(lotteryID), "0x")),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Close terminates every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) subscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := s.hub.Subscribe(r.URL.Query().Get("lottery"))
	defer cancel()

	if err := streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan StreamEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-updates:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, frame)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
