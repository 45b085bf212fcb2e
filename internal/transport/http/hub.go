package http

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// outboundMessage is the websocket frame sent to clients.
type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans room-scoped events out to websocket clients. It implements
// app.Broadcaster. Slow clients miss events rather than block the sender.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{rooms: make(map[string]map[*client]struct{}), log: log}
}

type client struct {
	send  chan []byte
	rooms []string
}

func newClient(buffer int) *client {
	return &client{send: make(chan []byte, buffer)}
}

func (h *Hub) Broadcast(room, event string, payload any) {
	msg, err := json.Marshal(outboundMessage{Type: event, Payload: payload})
	if err != nil {
		h.log.Warn("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- msg:
		default:
			h.log.Debug("dropping event for slow client", zap.String("room", room), zap.String("event", event))
		}
	}
}

func (h *Hub) join(c *client, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
		c.rooms = append(c.rooms, room)
	}
}

// leave removes c from every room and closes its send channel. Broadcast
// holds the read lock while sending, so no send can follow the close.
func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.rooms = nil
	close(c.send)
}

// RoomSize reports how many clients are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
