package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"exam-proctor-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "proctor_cluster_events"

// Message types pushed to browsers.
const (
	TypeWarning         = "warning"
	TypeMonitoringAlert = "monitoring_alert"
)

// SupervisorsRoom receives alerts of every exam.
const SupervisorsRoom = "supervisors"

func StudentRoom(studentID string) string { return "student_" + studentID }

func ExamRoom(examID string) string { return "exam_" + examID }

type clusterMessage struct {
	Origin     string          `json:"origin"`
	TargetRoom string          `json:"target_room"`
	Message    json.RawMessage `json:"message"`
}

type Hub struct {
	// Room name -> connected clients. One client may sit in several rooms.
	rooms map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client
	// origin tags our own Redis publications so we don't deliver them twice.
	origin string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rdb:        rdb,
		origin:     uuid.NewString(),
		logger:     log,
	}
}

// Run serves register/unregister requests until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.attach(client)
		case client := <-h.unregister:
			h.detach(client)
		}
	}
}

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	for _, room := range c.Rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Client]struct{})
		}
		h.rooms[room][c] = struct{}{}
	}
	h.mu.Unlock()
	h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": c.UserID, "rooms": c.Rooms})
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	found := false
	for _, room := range c.Rooms {
		members, ok := h.rooms[room]
		if !ok {
			continue
		}
		if _, ok := members[c]; ok {
			found = true
			delete(members, c)
		}
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if found {
		close(c.Send)
		h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"user_id": c.UserID})
	}
}

// SendToRoom pushes {"type": msgType, "data": data} to every client in room,
// locally and on the other instances through Redis.
func (h *Hub) SendToRoom(ctx context.Context, room, msgType string, data interface{}) error {
	message, err := json.Marshal(map[string]interface{}{
		"type": msgType,
		"data": data,
	})
	if err != nil {
		return err
	}

	delivered := h.deliverLocal(room, message)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.origin, TargetRoom: room, Message: message})
		if err := h.rdb.Publish(ctx, clusterChannel, payload).Err(); err != nil {
			return err
		}
	}

	h.logger.Debug("Hub", "Message sent", map[string]interface{}{"room": room, "type": msgType, "local_clients": delivered})
	return nil
}

func (h *Hub) deliverLocal(room string, message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.rooms[room] {
		select {
		case client.Send <- message:
			delivered++
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping client", map[string]interface{}{"user_id": client.UserID})
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
	return delivered
}

// RoomSize reports how many local clients sit in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	// Every instance subscribes to one channel and keeps only rooms it hosts.
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == h.origin {
			continue
		}
		h.deliverLocal(payload.TargetRoom, payload.Message)
	}
}
