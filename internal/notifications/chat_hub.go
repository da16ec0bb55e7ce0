package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// ChatHub manages WebSocket connections for chat rooms. It is room-centric:
// a user subscribes to rooms and receives everything broadcast to them.
type ChatHub struct {
	mu sync.RWMutex

	// roomID -> set of userIDs subscribed to the room
	rooms map[uint]map[uint]struct{}

	// userID -> set of roomIDs they're subscribed to
	userRooms map[uint]map[uint]struct{}

	// userID -> set of active Clients (multi-device support)
	userConns map[uint]map[*Client]bool
}

// Name returns a human-readable identifier for this hub.
func (h *ChatHub) Name() string { return "chat hub" }

// ChatEvent is the wire envelope broadcast to clients.
type ChatEvent struct {
	Type     string      `json:"type"` // "message", "typing", "presence", "dm", "moderation", "user_status", "connected_users"
	RoomID   uint        `json:"room_id,omitempty"`
	ConvID   uint        `json:"conversation_id,omitempty"`
	UserID   uint        `json:"user_id,omitempty"`
	Username string      `json:"username,omitempty"`
	Payload  interface{} `json:"payload"`
}

// NewChatHub creates a new ChatHub instance
func NewChatHub() *ChatHub {
	return &ChatHub{
		rooms:     make(map[uint]map[uint]struct{}),
		userRooms: make(map[uint]map[uint]struct{}),
		userConns: make(map[uint]map[*Client]bool),
	}
}

// Register registers a user's websocket connection. Returns the Client or an
// error when the per-user device limit is exceeded.
func (h *ChatHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Client]bool)
	}

	if len(h.userConns[userID]) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, fmt.Errorf("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	h.userConns[userID][client] = true

	onlineIDs := make([]uint, 0, len(h.userConns))
	for id := range h.userConns {
		if id != userID {
			onlineIDs = append(onlineIDs, id)
		}
	}
	h.mu.Unlock()

	log.Printf("ChatHub: Registered user %d (Active clients: %d)", userID, len(h.userConns[userID]))

	// Send initial snapshot
	if len(onlineIDs) > 0 {
		snapshot := ChatEvent{
			Type:    "connected_users",
			Payload: map[string]interface{}{"user_ids": onlineIDs},
		}
		if jsonMsg, err := json.Marshal(snapshot); err == nil {
			client.TrySend(jsonMsg)
		}
	}

	h.BroadcastGlobalStatus(userID, "online")
	return client, nil
}

// UnregisterClient removes one connection. Room subscriptions are cleaned up
// only when the user's last connection goes away.
func (h *ChatHub) UnregisterClient(client *Client) {
	h.mu.Lock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) > 0 {
		h.mu.Unlock()
		log.Printf("ChatHub: Unregistered client for user %d (Remaining clients: %d)", client.UserID, len(clients))
		return
	}
	delete(h.userConns, client.UserID)

	if rooms, ok := h.userRooms[client.UserID]; ok {
		for roomID := range rooms {
			if users, ok := h.rooms[roomID]; ok {
				delete(users, client.UserID)
				if len(users) == 0 {
					delete(h.rooms, roomID)
				}
			}
		}
		delete(h.userRooms, client.UserID)
	}

	h.mu.Unlock()

	log.Printf("ChatHub: Unregistered user %d (All connections closed)", client.UserID)

	h.BroadcastGlobalStatus(client.UserID, "offline")
}

// IsUserOnline returns true when the user has at least one active chat websocket client.
func (h *ChatHub) IsUserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.userConns[userID]
	return ok && len(clients) > 0
}

// JoinRoom subscribes a connected user to a room's broadcasts.
func (h *ChatHub) JoinRoom(userID, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.userConns[userID]; !ok {
		log.Printf("ChatHub: User %d not connected, cannot join room %d", userID, roomID)
		return
	}

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[uint]struct{})
	}
	h.rooms[roomID][userID] = struct{}{}

	if h.userRooms[userID] == nil {
		h.userRooms[userID] = make(map[uint]struct{})
	}
	h.userRooms[userID][roomID] = struct{}{}
}

// LeaveRoom unsubscribes a user from a room.
func (h *ChatHub) LeaveRoom(userID, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if users, ok := h.rooms[roomID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.rooms, roomID)
		}
	}

	if rooms, ok := h.userRooms[userID]; ok {
		delete(rooms, roomID)
	}
}

// KickFromRoom force-removes a user's subscription, used by moderation.
func (h *ChatHub) KickFromRoom(userID, roomID uint) {
	h.LeaveRoom(userID, roomID)
	h.SendToUser(userID, ChatEvent{
		Type:    "moderation",
		RoomID:  roomID,
		UserID:  userID,
		Payload: map[string]interface{}{"action": "kick", "room_id": roomID},
	})
}

// BroadcastToRoom sends an event to every subscriber of the room, across all
// of each subscriber's devices.
func (h *ChatHub) BroadcastToRoom(roomID uint, event ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.rooms[roomID]
	if !ok {
		return
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: Failed to marshal event: %v", err)
		return
	}

	for userID := range users {
		if clients, ok := h.userConns[userID]; ok {
			for client := range clients {
				client.TrySend(eventJSON)
			}
		}
	}
}

// SendToUser delivers an event to every connection of one user.
func (h *ChatHub) SendToUser(userID uint, event ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.userConns[userID]
	if !ok {
		return
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: Failed to marshal event: %v", err)
		return
	}

	for client := range clients {
		client.TrySend(eventJSON)
	}
}

// BroadcastToAllUsers sends an event to every connected websocket client.
func (h *ChatHub) BroadcastToAllUsers(event ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: Failed to marshal global event: %v", err)
		return
	}

	for _, clients := range h.userConns {
		for client := range clients {
			client.TrySend(eventJSON)
		}
	}
}

// RoomSubscribers returns the userIDs currently subscribed to a room.
func (h *ChatHub) RoomSubscribers(roomID uint) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.rooms[roomID]
	if !ok {
		return []uint{}
	}

	result := make([]uint, 0, len(users))
	for userID := range users {
		result = append(result, userID)
	}
	return result
}

// IsUserInRoom checks if a user is currently subscribed to a room.
func (h *ChatHub) IsUserInRoom(userID, roomID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rooms, ok := h.userRooms[userID]; ok {
		_, active := rooms[roomID]
		return active
	}
	return false
}

// StartWiring connects the ChatHub to Redis pub/sub so events published on
// any node reach this node's sockets.
func (h *ChatHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartRoomSubscriber(ctx, func(channel, payload string) {
		var roomID, convID, targetUserID uint
		var msgType string

		switch {
		case scanChannel(channel, "chat:room:%d", &roomID):
			msgType = "message"
		case scanChannel(channel, "typing:room:%d", &roomID):
			msgType = "typing"
		case scanChannel(channel, "presence:room:%d", &roomID):
			msgType = "presence"
		case scanChannel(channel, "dm:conv:%d", &convID):
			msgType = "dm"
		case scanChannel(channel, "moderation:user:%d", &targetUserID):
			msgType = "moderation"
		default:
			log.Printf("ChatHub: Invalid channel format: %s", channel)
			return
		}

		var event ChatEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("ChatHub: Failed to parse event from channel %s: %v", channel, err)
			return
		}
		if event.Type == "" {
			event.Type = msgType
		}

		switch msgType {
		case "dm":
			event.ConvID = convID
			// DM events are addressed to participants, never broadcast.
			h.SendToUser(event.UserID, event)
		case "moderation":
			h.SendToUser(targetUserID, event)
		default:
			event.RoomID = roomID
			h.BroadcastToRoom(roomID, event)
		}
	})
}

func scanChannel(channel, format string, id *uint) bool {
	_, err := fmt.Sscanf(channel, format, id)
	return err == nil
}

// BroadcastGlobalStatus sends a "user_status" event (online/offline) to all
// connected users except the one who triggered it.
func (h *ChatHub) BroadcastGlobalStatus(userID uint, status string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event := ChatEvent{
		Type:    "user_status",
		UserID:  userID,
		Payload: map[string]interface{}{"status": status, "user_id": userID},
	}

	jsonMsg, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: Failed to marshal status event: %v", err)
		return
	}

	for id, clients := range h.userConns {
		if id == userID {
			continue
		}
		for client := range clients {
			client.TrySend(jsonMsg)
		}
	}
}

// Shutdown gracefully closes all websocket connections
func (h *ChatHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"server_shutdown","message":"Server is shutting down"}`)); err != nil {
				log.Printf("failed to write shutdown message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}

	h.rooms = make(map[uint]map[uint]struct{})
	h.userRooms = make(map[uint]map[uint]struct{})
	h.userConns = make(map[uint]map[*Client]bool)

	return nil
}
