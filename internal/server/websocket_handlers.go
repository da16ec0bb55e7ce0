package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"pawhaven/internal/middleware"
	"pawhaven/internal/models"
	"pawhaven/internal/notifications"
	"pawhaven/internal/observability"
	"pawhaven/internal/service"
)

// IssueWSTicket issues a short-lived single-use ticket the client presents on
// the WebSocket upgrade. Browsers cannot set headers on upgrade requests.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("ticket store unavailable")))
	}

	ticket, err := middleware.IssueWSTicket(c.UserContext(), s.redis, currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"ticket": ticket})
}

// WebSocketChatHandler handles WebSocket connections for real-time chat.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		observability.WebSocketConnectionsTotal.Inc()
		defer observability.WebSocketConnectionsTotal.Dec()

		ctx := context.Background()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			log.Printf("WebSocket Chat: Failed to get user %d: %v", userID, err)
			_ = conn.Close()
			return
		}

		if s.chatHub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.chatHub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket Chat: Failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var incoming map[string]interface{}
			if err := json.Unmarshal(message, &incoming); err != nil {
				log.Printf("WebSocket: Invalid message format from user %d", userID)
				return
			}

			msgType, ok := incoming["type"].(string)
			if !ok {
				return
			}
			observability.WebSocketEventsTotal.WithLabelValues(msgType).Inc()

			roomID := uint(0)
			if roomIDFloat, ok := incoming["room_id"].(float64); ok {
				roomID = uint(roomIDFloat)
			}

			switch msgType {
			case "join":
				if roomID == 0 {
					return
				}
				room, err := s.chatRepo.GetRoom(ctx, roomID)
				if err != nil || !room.IsActive {
					return
				}
				s.chatHub.JoinRoom(userID, roomID)
				s.tracker.Heartbeat(ctx, userID, roomID)

				response := notifications.ChatEvent{
					Type:    "joined",
					RoomID:  roomID,
					Payload: map[string]interface{}{"room_id": roomID},
				}
				if responseJSON, err := json.Marshal(response); err == nil {
					c.TrySend(responseJSON)
				}

			case "leave":
				if roomID == 0 {
					return
				}
				s.chatHub.LeaveRoom(userID, roomID)
				s.tracker.Leave(ctx, userID, roomID)

			case "heartbeat":
				if roomID != 0 {
					s.tracker.Heartbeat(ctx, userID, roomID)
				}

			case "typing":
				if roomID == 0 || s.notifier == nil || !s.chatHub.IsUserInRoom(userID, roomID) {
					return
				}
				isTyping, _ := incoming["is_typing"].(bool)

				// Drop spammy typing indicators silently.
				id := fmt.Sprintf("user:%d", userID)
				allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "typing", id, 10, 10*time.Second)
				if !allowed {
					return
				}
				if perr := s.notifier.PublishTypingIndicator(ctx, roomID, userID, user.Username, isTyping); perr != nil {
					log.Printf("publish typing indicator error: %v", perr)
				}

			case "message":
				if roomID == 0 {
					return
				}
				content, _ := incoming["content"].(string)

				// Same pipeline as the HTTP endpoint: sanctions, rate
				// limit, shape and filter all apply.
				_, err := s.admission.Submit(ctx, service.SubmitRequest{
					AuthorID: userID,
					RoomID:   roomID,
					Content:  content,
				})
				if err != nil {
					response := notifications.ChatEvent{
						Type:   "error",
						RoomID: roomID,
						Payload: map[string]string{
							"code":    models.CodeOf(err),
							"message": err.Error(),
						},
					}
					if respJSON, merr := json.Marshal(response); merr == nil {
						c.TrySend(respJSON)
					}
				}
			}
		}

		go client.WritePump()
		client.ReadPump()
	})
}
