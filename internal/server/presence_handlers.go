package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"pawhaven/internal/models"
)

// PostPresence records a heartbeat or an explicit leave for the caller.
func (s *Server) PostPresence(c *fiber.Ctx) error {
	var req struct {
		RoomID uint   `json:"room_id"`
		Event  string `json:"event"` // "heartbeat" or "leave"
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.RoomID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("room_id required"))
	}

	if _, err := s.chat.Room(c.UserContext(), req.RoomID); err != nil {
		return models.RespondWithAppError(c, err)
	}

	userID := currentUserID(c)
	switch req.Event {
	case "", "heartbeat":
		s.tracker.Heartbeat(c.UserContext(), userID, req.RoomID)
	case "leave":
		s.tracker.Leave(c.UserContext(), userID, req.RoomID)
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("event must be heartbeat or leave"))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetPresence returns the users currently online in a room.
func (s *Server) GetPresence(c *fiber.Ctx) error {
	roomID := uint(c.QueryInt("room", 0))
	if roomID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("room query parameter required"))
	}

	online := s.tracker.ListOnline(c.UserContext(), roomID)
	return c.JSON(fiber.Map{
		"room_id": roomID,
		"online":  online,
	})
}

// onPresenceChanged is the tracker's debounced change callback; it relays the
// fresh roster to every node's room subscribers.
func (s *Server) onPresenceChanged(roomID uint, online []uint) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"type":    "presence_changed",
		"room_id": roomID,
		"online":  online,
	})
	if err != nil {
		return
	}
	if err := s.notifier.PublishPresence(context.Background(), roomID, string(payload)); err != nil {
		slog.Warn("failed to publish presence change", "room_id", roomID, "error", err)
	}
}

// onActivitySummary relays the periodic joined/left digest for a room.
func (s *Server) onActivitySummary(roomID uint, joined, left []uint) {
	s.maybeWelcomeJoined(roomID, joined)

	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"type":    "activity_summary",
		"room_id": roomID,
		"joined":  joined,
		"left":    left,
	})
	if err != nil {
		return
	}
	if err := s.notifier.PublishPresence(context.Background(), roomID, string(payload)); err != nil {
		slog.Warn("failed to publish activity summary", "room_id", roomID, "error", err)
	}
}
