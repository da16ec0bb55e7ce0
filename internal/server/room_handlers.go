package server

import (
	"github.com/gofiber/fiber/v2"

	"pawhaven/internal/models"
	"pawhaven/internal/permissions"
	"pawhaven/internal/service"
)

// GetRooms lists the active chat rooms.
func (s *Server) GetRooms(c *fiber.Ctx) error {
	rooms, err := s.chat.Rooms(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

// CreateRoom creates a new chat room.
func (s *Server) CreateRoom(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name"`
		Slug        string `json:"slug"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	room, err := s.chat.CreateRoom(c.UserContext(), currentUserID(c), req.Name, req.Slug, req.Description)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// GetRoom returns one room.
func (s *Server) GetRoom(c *fiber.Ctx) error {
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	room, err := s.chat.Room(c.UserContext(), roomID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(room)
}

// GetRoomMessages returns a page of room history, oldest first, ending just
// before the ?before= cursor.
func (s *Server) GetRoomMessages(c *fiber.Ctx) error {
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	beforeID := uint(c.QueryInt("before", 0))
	limit := pageLimit(c, 50, 100)

	msgs, err := s.chat.History(c.UserContext(), roomID, beforeID, limit)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	// Role badges for each distinct author, so clients can render them
	// without a request per message.
	badges := make(map[uint][]permissions.Role)
	for _, msg := range msgs {
		if _, ok := badges[msg.AuthorID]; ok {
			continue
		}
		authorBadges, err := s.roles.Badges(c.UserContext(), msg.AuthorID)
		if err != nil {
			continue
		}
		badges[msg.AuthorID] = authorBadges
	}

	return c.JSON(fiber.Map{"messages": msgs, "badges": badges})
}

// PostRoomMessage submits a message through the admission pipeline.
func (s *Server) PostRoomMessage(c *fiber.Ctx) error {
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Content   string `json:"content"`
		ImageURL  string `json:"image_url"`
		ReplyToID *uint  `json:"reply_to_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	msg, err := s.admission.Submit(c.UserContext(), service.SubmitRequest{
		AuthorID:  currentUserID(c),
		RoomID:    roomID,
		Content:   req.Content,
		ImageURL:  req.ImageURL,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// DeleteRoomMessage soft-deletes a message.
func (s *Server) DeleteRoomMessage(c *fiber.Ctx) error {
	messageID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}

	if err := s.chat.DeleteMessage(c.UserContext(), currentUserID(c), messageID); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetReactions returns a message's reactions aggregated per emoji.
func (s *Server) GetReactions(c *fiber.Ctx) error {
	messageID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}

	summaries, err := s.chat.Reactions(c.UserContext(), messageID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"reactions": summaries})
}

// AddReaction adds the caller's reaction to a message.
func (s *Server) AddReaction(c *fiber.Ctx) error {
	messageID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.chat.React(c.UserContext(), currentUserID(c), messageID, req.Emoji); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveReaction removes the caller's reaction from a message.
func (s *Server) RemoveReaction(c *fiber.Ctx) error {
	messageID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.chat.Unreact(c.UserContext(), currentUserID(c), messageID, req.Emoji); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
