package server

import (
	"encoding/base64"

	"github.com/gofiber/fiber/v2"

	"pawhaven/internal/models"
)

// CreateConversation opens (or returns) the conversation with a peer.
func (s *Server) CreateConversation(c *fiber.Ctx) error {
	var req struct {
		PeerID uint `json:"peer_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	conv, err := s.dm.OpenConversation(c.UserContext(), currentUserID(c), req.PeerID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// GetConversations lists the caller's conversations.
func (s *Server) GetConversations(c *fiber.Ctx) error {
	convs, err := s.dm.Conversations(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

// SendDMMessage sends a direct message into a conversation.
func (s *Server) SendDMMessage(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	view, err := s.dm.Send(c.UserContext(), currentUserID(c), convID, req.Content)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// GetDMMessages returns a page of the conversation with payloads opened.
func (s *Server) GetDMMessages(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	beforeID := uint(c.QueryInt("before", 0))
	limit := pageLimit(c, 50, 100)

	views, err := s.dm.Messages(c.UserContext(), currentUserID(c), convID, beforeID, limit)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"messages": views})
}

// MarkConversationRead flags the peer's messages as read.
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.dm.MarkRead(c.UserContext(), currentUserID(c), convID); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// EnrollKey generates a keypair for the caller, keeping the private half in
// this node's key store and publishing the public half to the directory.
func (s *Server) EnrollKey(c *fiber.Ctx) error {
	pub, err := s.dm.EnrollKey(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"public_key": base64.StdEncoding.EncodeToString(pub),
	})
}

// UploadPublicKey stores the caller's X25519 public key in the directory.
func (s *Server) UploadPublicKey(c *fiber.Ctx) error {
	var req struct {
		PublicKey string `json:"public_key"` // base64
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	raw, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("public_key must be base64"))
	}

	if err := s.dm.RegisterPublicKey(c.UserContext(), currentUserID(c), raw); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetPublicKey returns a user's published key, 404 when none exists.
func (s *Server) GetPublicKey(c *fiber.Ctx) error {
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	key, err := s.dm.PublicKey(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	if key == nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("public key", userID))
	}
	return c.JSON(fiber.Map{
		"user_id":    userID,
		"public_key": base64.StdEncoding.EncodeToString(key),
	})
}
