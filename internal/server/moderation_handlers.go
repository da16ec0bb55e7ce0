package server

import (
	"github.com/gofiber/fiber/v2"

	"pawhaven/internal/models"
	"pawhaven/internal/service"
)

// ApplyModerationAction applies a sanction (warn, kick, silence, ban).
func (s *Server) ApplyModerationAction(c *fiber.Ctx) error {
	var req service.ApplyRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	action, err := s.moderation.Apply(c.UserContext(), currentUserID(c), req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(action)
}

// RevokeModerationAction lifts active sanctions of one type against a user.
// Revoking when nothing is active succeeds with revoked: 0.
func (s *Server) RevokeModerationAction(c *fiber.Ctx) error {
	var req struct {
		ActionType   models.ActionType `json:"action_type"`
		TargetUserID uint              `json:"target_user_id"`
		RoomID       *uint             `json:"room_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	revoked, err := s.moderation.Revoke(c.UserContext(), currentUserID(c), req.ActionType, req.TargetUserID, req.RoomID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"revoked": revoked})
}

// GetModerationActions lists a user's moderation record, newest first.
func (s *Server) GetModerationActions(c *fiber.Ctx) error {
	targetID := uint(c.QueryInt("userId", 0))
	if targetID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("userId query parameter required"))
	}
	limit := pageLimit(c, 50, 200)

	actions, err := s.moderation.History(c.UserContext(), currentUserID(c), targetID, limit)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"actions": actions})
}

// GetReviewQueue lists blocked log entries awaiting review, oldest first.
func (s *Server) GetReviewQueue(c *fiber.Ctx) error {
	limit := pageLimit(c, 50, 200)

	entries, err := s.moderation.PendingReview(c.UserContext(), currentUserID(c), limit)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	type reviewEntry struct {
		*models.ModerationLogEntry
		Flags []string `json:"flags"`
	}
	out := make([]reviewEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, reviewEntry{ModerationLogEntry: e, Flags: e.FlagList()})
	}
	return c.JSON(fiber.Map{"entries": out})
}

// FinalizeReview records a verdict on one blocked entry.
func (s *Server) FinalizeReview(c *fiber.Ctx) error {
	entryID := c.Params("id")
	if entryID == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid entry ID"))
	}

	var req struct {
		Verdict models.LogAction `json:"verdict"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.moderation.FinalizeReview(c.UserContext(), currentUserID(c), entryID, req.Verdict); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
