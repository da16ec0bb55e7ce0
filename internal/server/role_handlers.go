package server

import (
	"github.com/gofiber/fiber/v2"

	"pawhaven/internal/models"
)

// GetRoleCatalog returns the fixed role catalog (excluding the virtual admin
// role, which is derived from the site-admin flag).
func (s *Server) GetRoleCatalog(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"roles": s.registry.Roles()})
}

// AssignRole grants a catalog role to a user.
func (s *Server) AssignRole(c *fiber.Ctx) error {
	var req struct {
		UserID   uint   `json:"user_id"`
		RoleName string `json:"role_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.roles.Assign(c.UserContext(), currentUserID(c), req.UserID, req.RoleName); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RevokeRole removes a catalog role from a user.
func (s *Server) RevokeRole(c *fiber.Ctx) error {
	var req struct {
		UserID   uint   `json:"user_id"`
		RoleName string `json:"role_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.roles.Revoke(c.UserContext(), currentUserID(c), req.UserID, req.RoleName); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetUserBadges returns a user's displayable role badges, highest priority
// first, plus their effective permission strings.
func (s *Server) GetUserBadges(c *fiber.Ctx) error {
	userID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	badges, err := s.roles.Badges(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	perms, err := s.roles.EffectivePermissions(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"badges":      badges,
		"permissions": perms.Sorted(),
	})
}
