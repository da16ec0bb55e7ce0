package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"pawhaven/internal/models"
	"pawhaven/internal/observability"
	"pawhaven/internal/permissions"
	"pawhaven/internal/presence"
	"pawhaven/internal/repository"
)

// sanctionDurations is the closed duration vocabulary for timed sanctions.
var sanctionDurations = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// silenceMaxDuration caps silences; longer removals are what bans are for.
const silenceMaxDuration = 24 * time.Hour

// requiredPermission maps each action type to the permission the actor needs.
var requiredPermission = map[models.ActionType]string{
	models.ActionKick:    permissions.KickUser,
	models.ActionBan:     permissions.BanUser,
	models.ActionSilence: permissions.SilenceUser,
	models.ActionWarn:    permissions.WarnUser,
}

// RoomKicker removes a user's live connections from a room. Implemented by the
// websocket hub; nil-safe so service tests can run without one.
type RoomKicker interface {
	KickFromRoom(userID, roomID uint)
}

// ModerationPublisher fans moderation events out to other nodes.
type ModerationPublisher interface {
	PublishModeration(ctx context.Context, targetUserID uint, payload string) error
}

// BlockStatus is the result of a sanction check for one user in one room.
// Ban takes precedence: a user who is both banned and silenced reports banned.
type BlockStatus struct {
	Banned    bool       `json:"banned"`
	Silenced  bool       `json:"silenced"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Blocked reports whether the user may not post.
func (b BlockStatus) Blocked() bool {
	return b.Banned || b.Silenced
}

// ApplyRequest describes one sanction to apply.
type ApplyRequest struct {
	ActionType   models.ActionType `json:"action_type"`
	TargetUserID uint              `json:"target_user_id"`
	RoomID       *uint             `json:"room_id,omitempty"`
	Duration     string            `json:"duration,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

// ModerationEngine applies, revokes and evaluates sanctions, and owns the
// flagged-content review queue.
type ModerationEngine struct {
	modRepo  repository.ModerationRepository
	userRepo repository.UserRepository
	roles    *RoleService
	tracker  *presence.Tracker
	kicker   RoomKicker
	notifier ModerationPublisher
}

// NewModerationEngine returns a new ModerationEngine. tracker, kicker and
// notifier may be nil; the corresponding side effects are skipped.
func NewModerationEngine(
	modRepo repository.ModerationRepository,
	userRepo repository.UserRepository,
	roles *RoleService,
	tracker *presence.Tracker,
	kicker RoomKicker,
	notifier ModerationPublisher,
) *ModerationEngine {
	return &ModerationEngine{
		modRepo:  modRepo,
		userRepo: userRepo,
		roles:    roles,
		tracker:  tracker,
		kicker:   kicker,
		notifier: notifier,
	}
}

// IsBlocked evaluates the user's active sanctions for the room. Global rows
// (room_id null) apply everywhere. Duplicate active rows are tolerated; the
// longest-lived matching sanction wins the reported expiry.
func (e *ModerationEngine) IsBlocked(ctx context.Context, userID, roomID uint, now time.Time) (BlockStatus, error) {
	actions, err := e.modRepo.ActiveActionsFor(ctx, userID, now)
	if err != nil {
		return BlockStatus{}, models.NewStorageError(err)
	}

	var status BlockStatus
	pick := func(a *models.ModerationAction) {
		// Permanent beats timed; among timed rows the latest expiry wins.
		if a.ExpiresAt == nil {
			status.ExpiresAt = nil
			status.Reason = a.Reason
			return
		}
		if status.ExpiresAt != nil && a.ExpiresAt.After(*status.ExpiresAt) {
			status.ExpiresAt = a.ExpiresAt
			status.Reason = a.Reason
		}
	}

	for _, a := range actions {
		if !a.AppliesToRoom(roomID) {
			continue
		}
		switch a.ActionType {
		case models.ActionBan:
			if !status.Banned {
				status.Banned = true
				status.Silenced = false
				status.ExpiresAt = a.ExpiresAt
				status.Reason = a.Reason
				continue
			}
			pick(a)
		case models.ActionSilence:
			if status.Banned {
				continue
			}
			if !status.Silenced {
				status.Silenced = true
				status.ExpiresAt = a.ExpiresAt
				status.Reason = a.Reason
				continue
			}
			pick(a)
		}
	}

	return status, nil
}

// Apply validates and applies one sanction. Every applied action writes an
// audit row; kicks additionally drop the target's presence and connections.
func (e *ModerationEngine) Apply(ctx context.Context, actorID uint, req ApplyRequest) (*models.ModerationAction, error) {
	if !req.ActionType.Valid() {
		return nil, models.NewValidationError(fmt.Sprintf("unknown action type %q", req.ActionType))
	}

	allowed, err := e.roles.HasPermission(ctx, actorID, requiredPermission[req.ActionType])
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.NewPermissionDeniedError(
			fmt.Sprintf("%s requires the %s permission", req.ActionType, requiredPermission[req.ActionType]))
	}

	if req.TargetUserID == actorID {
		return nil, models.NewValidationError("cannot apply a moderation action to yourself")
	}
	if _, err := e.userRepo.GetByID(ctx, req.TargetUserID); err != nil {
		return nil, models.NewNotFoundError("user", req.TargetUserID)
	}
	if req.ActionType == models.ActionKick && req.RoomID == nil {
		return nil, models.NewValidationError("kick is room-scoped; room_id is required")
	}

	expiresAt, err := e.resolveExpiry(req.ActionType, req.Duration)
	if err != nil {
		return nil, err
	}

	action := &models.ModerationAction{
		ActionType:   req.ActionType,
		TargetUserID: req.TargetUserID,
		ActorUserID:  actorID,
		RoomID:       req.RoomID,
		Reason:       req.Reason,
		ExpiresAt:    expiresAt,
	}
	if err := e.modRepo.Insert(ctx, action); err != nil {
		return nil, models.NewStorageError(err)
	}

	if req.ActionType == models.ActionKick {
		if e.tracker != nil {
			e.tracker.Leave(ctx, req.TargetUserID, *req.RoomID)
		}
		if e.kicker != nil {
			e.kicker.KickFromRoom(req.TargetUserID, *req.RoomID)
		}
	}

	observability.RecordModerationAction(string(req.ActionType))
	e.publish(ctx, req.TargetUserID, map[string]interface{}{
		"type":        "moderation_action",
		"action_type": req.ActionType,
		"room_id":     req.RoomID,
		"expires_at":  expiresAt,
		"reason":      req.Reason,
	})

	return action, nil
}

// resolveExpiry turns a duration token into an expiry timestamp. Kicks and
// warns are audit-only and carry no expiry regardless of input.
func (e *ModerationEngine) resolveExpiry(actionType models.ActionType, duration string) (*time.Time, error) {
	if actionType == models.ActionKick || actionType == models.ActionWarn {
		return nil, nil
	}

	if duration == "permanent" {
		if actionType == models.ActionSilence {
			return nil, models.NewValidationError("silence cannot be permanent; use ban instead")
		}
		return nil, nil
	}

	d, ok := sanctionDurations[duration]
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown duration %q", duration))
	}
	if actionType == models.ActionSilence && d > silenceMaxDuration {
		return nil, models.NewValidationError(
			fmt.Sprintf("silence duration %s exceeds the %s maximum; use ban instead", duration, silenceMaxDuration))
	}
	expires := time.Now().Add(d)
	return &expires, nil
}

// Revoke lifts every active sanction of the given type against the target in
// the given scope. Revoking when nothing is active is a successful no-op.
func (e *ModerationEngine) Revoke(ctx context.Context, actorID uint, actionType models.ActionType, targetUserID uint, roomID *uint) (int64, error) {
	if actionType != models.ActionBan && actionType != models.ActionSilence {
		return 0, models.NewValidationError(fmt.Sprintf("%s sanctions are not revocable", actionType))
	}

	allowed, err := e.roles.HasPermission(ctx, actorID, requiredPermission[actionType])
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, models.NewPermissionDeniedError(
			fmt.Sprintf("revoking a %s requires the %s permission", actionType, requiredPermission[actionType]))
	}

	revoked, err := e.modRepo.RevokeActive(ctx, actionType, targetUserID, roomID, time.Now())
	if err != nil {
		return 0, models.NewStorageError(err)
	}

	if revoked > 0 {
		observability.RecordModerationAction("revoke_" + string(actionType))
		e.publish(ctx, targetUserID, map[string]interface{}{
			"type":        "moderation_revoked",
			"action_type": actionType,
			"room_id":     roomID,
		})
	}
	return revoked, nil
}

// History returns the target's moderation record, newest first. Requires any
// sanctioning permission so regular members cannot browse each other's files.
func (e *ModerationEngine) History(ctx context.Context, actorID, targetUserID uint, limit int) ([]*models.ModerationAction, error) {
	set, err := e.roles.EffectivePermissions(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !set.Has(permissions.WarnUser) && !set.Has(permissions.BanUser) {
		return nil, models.NewPermissionDeniedError("viewing moderation history requires a moderation permission")
	}

	actions, err := e.modRepo.ActionsForUser(ctx, targetUserID, limit)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return actions, nil
}

// PendingReview lists blocked log entries awaiting a reviewer, oldest first.
func (e *ModerationEngine) PendingReview(ctx context.Context, actorID uint, limit int) ([]*models.ModerationLogEntry, error) {
	allowed, err := e.roles.HasPermission(ctx, actorID, permissions.DeleteMessage)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.NewPermissionDeniedError("reviewing flagged content requires the delete_message permission")
	}

	entries, err := e.modRepo.PendingLogEntries(ctx, limit)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return entries, nil
}

// FinalizeReview records a reviewer's verdict on a blocked entry. A downgrade
// to allowed is a trust signal only; the rejected content is never posted.
func (e *ModerationEngine) FinalizeReview(ctx context.Context, actorID uint, entryID string, verdict models.LogAction) error {
	allowed, err := e.roles.HasPermission(ctx, actorID, permissions.DeleteMessage)
	if err != nil {
		return err
	}
	if !allowed {
		return models.NewPermissionDeniedError("reviewing flagged content requires the delete_message permission")
	}
	if verdict != models.LogAllowed && verdict != models.LogBlocked {
		return models.NewValidationError(fmt.Sprintf("review verdict must be allowed or blocked, got %q", verdict))
	}

	entry, err := e.modRepo.GetLogEntry(ctx, entryID)
	if err != nil {
		return models.NewNotFoundError("moderation log entry", entryID)
	}
	if !entry.PendingReview() {
		return models.NewValidationError("entry is not pending review")
	}

	if err := e.modRepo.FinalizeReview(ctx, entryID, actorID, verdict, time.Now()); err != nil {
		return models.NewStorageError(err)
	}
	return nil
}

func (e *ModerationEngine) publish(ctx context.Context, targetUserID uint, payload map[string]interface{}) {
	if e.notifier == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.notifier.PublishModeration(ctx, targetUserID, string(raw)); err != nil {
		slog.WarnContext(ctx, "failed to publish moderation event",
			"target_user_id", targetUserID, "error", err)
	}
}
