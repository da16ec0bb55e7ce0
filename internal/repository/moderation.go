package repository

import (
	"context"
	"time"

	"pawhaven/internal/models"

	"gorm.io/gorm"
)

// ModerationRepository defines the interface for sanction and audit log storage.
type ModerationRepository interface {
	Insert(ctx context.Context, action *models.ModerationAction) error
	ActiveActionsFor(ctx context.Context, targetUserID uint, now time.Time) ([]*models.ModerationAction, error)
	ActionsForUser(ctx context.Context, targetUserID uint, limit int) ([]*models.ModerationAction, error)
	RevokeActive(ctx context.Context, actionType models.ActionType, targetUserID uint, roomID *uint, now time.Time) (int64, error)

	CreateLogEntry(ctx context.Context, entry *models.ModerationLogEntry) error
	GetLogEntry(ctx context.Context, id string) (*models.ModerationLogEntry, error)
	PendingLogEntries(ctx context.Context, limit int) ([]*models.ModerationLogEntry, error)
	FinalizeReview(ctx context.Context, id string, reviewerID uint, action models.LogAction, now time.Time) error
}

type moderationRepository struct {
	db *gorm.DB
}

// NewModerationRepository creates a new moderation repository
func NewModerationRepository(db *gorm.DB) ModerationRepository {
	return &moderationRepository{db: db}
}

func (r *moderationRepository) Insert(ctx context.Context, action *models.ModerationAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

// ActiveActionsFor returns every sanction against the user that is still in
// force: not revoked, and either permanent or unexpired. Overlapping sanctions
// of the same type are all returned; precedence is decided by the caller.
func (r *moderationRepository) ActiveActionsFor(ctx context.Context, targetUserID uint, now time.Time) ([]*models.ModerationAction, error) {
	var actions []*models.ModerationAction
	err := r.db.WithContext(ctx).
		Where("target_user_id = ? AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", targetUserID, now).
		Order("created_at DESC").
		Find(&actions).Error
	return actions, err
}

func (r *moderationRepository) ActionsForUser(ctx context.Context, targetUserID uint, limit int) ([]*models.ModerationAction, error) {
	var actions []*models.ModerationAction
	err := r.db.WithContext(ctx).
		Where("target_user_id = ?", targetUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&actions).Error
	return actions, err
}

// RevokeActive stamps revoked_at on all matching active sanctions and returns
// how many rows it touched. Zero matches is not an error, so revocation stays
// idempotent.
func (r *moderationRepository) RevokeActive(ctx context.Context, actionType models.ActionType, targetUserID uint, roomID *uint, now time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.ModerationAction{}).
		Where("action_type = ? AND target_user_id = ? AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)",
			actionType, targetUserID, now)
	if roomID == nil {
		q = q.Where("room_id IS NULL")
	} else {
		q = q.Where("room_id = ?", *roomID)
	}
	res := q.Update("revoked_at", now)
	return res.RowsAffected, res.Error
}

func (r *moderationRepository) CreateLogEntry(ctx context.Context, entry *models.ModerationLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *moderationRepository) GetLogEntry(ctx context.Context, id string) (*models.ModerationLogEntry, error) {
	var entry models.ModerationLogEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PendingLogEntries returns blocked entries awaiting review, oldest first.
func (r *moderationRepository) PendingLogEntries(ctx context.Context, limit int) ([]*models.ModerationLogEntry, error) {
	var entries []*models.ModerationLogEntry
	err := r.db.WithContext(ctx).
		Where("action_taken = ? AND reviewed_at IS NULL", models.LogBlocked).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *moderationRepository) FinalizeReview(ctx context.Context, id string, reviewerID uint, action models.LogAction, now time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ModerationLogEntry{}).
		Where("id = ? AND reviewed_at IS NULL", id).
		Updates(map[string]interface{}{
			"action_taken": action,
			"reviewed_by":  reviewerID,
			"reviewed_at":  now,
		}).Error
}
