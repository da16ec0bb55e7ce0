package repository

import (
	"context"
	"time"

	"pawhaven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PresenceRepository defines the interface for the durable presence mirror.
type PresenceRepository interface {
	Upsert(ctx context.Context, record *models.PresenceRecord) error
	SetOffline(ctx context.Context, userID, roomID uint, now time.Time) error
	ListOnline(ctx context.Context, roomID uint, now time.Time, staleness time.Duration) ([]*models.PresenceRecord, error)
	Get(ctx context.Context, userID, roomID uint) (*models.PresenceRecord, error)
}

type presenceRepository struct {
	db *gorm.DB
}

// NewPresenceRepository creates a new presence repository
func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &presenceRepository{db: db}
}

func (r *presenceRepository) Upsert(ctx context.Context, record *models.PresenceRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "is_online", "updated_at"}),
	}).Create(record).Error
}

func (r *presenceRepository) SetOffline(ctx context.Context, userID, roomID uint, now time.Time) error {
	return r.db.WithContext(ctx).Model(&models.PresenceRecord{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Updates(map[string]interface{}{
			"is_online":    false,
			"last_seen_at": now,
		}).Error
}

// ListOnline applies the staleness rule in the query so crashed clients age
// out without an explicit leave.
func (r *presenceRepository) ListOnline(ctx context.Context, roomID uint, now time.Time, staleness time.Duration) ([]*models.PresenceRecord, error) {
	var records []*models.PresenceRecord
	cutoff := now.Add(-staleness)
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND is_online = ? AND last_seen_at >= ?", roomID, true, cutoff).
		Find(&records).Error
	return records, err
}

func (r *presenceRepository) Get(ctx context.Context, userID, roomID uint) (*models.PresenceRecord, error) {
	var record models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
