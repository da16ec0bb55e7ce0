package repository

import (
	"context"
	"errors"

	"pawhaven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyRepository defines the interface for the public key directory.
type KeyRepository interface {
	Upsert(ctx context.Context, key *models.UserPublicKey) error
	// Get returns (nil, nil) when the user has not published a key. Absence
	// is an expected state that drives the plaintext fallback, not an error.
	Get(ctx context.Context, userID uint) (*models.UserPublicKey, error)
}

type keyRepository struct {
	db *gorm.DB
}

// NewKeyRepository creates a new public key repository
func NewKeyRepository(db *gorm.DB) KeyRepository {
	return &keyRepository{db: db}
}

func (r *keyRepository) Upsert(ctx context.Context, key *models.UserPublicKey) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"public_key", "updated_at"}),
	}).Create(key).Error
}

func (r *keyRepository) Get(ctx context.Context, userID uint) (*models.UserPublicKey, error) {
	var key models.UserPublicKey
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}
