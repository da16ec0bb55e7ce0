package repository

import (
	"context"
	"errors"
	"time"

	"pawhaven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DMRepository defines the interface for direct message storage.
type DMRepository interface {
	GetOrCreateConversation(ctx context.Context, userA, userB uint) (*models.DMConversation, error)
	GetConversation(ctx context.Context, id uint) (*models.DMConversation, error)
	ListConversations(ctx context.Context, userID uint) ([]*models.DMConversation, error)

	CreateMessage(ctx context.Context, msg *models.DMMessage) error
	CreateMessageWithLog(ctx context.Context, msg *models.DMMessage, entry *models.ModerationLogEntry) error
	GetMessages(ctx context.Context, conversationID uint, beforeID uint, limit int) ([]*models.DMMessage, error)
	MarkRead(ctx context.Context, conversationID, readerID uint, now time.Time) error
}

type dmRepository struct {
	db *gorm.DB
}

// NewDMRepository creates a new direct message repository
func NewDMRepository(db *gorm.DB) DMRepository {
	return &dmRepository{db: db}
}

// GetOrCreateConversation finds the conversation for the ordered pair, creating
// it on first contact. The unique pair index makes concurrent creation safe.
func (r *dmRepository) GetOrCreateConversation(ctx context.Context, userA, userB uint) (*models.DMConversation, error) {
	a, b := models.OrderedPair(userA, userB)

	var conv models.DMConversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", a, b).
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = models.DMConversation{ParticipantA: a, ParticipantB: b}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&conv).Error; err != nil {
		return nil, err
	}
	if conv.ID == 0 {
		// Lost the race; fetch the winner's row.
		if err := r.db.WithContext(ctx).
			Where("participant_a = ? AND participant_b = ?", a, b).
			First(&conv).Error; err != nil {
			return nil, err
		}
	}
	return &conv, nil
}

func (r *dmRepository) GetConversation(ctx context.Context, id uint) (*models.DMConversation, error) {
	var conv models.DMConversation
	err := r.db.WithContext(ctx).First(&conv, id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *dmRepository) ListConversations(ctx context.Context, userID uint) ([]*models.DMConversation, error) {
	var conversations []*models.DMConversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Find(&conversations).Error
	return conversations, err
}

func (r *dmRepository) CreateMessage(ctx context.Context, msg *models.DMMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.DMConversation{}).
			Where("id = ?", msg.ConversationID).
			Update("last_message_at", msg.CreatedAt).Error
	})
}

// CreateMessageWithLog writes the message and its moderation log entry in one
// transaction, so a filtered message never posts without its audit row and a
// failed post never leaves a stray audit row.
func (r *dmRepository) CreateMessageWithLog(ctx context.Context, msg *models.DMMessage, entry *models.ModerationLogEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if entry != nil {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.DMConversation{}).
			Where("id = ?", msg.ConversationID).
			Update("last_message_at", msg.CreatedAt).Error
	})
}

func (r *dmRepository) GetMessages(ctx context.Context, conversationID uint, beforeID uint, limit int) ([]*models.DMMessage, error) {
	var messages []*models.DMMessage
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// MarkRead flags every message in the conversation not sent by the reader.
func (r *dmRepository) MarkRead(ctx context.Context, conversationID, readerID uint, now time.Time) error {
	return r.db.WithContext(ctx).Model(&models.DMMessage{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		}).Error
}
