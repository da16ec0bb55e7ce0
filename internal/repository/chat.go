package repository

import (
	"context"

	"pawhaven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository defines the interface for room and message data operations
type ChatRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, id uint) (*models.ChatRoom, error)
	GetRoomBySlug(ctx context.Context, slug string) (*models.ChatRoom, error)
	ListRooms(ctx context.Context) ([]*models.ChatRoom, error)

	CreateMessage(ctx context.Context, msg *models.RoomMessage) error
	CreateMessageWithLog(ctx context.Context, msg *models.RoomMessage, entry *models.ModerationLogEntry) error
	GetMessage(ctx context.Context, id uint) (*models.RoomMessage, error)
	GetMessages(ctx context.Context, roomID uint, beforeID uint, limit int) ([]*models.RoomMessage, error)
	SoftDeleteMessage(ctx context.Context, id uint) error

	AddReaction(ctx context.Context, reaction *models.MessageReaction) error
	RemoveReaction(ctx context.Context, messageID, userID uint, emoji string) error
	ListReactions(ctx context.Context, messageID uint) ([]*models.MessageReaction, error)
	CreateMentions(ctx context.Context, mentions []models.MessageMention) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *chatRepository) GetRoom(ctx context.Context, id uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *chatRepository) GetRoomBySlug(ctx context.Context, slug string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *chatRepository) ListRooms(ctx context.Context) ([]*models.ChatRoom, error) {
	var rooms []*models.ChatRoom
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("name ASC").Find(&rooms).Error
	return rooms, err
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.RoomMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// CreateMessageWithLog writes the message and its moderation log entry in one
// transaction, so a filtered message never posts without its audit row.
func (r *chatRepository) CreateMessageWithLog(ctx context.Context, msg *models.RoomMessage, entry *models.ModerationLogEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if entry != nil {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *chatRepository) GetMessage(ctx context.Context, id uint) (*models.RoomMessage, error) {
	var msg models.RoomMessage
	err := r.db.WithContext(ctx).Preload("Author").First(&msg, id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessages returns up to limit messages for the room in chronological
// order. When beforeID is non-zero only messages older than it are returned,
// which gives cursor-style backward pagination.
func (r *chatRepository) GetMessages(ctx context.Context, roomID uint, beforeID uint, limit int) ([]*models.RoomMessage, error) {
	var messages []*models.RoomMessage
	q := r.db.WithContext(ctx).
		Where("room_id = ? AND is_deleted = ?", roomID, false).
		Preload("Author").
		Preload("Reactions").
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}

	// We fetched DESC to get the *latest* messages, but the client expects ASC
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) SoftDeleteMessage(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.RoomMessage{}).Where("id = ?", id).Update("is_deleted", true).Error
}

func (r *chatRepository) AddReaction(ctx context.Context, reaction *models.MessageReaction) error {
	// Duplicate reactions from the same user are a no-op.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(reaction).Error
}

func (r *chatRepository) RemoveReaction(ctx context.Context, messageID, userID uint, emoji string) error {
	return r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.MessageReaction{}).Error
}

func (r *chatRepository) ListReactions(ctx context.Context, messageID uint) ([]*models.MessageReaction, error) {
	var reactions []*models.MessageReaction
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&reactions).Error
	return reactions, err
}

func (r *chatRepository) CreateMentions(ctx context.Context, mentions []models.MessageMention) error {
	if len(mentions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&mentions).Error
}
