package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatRoom is a named community room (e.g. "general", "dog-training").
type ChatRoom struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:120;not null" json:"name"`
	Slug        string         `gorm:"size:48;not null;uniqueIndex" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for GORM.
func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// RoomMessage is a message accepted by the admission pipeline. Content is the
// post-filter text; the original text of a filtered message is never stored
// here. Immutable after insert except for the IsDeleted flag.
type RoomMessage struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	RoomID    uint       `gorm:"not null;index:idx_room_messages_room_created" json:"room_id"`
	Room      *ChatRoom  `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	AuthorID  uint       `gorm:"not null;index" json:"author_id"`
	Author    *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	ImageURL  string     `gorm:"size:512" json:"image_url,omitempty"`
	ReplyToID *uint      `gorm:"index" json:"reply_to_id,omitempty"`
	IsDeleted bool       `gorm:"default:false" json:"is_deleted"`
	CreatedAt time.Time  `gorm:"index:idx_room_messages_room_created" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
	Mentions  []MessageMention  `gorm:"foreignKey:MessageID" json:"mentions,omitempty"`
}

// TableName specifies the table name for GORM.
func (RoomMessage) TableName() string {
	return "room_messages"
}

// MessageReaction is a single (message, emoji, user) tuple. Aggregation into
// emoji -> count/users happens at read time.
type MessageReaction struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Emoji     string    `gorm:"primaryKey;size:32" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (MessageReaction) TableName() string {
	return "message_reactions"
}

// MessageMention records a user mentioned in a room message.
type MessageMention struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	MessageID       uint      `gorm:"not null;index" json:"message_id"`
	Message         *RoomMessage `gorm:"foreignKey:MessageID" json:"message,omitempty"`
	RoomID          uint      `gorm:"not null;index" json:"room_id"`
	MentionedUserID uint      `gorm:"not null;index" json:"mentioned_user_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (MessageMention) TableName() string {
	return "message_mentions"
}
