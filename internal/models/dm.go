package models

import "time"

// DMConversation is a 1:1 conversation. The participant pair is stored ordered
// (lower user id first) so the unique index covers both directions.
type DMConversation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ParticipantA  uint       `gorm:"not null;uniqueIndex:idx_dm_conversation_pair" json:"participant_a"`
	ParticipantB  uint       `gorm:"not null;uniqueIndex:idx_dm_conversation_pair" json:"participant_b"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (DMConversation) TableName() string {
	return "dm_conversations"
}

// Includes reports whether the user participates in the conversation.
func (c *DMConversation) Includes(userID uint) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Peer returns the other participant's id.
func (c *DMConversation) Peer(userID uint) uint {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// OrderedPair normalizes a participant pair for storage and lookup.
func OrderedPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// DMMessage is a direct message. EncryptedContent carries the sealed payload
// when both participants had exchanged public keys at send time; otherwise
// Content holds the plaintext fallback. Immutable after insert except for the
// read flag.
type DMMessage struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ConversationID   uint       `gorm:"not null;index" json:"conversation_id"`
	SenderID         uint       `gorm:"not null;index" json:"sender_id"`
	Sender           *User      `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content          string     `gorm:"type:text" json:"content,omitempty"`
	EncryptedContent []byte     `gorm:"type:bytea" json:"encrypted_content,omitempty"`
	IsRead           bool       `gorm:"default:false" json:"is_read"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (DMMessage) TableName() string {
	return "dm_messages"
}

// Encrypted reports whether the message carries a sealed payload.
func (m *DMMessage) Encrypted() bool {
	return len(m.EncryptedContent) > 0
}

// UserPublicKey is the shared directory entry for a user's X25519 public key.
// Private keys never reach this table; they stay in holder-local storage.
type UserPublicKey struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PublicKey []byte    `gorm:"type:bytea;not null" json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (UserPublicKey) TableName() string {
	return "user_public_keys"
}
