package models

import "time"

// PresenceRecord is the durable mirror of a user's presence in a room.
// Upserted on every heartbeat and explicit leave; never hard-deleted. A record
// counts as online only when IsOnline is set AND LastSeenAt is within the
// staleness window, so a crashed client ages out without an explicit leave.
type PresenceRecord struct {
	UserID     uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RoomID     uint      `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	LastSeenAt time.Time `gorm:"not null" json:"last_seen_at"`
	IsOnline   bool      `gorm:"default:false" json:"is_online"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (PresenceRecord) TableName() string {
	return "presence_records"
}

// OnlineAt applies the staleness rule at the given instant.
func (p *PresenceRecord) OnlineAt(now time.Time, staleness time.Duration) bool {
	return p.IsOnline && now.Sub(p.LastSeenAt) <= staleness
}
