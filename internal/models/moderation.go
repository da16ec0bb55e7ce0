package models

import "time"

// ActionType identifies the kind of moderation sanction.
type ActionType string

const (
	// ActionWarn is an auditable, user-visible notice with no access effect.
	ActionWarn ActionType = "warn"
	// ActionKick removes the user from a room immediately; the stored row is
	// audit-only and never blocks later posting.
	ActionKick ActionType = "kick"
	// ActionSilence prevents posting while still permitting reading.
	ActionSilence ActionType = "silence"
	// ActionBan prevents posting entirely; stronger than silence.
	ActionBan ActionType = "ban"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionWarn, ActionKick, ActionSilence, ActionBan:
		return true
	}
	return false
}

// ModerationAction is a timed sanction against a user, scoped to one room
// (RoomID set) or globally (RoomID nil). Created and revoked only through the
// moderation engine.
type ModerationAction struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ActionType   ActionType `gorm:"type:varchar(16);not null;index:idx_mod_actions_target" json:"action_type"`
	TargetUserID uint       `gorm:"not null;index:idx_mod_actions_target" json:"target_user_id"`
	TargetUser   *User      `gorm:"foreignKey:TargetUserID" json:"target_user,omitempty"`
	ActorUserID  uint       `gorm:"not null;index" json:"actor_user_id"`
	ActorUser    *User      `gorm:"foreignKey:ActorUserID" json:"actor_user,omitempty"`
	RoomID       *uint      `gorm:"index" json:"room_id,omitempty"`
	Reason       string     `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// TableName specifies the table name for GORM.
func (ModerationAction) TableName() string {
	return "moderation_actions"
}

// ActiveAt reports whether the sanction is in force at the given instant:
// not revoked, and either permanent or not yet expired.
func (a *ModerationAction) ActiveAt(now time.Time) bool {
	if a.RevokedAt != nil {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// AppliesToRoom reports whether the sanction covers the given room, either
// directly or through global scope.
func (a *ModerationAction) AppliesToRoom(roomID uint) bool {
	return a.RoomID == nil || *a.RoomID == roomID
}
