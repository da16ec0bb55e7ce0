package models

import (
	"strings"
	"time"
)

// LogAction is the admission-pipeline outcome recorded in the moderation log.
type LogAction string

const (
	// LogAllowed means the content passed the filter unchanged, or a reviewer
	// downgraded a filtered/blocked entry.
	LogAllowed LogAction = "allowed"
	// LogFiltered means profanity/spam was masked but the message still posted.
	LogFiltered LogAction = "filtered"
	// LogBlocked means the message was rejected entirely.
	LogBlocked LogAction = "blocked"
)

// ModerationLogEntry is the audit row written for every filtered or blocked
// message. Blocked entries without a reviewer form the pending-review queue.
type ModerationLogEntry struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	UserID         uint       `gorm:"not null;index" json:"user_id"`
	User           *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ContentType    string     `gorm:"size:32;not null" json:"content_type"`
	ContentPreview string     `gorm:"size:256" json:"content_preview"`
	Flags          string     `gorm:"type:text" json:"-"`
	ActionTaken    LogAction  `gorm:"type:varchar(20);not null;index" json:"action_taken"`
	ReviewedBy     *uint      `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ModerationLogEntry) TableName() string {
	return "moderation_log_entries"
}

// FlagList splits the stored flags into a slice for API responses.
func (e *ModerationLogEntry) FlagList() []string {
	if e.Flags == "" {
		return []string{}
	}
	return strings.Split(e.Flags, ",")
}

// SetFlags stores the flag slice in its persisted form.
func (e *ModerationLogEntry) SetFlags(flags []string) {
	e.Flags = strings.Join(flags, ",")
}

// PendingReview reports whether the entry is blocked and awaiting a reviewer.
func (e *ModerationLogEntry) PendingReview() bool {
	return e.ActionTaken == LogBlocked && e.ReviewedAt == nil
}
