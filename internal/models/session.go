package models

import "time"

const (
	SessionScheduled = "scheduled"
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
)

// Session is one bounded trading competition. Status and pause bookkeeping
// are durable so a restart can reconstruct scheduler state from storage.
type Session struct {
	ID        string    `gorm:"primaryKey;type:text"`
	StartTime time.Time `gorm:"type:timestamptz;not null;index"`
	EndTime   time.Time `gorm:"type:timestamptz;not null"`
	Status    string    `gorm:"type:varchar(20);not null;default:'scheduled';index"`

	// PausedRemainingMS holds the remaining active duration captured at
	// pause time; nil unless Status is paused.
	PausedRemainingMS *int64 `gorm:"type:bigint"`
}

func (Session) TableName() string {
	return "sessions"
}
