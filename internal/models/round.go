package models

import "time"

// Round is one fixed-length slice of a session. EndTime is nil while the
// round is in progress.
type Round struct {
	ID          string     `gorm:"primaryKey;type:text"`
	SessionID   string     `gorm:"type:text;not null;index"`
	RoundNumber int        `gorm:"not null"`
	StartTime   time.Time  `gorm:"type:timestamptz;not null"`
	EndTime     *time.Time `gorm:"type:timestamptz"`
}

func (Round) TableName() string {
	return "rounds"
}
