package models

import "time"

// Agent is a competition participant. Immutable during a session.
type Agent struct {
	ID       string `gorm:"primaryKey;type:text"`
	Name     string `gorm:"type:text;not null"`
	ModelID  string `gorm:"type:text;not null;index"`
	Provider string `gorm:"type:varchar(30);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Agent) TableName() string {
	return "agents"
}
