package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LogAgentAction = "agent_action"
	LogSystemEvent = "system_event"
	LogError       = "error"
)

// ActivityLog is advisory telemetry: round lifecycle, agent actions and
// per-turn failures, exposed read-only for observers.
type ActivityLog struct {
	ID        string         `gorm:"primaryKey;type:text"`
	SessionID string         `gorm:"type:text;not null;index"`
	RoundID   *string        `gorm:"type:text;index"`
	AgentID   *string        `gorm:"type:text;index"`
	LogType   string         `gorm:"type:varchar(30);not null;index"`
	Content   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
