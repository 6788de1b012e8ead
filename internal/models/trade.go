package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the audit record of one settled proposal. Written exactly once,
// never mutated or deleted.
type Trade struct {
	ID          string          `gorm:"primaryKey;type:text"`
	ProposalID  string          `gorm:"type:text;not null;uniqueIndex"`
	SessionID   string          `gorm:"type:text;not null;index"`
	FromAgentID string          `gorm:"type:text;not null;index"`
	ToAgentID   string          `gorm:"type:text;not null;index"`
	GoodID      string          `gorm:"type:text;not null"`
	Quantity    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	SettledAt   time.Time       `gorm:"type:timestamptz;not null;index"`
}

func (Trade) TableName() string {
	return "trades"
}
