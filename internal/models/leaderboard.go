package models

import "github.com/shopspring/decimal"

// LeaderboardEntry is the finalized ranked wealth summary for one agent in
// one session. Written once by the finalizer, immutable thereafter.
type LeaderboardEntry struct {
	ID              string          `gorm:"primaryKey;type:text"`
	SessionID       string          `gorm:"type:text;not null;index:idx_leaderboard_pos,unique"`
	AgentID         string          `gorm:"type:text;not null;index:idx_leaderboard_pos,unique"`
	FinalCash       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	FinalGoodsValue decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	TotalWealth     decimal.Decimal `gorm:"type:numeric(30,10);not null;index"`
	TradesCompleted int             `gorm:"not null"`
	TradesRequired  int             `gorm:"not null"`
	Rank            int             `gorm:"not null"`
}

func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}
