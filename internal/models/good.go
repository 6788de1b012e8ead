package models

import "github.com/shopspring/decimal"

// Good is a tradable commodity. ReferencePrice is used only for valuation
// at leaderboard time, never mutated by settlement.
type Good struct {
	ID             string          `gorm:"primaryKey;type:text"`
	Name           string          `gorm:"type:text;not null;uniqueIndex"`
	Unit           string          `gorm:"type:varchar(20);not null"`
	ReferencePrice decimal.Decimal `gorm:"type:numeric(20,4);not null"`
}

func (Good) TableName() string {
	return "goods"
}
