package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProposalPending   = "pending"
	ProposalAccepted  = "accepted"
	ProposalRejected  = "rejected"
	ProposalCountered = "countered"
)

// Proposal is an offer from one agent to another to exchange Quantity of a
// good for Price cash (total, not per unit). Accepted, rejected and countered
// are terminal. CounterDepth counts how many counters precede this proposal.
type Proposal struct {
	ID          string          `gorm:"primaryKey;type:text"`
	RoundID     string          `gorm:"type:text;not null;index"`
	FromAgentID string          `gorm:"type:text;not null;index"`
	ToAgentID   string          `gorm:"type:text;not null;index"`
	GoodID      string          `gorm:"type:text;not null"`
	Quantity    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Explanation string          `gorm:"type:text;not null"`
	Status      string          `gorm:"type:varchar(20);not null;default:'pending';index"`

	CounterDepth int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Proposal) TableName() string {
	return "proposals"
}
