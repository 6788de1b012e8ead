package models

import "github.com/shopspring/decimal"

// Inventory is one agent's holding of one good within a session. Quantity is
// non-negative; only the settlement engine and session initialization write it.
type Inventory struct {
	ID        string          `gorm:"primaryKey;type:text"`
	SessionID string          `gorm:"type:text;not null;index:idx_inventory_pos,unique"`
	AgentID   string          `gorm:"type:text;not null;index:idx_inventory_pos,unique"`
	GoodID    string          `gorm:"type:text;not null;index:idx_inventory_pos,unique"`
	Quantity  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
}

func (Inventory) TableName() string {
	return "inventories"
}

// CashBalance is the single cash scalar per (session, agent). Kept as its own
// relation rather than replicated across inventory rows.
type CashBalance struct {
	ID        string          `gorm:"primaryKey;type:text"`
	SessionID string          `gorm:"type:text;not null;index:idx_cash_pos,unique"`
	AgentID   string          `gorm:"type:text;not null;index:idx_cash_pos,unique"`
	Cash      decimal.Decimal `gorm:"type:numeric(30,10);not null"`
}

func (CashBalance) TableName() string {
	return "cash_balances"
}
