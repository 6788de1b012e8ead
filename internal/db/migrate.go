package db

import (
	"agentarena/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.ModelBinding{},
		&models.Agent{},
		&models.Good{},
		&models.Session{},
		&models.Round{},
		&models.Inventory{},
		&models.CashBalance{},
		&models.Proposal{},
		&models.Trade{},
		&models.LeaderboardEntry{},
		&models.ActivityLog{},
	)
}
