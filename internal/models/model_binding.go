package models

// ModelBinding names the upstream model an agent consults on its turn.
// APIKeyEnvVar keeps credentials out of the store.
type ModelBinding struct {
	ID           string `gorm:"primaryKey;type:text"`
	Name         string `gorm:"type:text;not null"`
	Provider     string `gorm:"type:varchar(30);not null;index"`
	APIKeyEnvVar string `gorm:"type:varchar(100);not null"`
}

func (ModelBinding) TableName() string {
	return "model_bindings"
}
