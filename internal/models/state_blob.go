package models

import "time"

// StateBlob is one persisted ledger snapshot, stored as a JSON envelope.
type StateBlob struct {
	Key           string    `gorm:"primaryKey;size:64" json:"key"`
	SchemaVersion int       `json:"schema_version"`
	Payload       []byte    `gorm:"type:jsonb" json:"payload"`
	UpdatedAt     time.Time `json:"updated_at"`
}
