package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymeTopUp stores the Payme transaction state of a wallet top-up.
type PaymeTopUp struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID string    `gorm:"column:transaction_id;index" json:"transaction_id"`
	AccountID     string    `gorm:"index" json:"account_id"`
	Status        int       `json:"status"`
	Amount        int64     `json:"amount"`
	CreateTime    int64     `json:"create_time"`
	PerformTime   int64     `json:"perform_time"`
	CancelTime    int64     `json:"cancel_time"`
	Reason        *int      `json:"reason"`
	Credited      bool      `json:"credited"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeforeCreate assigns the top-up id that checkout links carry.
func (t *PaymeTopUp) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
