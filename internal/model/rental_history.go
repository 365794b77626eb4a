package model

import "time"

// End reasons recorded in the rental history.
const (
	EndReasonManual  = "manual"
	EndReasonExpired = "expired"
	EndReasonMoved   = "moved"
)

// RentalHistory is the archived record of a finished occupancy (cold table).
// One row is appended whenever a table returns to available, whether by
// manual stop, auto-expiry, or an outgoing move.
type RentalHistory struct {
	ID          int64     `gorm:"autoIncrement;primaryKey" json:"id"`
	TableID     string    `gorm:"size:36;not null;index" json:"tableId"`
	TableName   string    `gorm:"size:128;not null" json:"tableName"`
	Customer    string    `gorm:"size:128" json:"customer"`
	StartedAt   time.Time `gorm:"not null;index" json:"startedAt"`
	EndedAt     time.Time `gorm:"not null" json:"endedAt"`   // when the occupancy actually ended
	PeriodEnd   time.Time `gorm:"not null" json:"periodEnd"` // the paid-until time
	DurationMin int       `gorm:"not null" json:"duration"`
	CostPerHour float64   `gorm:"not null" json:"costPerHour"`
	Amount      float64   `gorm:"not null" json:"amount"`
	EndReason   string    `gorm:"size:16;not null" json:"endReason"`
}
