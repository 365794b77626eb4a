package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Staff devices subscribe to individual tables and get notified when a
// subscribed table becomes available again.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Tables []*Table `gorm:"many2many:subscription_table_mapping;"`
}
