package model

import "time"

// TableStatus is the occupancy state of a billiard table.
type TableStatus string

const (
	StatusAvailable TableStatus = "available"
	StatusOccupied  TableStatus = "occupied"
)

// Table represents one physical billiard table and its rental state.
//
// StartTime and EndTime are NULL while the table is available; returning a
// table to available clears them rather than zeroing them, so a NULL is the
// only representation of "no rental".
type Table struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	Name            string      `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Channel         int         `gorm:"not null;default:0" json:"channel"` // 0 = derive from name or position
	Status          TableStatus `gorm:"size:16;not null;default:available" json:"status"`
	CostPerHour     float64     `gorm:"not null" json:"costPerHour"`
	StartTime       *time.Time  `json:"-"`
	EndTime         *time.Time  `json:"-"`
	DurationMin     int         `gorm:"not null;default:0" json:"duration"`
	CurrentCustomer string      `gorm:"size:128" json:"currentCustomer"`
	RemoteOn        string      `gorm:"size:512" json:"remoteOn,omitempty"`
	RemoteOff       string      `gorm:"size:512" json:"remoteOff,omitempty"`
	RemoteToggle    string      `gorm:"size:512" json:"remoteToggle,omitempty"`
	CreatedAt       time.Time   `json:"-"`
	UpdatedAt       time.Time   `json:"-"`
}

// Occupied reports whether the table currently has an active rental.
func (t *Table) Occupied() bool {
	return t.Status == StatusOccupied
}

// RemainingAt returns the rental time left at the given instant.
// Zero for available tables and for rentals that have already run out.
func (t *Table) RemainingAt(now time.Time) time.Duration {
	if !t.Occupied() || t.EndTime == nil {
		return 0
	}
	if remaining := t.EndTime.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// ExpiredAt reports whether the rental window has elapsed at the given instant.
func (t *Table) ExpiredAt(now time.Time) bool {
	return t.Occupied() && t.EndTime != nil && !now.Before(*t.EndTime)
}
