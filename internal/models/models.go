package models

import (
	"time"
)

// AuthEvent is one row of the dashboard's own sign-in audit trail.
type AuthEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	EventID    string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	Type       string    `gorm:"index;size:32;not null" json:"type"`
	Username   string    `gorm:"index;size:255" json:"username"`
	Role       string    `gorm:"size:32" json:"role,omitempty"`
	Reason     string    `gorm:"size:255" json:"reason,omitempty"`
	RemoteIP   string    `gorm:"size:64" json:"remote_ip,omitempty"`
	OccurredAt time.Time `gorm:"index;not null" json:"occurred_at"`
}
