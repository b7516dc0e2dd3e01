package model

import "time"

// PushSubscription holds a browser push subscription, associated to the
// student it should notify.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey" json:"endpoint"`
	StudentID string    `gorm:"index;size:32;not null" json:"studentId"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	CreatedAt time.Time `json:"-"`
}
