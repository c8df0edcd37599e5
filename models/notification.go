// models/notification.go
package models

import (
	"time"
)

// NotificationTypeChallengeResult tags outcome notifications.
const NotificationTypeChallengeResult = "challenge_result"

// Notification is a persisted in-app message; email delivery happens
// separately and best-effort.
type Notification struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	StudentID uint     `gorm:"not null;index" json:"student_id"`
	Student   *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`

	Title   string `gorm:"not null;size:200" json:"title"`
	Message string `gorm:"not null;type:text" json:"message"`
	Type    string `gorm:"size:50;default:'info'" json:"type"`

	ChallengeID *uint `gorm:"index" json:"challenge_id,omitempty"`

	Read      bool      `gorm:"default:false" json:"read"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
