// models/student.go
package models

import (
	"time"
)

type Student struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Name          string  `gorm:"not null;size:100" json:"name"`
	Email         string  `gorm:"uniqueIndex;not null;size:200" json:"email"`
	Password      string  `gorm:"not null" json:"-"`
	WalletAddress *string `gorm:"size:64" json:"wallet_address,omitempty"`
	IsAdmin       bool    `gorm:"default:false" json:"is_admin"`

	// Challenge stats, maintained by the evaluation pipeline
	TotalChallenges int `gorm:"default:0" json:"total_challenges"`
	Wins            int `gorm:"default:0" json:"wins"`
	Losses          int `gorm:"default:0" json:"losses"`
	Draws           int `gorm:"default:0" json:"draws"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastLogin time.Time `json:"last_login"`
}

func (Student) TableName() string {
	return "students"
}

// HasWallet reports whether the student has a payout destination on file.
func (s *Student) HasWallet() bool {
	return s.WalletAddress != nil && *s.WalletAddress != ""
}
