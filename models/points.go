// models/points.go - Player points ledger
package models

import (
	"time"
)

// PointEvent is one entry of a player's point history.
type PointEvent struct {
	Activity    string    `json:"activity"`
	Points      int       `json:"points"`
	Description string    `json:"description"`
	CourseID    string    `json:"course_id,omitempty"`
	EarnedAt    time.Time `json:"earned_at"`
}

// StudentPoints is the per-player ledger shared by all challenges a player
// takes part in. It is created lazily on the first award and never deleted.
// TotalPoints is only ever adjusted with atomic increments; rank is a derived
// view recomputed globally after every evaluation.
type StudentPoints struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	StudentID uint     `gorm:"uniqueIndex;not null" json:"student_id"`
	Student   *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`

	TotalPoints int          `gorm:"not null;default:0;index" json:"total_points"`
	Rank        int          `gorm:"default:0" json:"rank"`
	History     []PointEvent `gorm:"serializer:json;type:jsonb" json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StudentPoints) TableName() string {
	return "student_points"
}
