// models/challenge.go - Head-to-head quiz challenge data models
package models

import (
	"time"
)

// Challenge status constants
type ChallengeStatus string

const (
	ChallengeStatusPending    ChallengeStatus = "pending"
	ChallengeStatusInProgress ChallengeStatus = "in_progress"
	ChallengeStatusCompleted  ChallengeStatus = "completed"
	ChallengeStatusExpired    ChallengeStatus = "expired"
	ChallengeStatusError      ChallengeStatus = "error"
)

// DefaultTimeLimitMs is the per-challenge answer window when none is configured.
const DefaultTimeLimitMs int64 = 300000 // 5 minutes

// QuestionOption is one selectable answer of a challenge question.
type QuestionOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ChallengeQuestion is a denormalized copy of a bank question taken at
// challenge-creation time. Later edits to the question bank never change
// how an existing challenge scores.
type ChallengeQuestion struct {
	QuestionID      string           `json:"question_id"`
	Text            string           `json:"text"`
	Options         []QuestionOption `json:"options"`
	CorrectOptionID string           `json:"correct_option_id"`
}

// Challenge represents a two-player, timed, fixed-question quiz match.
type Challenge struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	PlayerOneID uint     `gorm:"not null;index" json:"player_one_id"`
	PlayerOne   *Student `gorm:"foreignKey:PlayerOneID" json:"player_one,omitempty"`
	PlayerTwoID uint     `gorm:"not null;index" json:"player_two_id"`
	PlayerTwo   *Student `gorm:"foreignKey:PlayerTwoID" json:"player_two,omitempty"`

	QuizID   string `gorm:"size:100;index" json:"quiz_id"`
	CourseID string `gorm:"size:100;index" json:"course_id"`
	ModuleID string `gorm:"size:100" json:"module_id"`

	Questions []ChallengeQuestion `gorm:"serializer:json;type:jsonb" json:"questions"`

	Status      ChallengeStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`
	TimeLimitMs int64           `gorm:"not null;default:300000" json:"time_limit_ms"`

	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	ExpiresAt   time.Time  `gorm:"index" json:"expires_at"`

	// Populated only when Status is error
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	ErrorAt      *time.Time `json:"error_at,omitempty"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// IsParticipant reports whether the given student plays in this challenge.
func (c *Challenge) IsParticipant(studentID uint) bool {
	return c.PlayerOneID == studentID || c.PlayerTwoID == studentID
}

// OpponentOf returns the other player's id.
func (c *Challenge) OpponentOf(studentID uint) uint {
	if c.PlayerOneID == studentID {
		return c.PlayerTwoID
	}
	return c.PlayerOneID
}

// RemainingTimeMs returns how long the players still have to submit.
func (c *Challenge) RemainingTimeMs(now time.Time) int64 {
	remaining := c.ExpiresAt.Sub(now).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}
