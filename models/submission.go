// models/submission.go
package models

import (
	"time"
)

// Answer is one player's pick for a single question.
type Answer struct {
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

// ChallengeSubmission holds one player's complete set of answers for a
// challenge. The composite unique index is the write-time guarantee that a
// player submits at most once, even under concurrent duplicate requests.
type ChallengeSubmission struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ChallengeID uint       `gorm:"not null;uniqueIndex:idx_challenge_player;index:idx_submission_challenge_time" json:"challenge_id"`
	Challenge   *Challenge `gorm:"foreignKey:ChallengeID" json:"challenge,omitempty"`
	PlayerID    uint       `gorm:"not null;uniqueIndex:idx_challenge_player;index" json:"player_id"`
	Player      *Student   `gorm:"foreignKey:PlayerID" json:"player,omitempty"`

	Answers     []Answer `gorm:"serializer:json;type:jsonb" json:"answers"`
	TotalTimeMs int64    `gorm:"not null" json:"total_time_ms"`

	SubmittedAt time.Time `gorm:"not null;index:idx_submission_challenge_time" json:"submitted_at"`

	// Submission metadata for audit
	IPAddress string `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent string `gorm:"size:300" json:"user_agent,omitempty"`
}

func (ChallengeSubmission) TableName() string {
	return "challenge_submissions"
}
