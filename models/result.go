// models/result.go - Immutable challenge evaluation results
package models

import (
	"time"
)

// Winner reason tags stored on every result.
const (
	WinnerReasonHigherScore = "Higher score"
	WinnerReasonFasterTime  = "Faster completion time (tiebreaker)"
	WinnerReasonPerfectTie  = "Perfect tie - same score and completion time"
)

// Evaluation methods recorded for audit.
const (
	EvaluationMethodAutomatic = "automatic"
	EvaluationMethodManual    = "manual"
)

// AnswerDetail is the per-question correctness breakdown for one player.
type AnswerDetail struct {
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
	CorrectOption  string `json:"correct_option"`
	IsCorrect      bool   `json:"is_correct"`
}

// ResultDetails carries both players' breakdowns.
type ResultDetails struct {
	PlayerOne []AnswerDetail `json:"player_one"`
	PlayerTwo []AnswerDetail `json:"player_two"`
}

// ChallengeResult is written exactly once per challenge. The unique index on
// challenge_id is the serialization point for concurrent evaluation attempts:
// the insert that loses raced with one that already completed. After creation
// only the two idempotency flags may change.
type ChallengeResult struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	ChallengeID uint `gorm:"uniqueIndex;not null" json:"challenge_id"`

	PlayerOneID uint `gorm:"not null;index" json:"player_one_id"`
	PlayerTwoID uint `gorm:"not null;index" json:"player_two_id"`

	PlayerOneScore      int   `gorm:"not null" json:"player_one_score"`
	PlayerTwoScore      int   `gorm:"not null" json:"player_two_score"`
	PlayerOnePercentage int   `gorm:"not null" json:"player_one_percentage"`
	PlayerTwoPercentage int   `gorm:"not null" json:"player_two_percentage"`
	PlayerOneTimeMs     int64 `gorm:"not null" json:"player_one_time_ms"`
	PlayerTwoTimeMs     int64 `gorm:"not null" json:"player_two_time_ms"`

	WinnerID     *uint  `gorm:"index" json:"winner_id"` // nil means draw
	IsDraw       bool   `gorm:"default:false" json:"is_draw"`
	WinnerReason string `gorm:"size:100" json:"winner_reason"`

	Details ResultDetails `gorm:"serializer:json;type:jsonb" json:"details"`

	// Audit fields
	EvaluatedAt      time.Time `gorm:"not null" json:"evaluated_at"`
	EvaluationMethod string    `gorm:"size:20" json:"evaluation_method"`
	AuditHash        string    `gorm:"size:64" json:"audit_hash"`

	// Idempotency flags for downstream side effects
	RewardsDistributed   bool       `gorm:"default:false" json:"rewards_distributed"`
	RewardsDistributedAt *time.Time `json:"rewards_distributed_at,omitempty"`
	NotificationsSent    bool       `gorm:"default:false" json:"notifications_sent"`
	NotificationsSentAt  *time.Time `json:"notifications_sent_at,omitempty"`
}

func (ChallengeResult) TableName() string {
	return "challenge_results"
}

// ScoreOf returns the stored score and elapsed time for one participant.
func (r *ChallengeResult) ScoreOf(playerID uint) (score int, percentage int, timeMs int64) {
	if playerID == r.PlayerOneID {
		return r.PlayerOneScore, r.PlayerOnePercentage, r.PlayerOneTimeMs
	}
	return r.PlayerTwoScore, r.PlayerTwoPercentage, r.PlayerTwoTimeMs
}
