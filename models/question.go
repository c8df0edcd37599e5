// models/question.go - Question bank backing challenge creation
package models

import "time"

// QuizQuestion is a bank question. Challenges copy the matching questions at
// creation time, so rows here can be edited or retired without touching
// games already in flight.
type QuizQuestion struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID string `gorm:"size:64;uniqueIndex" json:"question_id"`

	QuizID   string `gorm:"size:100;index" json:"quiz_id"`
	CourseID string `gorm:"size:100;index" json:"course_id"`
	ModuleID string `gorm:"size:100" json:"module_id"`

	Text            string           `gorm:"type:text;not null" json:"text"`
	Options         []QuestionOption `gorm:"serializer:json;type:jsonb" json:"options"`
	CorrectOptionID string           `gorm:"size:32;not null" json:"correct_option_id"`

	Active bool `gorm:"not null;default:true;index" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// ToChallengeQuestion makes the denormalized copy embedded in a challenge.
func (q *QuizQuestion) ToChallengeQuestion() ChallengeQuestion {
	return ChallengeQuestion{
		QuestionID:      q.QuestionID,
		Text:            q.Text,
		Options:         q.Options,
		CorrectOptionID: q.CorrectOptionID,
	}
}
