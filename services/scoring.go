// services/scoring.go - Scoring engine and winner resolution
//
// Both functions are pure: identical inputs always produce identical
// outputs, and nothing here touches a store.
package services

import (
	"math"

	"chainverse/models"
)

// ScoreBreakdown is the single normalized score representation used
// everywhere downstream. Nothing in the pipeline branches on a dynamic
// score shape.
type ScoreBreakdown struct {
	Score          int                   `json:"score"`
	TotalQuestions int                   `json:"total_questions"`
	Percentage     int                   `json:"percentage"`
	Details        []models.AnswerDetail `json:"details"`
}

// IsPerfect reports whether every question was answered correctly.
func (b ScoreBreakdown) IsPerfect() bool {
	return b.TotalQuestions > 0 && b.Score == b.TotalQuestions
}

// CalculateScore grades a submission against the challenge's embedded
// question set. An answer whose question id does not match any embedded
// question is tolerated and scored as incorrect; rejecting malformed
// submissions is a validation concern handled before orchestration.
// TotalQuestions is always the challenge's question count, not the answer
// count, so a player submitting fewer answers cannot inflate their
// percentage.
func CalculateScore(answers []models.Answer, questions []models.ChallengeQuestion) ScoreBreakdown {
	breakdown := ScoreBreakdown{
		TotalQuestions: len(questions),
		Details:        make([]models.AnswerDetail, 0, len(answers)),
	}

	for _, answer := range answers {
		detail := models.AnswerDetail{
			QuestionID:     answer.QuestionID,
			SelectedOption: answer.SelectedOption,
		}

		var question *models.ChallengeQuestion
		for i := range questions {
			if questions[i].QuestionID == answer.QuestionID {
				question = &questions[i]
				break
			}
		}

		if question == nil {
			detail.CorrectOption = "Question not found"
		} else {
			detail.CorrectOption = question.CorrectOptionID
			if answer.SelectedOption == question.CorrectOptionID {
				detail.IsCorrect = true
				breakdown.Score++
			}
		}

		breakdown.Details = append(breakdown.Details, detail)
	}

	if breakdown.TotalQuestions > 0 {
		breakdown.Percentage = int(math.Round(float64(breakdown.Score) / float64(breakdown.TotalQuestions) * 100))
	}
	return breakdown
}

// WinnerOutcome is the value object produced by winner resolution. It keeps
// the raw comparison inputs so reward calculation never re-derives them.
type WinnerOutcome struct {
	WinnerID     *uint  `json:"winner_id"`
	IsDraw       bool   `json:"is_draw"`
	WinnerReason string `json:"winner_reason"`

	PlayerOneScore  int   `json:"player_one_score"`
	PlayerTwoScore  int   `json:"player_two_score"`
	PlayerOneTimeMs int64 `json:"player_one_time_ms"`
	PlayerTwoTimeMs int64 `json:"player_two_time_ms"`
}

// WonBy reports whether the given player won outright.
func (o WinnerOutcome) WonBy(playerID uint) bool {
	return o.WinnerID != nil && *o.WinnerID == playerID
}

// DetermineWinner applies the ordered rules: strictly higher score wins;
// equal scores fall through to strictly lower elapsed time; equal on both is
// a draw.
func DetermineWinner(playerOneID, playerTwoID uint, scoreOne, scoreTwo int, timeOneMs, timeTwoMs int64) WinnerOutcome {
	outcome := WinnerOutcome{
		PlayerOneScore:  scoreOne,
		PlayerTwoScore:  scoreTwo,
		PlayerOneTimeMs: timeOneMs,
		PlayerTwoTimeMs: timeTwoMs,
	}

	switch {
	case scoreOne > scoreTwo:
		outcome.WinnerID = &playerOneID
		outcome.WinnerReason = models.WinnerReasonHigherScore
	case scoreTwo > scoreOne:
		outcome.WinnerID = &playerTwoID
		outcome.WinnerReason = models.WinnerReasonHigherScore
	case timeOneMs < timeTwoMs:
		outcome.WinnerID = &playerOneID
		outcome.WinnerReason = models.WinnerReasonFasterTime
	case timeTwoMs < timeOneMs:
		outcome.WinnerID = &playerTwoID
		outcome.WinnerReason = models.WinnerReasonFasterTime
	default:
		outcome.IsDraw = true
		outcome.WinnerReason = models.WinnerReasonPerfectTie
	}
	return outcome
}
