// handlers/challenges.go
package handlers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"chainverse/database"
	"chainverse/middleware"
	"chainverse/models"
	"chainverse/services"
)

const defaultQuestionCount = 5

type CreateChallengeRequest struct {
	OpponentID    uint   `json:"opponent_id"`
	QuizID        string `json:"quiz_id"`
	CourseID      string `json:"course_id"`
	ModuleID      string `json:"module_id,omitempty"`
	QuestionCount int    `json:"question_count,omitempty"`
	TimeLimitMs   int64  `json:"time_limit_ms,omitempty"`
}

type SubmitAnswersRequest struct {
	Answers     []models.Answer `json:"answers"`
	TotalTimeMs int64           `json:"total_time_ms"`
}

// challengeView is the participant-facing shape: correct options stripped.
type challengeView struct {
	ID              uint                    `json:"id"`
	Status          models.ChallengeStatus  `json:"status"`
	QuizID          string                  `json:"quiz_id"`
	CourseID        string                  `json:"course_id"`
	ModuleID        string                  `json:"module_id,omitempty"`
	Opponent        *challengeOpponent      `json:"opponent,omitempty"`
	Questions       []challengeViewQuestion `json:"questions"`
	TimeLimitMs     int64                   `json:"time_limit_ms"`
	RemainingTimeMs int64                   `json:"remaining_time_ms"`
	ExpiresAt       time.Time               `json:"expires_at"`
	HasSubmitted    bool                    `json:"has_submitted"`
	CreatedAt       time.Time               `json:"created_at"`
}

type challengeOpponent struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type challengeViewQuestion struct {
	QuestionID string                  `json:"question_id"`
	Text       string                  `json:"text"`
	Options    []models.QuestionOption `json:"options"`
}

var errChallengeErrorState = errors.New("challenge is in an error state")

// submissionGuard returns the sentinel describing why a submission must be
// refused, or nil when the challenge can still accept one.
func submissionGuard(challenge *models.Challenge, playerID uint, totalTimeMs int64, now time.Time) error {
	if !challenge.IsParticipant(playerID) {
		return models.ErrNotParticipant
	}
	switch {
	case challenge.Status == models.ChallengeStatusCompleted:
		return models.ErrChallengeCompleted
	case challenge.Status == models.ChallengeStatusExpired || now.After(challenge.ExpiresAt):
		return models.ErrChallengeExpired
	case challenge.Status == models.ChallengeStatusError:
		return errChallengeErrorState
	}
	if totalTimeMs > challenge.TimeLimitMs {
		return models.ErrTimeLimitExceeded
	}
	return nil
}

// evaluationReady decides whether to enqueue after a submission. A failed
// count enqueues anyway: a premature job is rejected as not ready and
// retried, while a missing one stalls the challenge until an admin steps in.
func evaluationReady(count int64, countErr error) bool {
	return countErr != nil || count >= 2
}

func parseChallengeID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("Invalid challenge ID format")
	}
	return uint(id), nil
}

// CreateChallenge starts a head-to-head match between the authenticated
// student and an opponent, copying sampled bank questions into the challenge.
func CreateChallenge(c *fiber.Ctx) error {
	playerID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "User not authenticated"})
	}

	var req CreateChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.OpponentID == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Opponent is required"})
	}
	if req.OpponentID == playerID {
		return c.Status(400).JSON(fiber.Map{"error": "Cannot challenge yourself"})
	}
	if req.QuizID == "" || req.CourseID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Quiz and course are required"})
	}

	questionCount := req.QuestionCount
	if questionCount <= 0 {
		questionCount = defaultQuestionCount
	}
	timeLimitMs := req.TimeLimitMs
	if timeLimitMs <= 0 {
		timeLimitMs = models.DefaultTimeLimitMs
	}

	db := database.GetDB()

	var opponent models.Student
	if err := db.First(&opponent, req.OpponentID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Opponent not found"})
	}

	var bank []models.QuizQuestion
	if err := db.Where("quiz_id = ? AND course_id = ? AND active = ?", req.QuizID, req.CourseID, true).
		Order("RANDOM()").Limit(questionCount).Find(&bank).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load questions"})
	}
	if len(bank) < questionCount {
		return c.Status(400).JSON(fiber.Map{"error": "Not enough questions available for this quiz"})
	}

	questions := make([]models.ChallengeQuestion, len(bank))
	for i := range bank {
		questions[i] = bank[i].ToChallengeQuestion()
	}

	now := time.Now().UTC()
	challenge := models.Challenge{
		PlayerOneID: playerID,
		PlayerTwoID: req.OpponentID,
		QuizID:      req.QuizID,
		CourseID:    req.CourseID,
		ModuleID:    req.ModuleID,
		Questions:   questions,
		Status:      models.ChallengeStatusPending,
		TimeLimitMs: timeLimitMs,
		ExpiresAt:   now.Add(time.Duration(timeLimitMs) * time.Millisecond),
	}

	if err := challengeStore.CreateChallenge(c.Context(), &challenge); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to create challenge"})
	}

	return c.Status(201).JSON(fiber.Map{
		"success":   true,
		"challenge": viewForPlayer(&challenge, playerID, &opponent, false),
	})
}

// GetChallenge returns the participant view of a challenge.
func GetChallenge(c *fiber.Ctx) error {
	playerID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "User not authenticated"})
	}

	challengeID, err := parseChallengeID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	challenge, err := challengeStore.GetChallenge(c.Context(), challengeID)
	if err != nil {
		if errors.Is(err, models.ErrChallengeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Challenge not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load challenge"})
	}

	if !challenge.IsParticipant(playerID) {
		return c.Status(403).JSON(fiber.Map{"error": "You are not a participant in this challenge"})
	}

	submitted, err := submissionStore.HasSubmitted(c.Context(), challengeID, playerID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load challenge"})
	}

	var opponent *models.Student
	if challenge.PlayerOneID == playerID {
		opponent = challenge.PlayerTwo
	} else {
		opponent = challenge.PlayerOne
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"challenge": viewForPlayer(challenge, playerID, opponent, submitted),
	})
}

// SubmitAnswers accepts one player's answer sheet. The second accepted
// submission queues the challenge for evaluation.
func SubmitAnswers(c *fiber.Ctx) error {
	playerID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "User not authenticated"})
	}

	challengeID, err := parseChallengeID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	var req SubmitAnswersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Answers == nil {
		return c.Status(400).JSON(fiber.Map{"error": "Answers must be provided as a list"})
	}
	for _, a := range req.Answers {
		if a.QuestionID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Each answer requires a question ID"})
		}
	}
	if req.TotalTimeMs <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Completion time must be a positive number of milliseconds"})
	}

	challenge, err := challengeStore.GetChallenge(c.Context(), challengeID)
	if err != nil {
		if errors.Is(err, models.ErrChallengeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Challenge not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load challenge"})
	}

	now := time.Now().UTC()
	switch err := submissionGuard(challenge, playerID, req.TotalTimeMs, now); {
	case errors.Is(err, models.ErrNotParticipant):
		return c.Status(403).JSON(fiber.Map{"error": "You are not a participant in this challenge"})
	case errors.Is(err, models.ErrChallengeCompleted):
		return c.Status(400).JSON(fiber.Map{"error": "Challenge has already been completed"})
	case errors.Is(err, models.ErrChallengeExpired):
		return c.Status(400).JSON(fiber.Map{"error": "Challenge has expired"})
	case errors.Is(err, models.ErrTimeLimitExceeded):
		return c.Status(400).JSON(fiber.Map{"error": "Completion time exceeds the challenge time limit"})
	case err != nil:
		return c.Status(400).JSON(fiber.Map{"error": "Challenge is in an error state"})
	}

	if len(req.Answers) > len(challenge.Questions) {
		return c.Status(400).JSON(fiber.Map{"error": "More answers than challenge questions"})
	}

	submission := models.ChallengeSubmission{
		ChallengeID: challengeID,
		PlayerID:    playerID,
		Answers:     req.Answers,
		TotalTimeMs: req.TotalTimeMs,
		SubmittedAt: now,
		IPAddress:   c.IP(),
		UserAgent:   c.Get("User-Agent"),
	}

	if err := submissionStore.CreateSubmission(c.Context(), &submission); err != nil {
		if errors.Is(err, models.ErrAlreadySubmitted) {
			return c.Status(409).JSON(fiber.Map{"error": "You have already submitted answers for this challenge"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to save submission"})
	}

	if challenge.Status == models.ChallengeStatusPending {
		if err := challengeStore.MarkInProgress(c.Context(), challengeID, now); err != nil {
			log.Printf("challenge %d: marking in progress failed: %v", challengeID, err)
		}
	}

	PublishChallengeEvent(challengeID, "opponent_submitted", fiber.Map{
		"challenge_id": challengeID,
		"player_id":    playerID,
	})

	count, countErr := submissionStore.CountByChallenge(c.Context(), challengeID)
	if countErr != nil {
		log.Printf("challenge %d: counting submissions failed: %v", challengeID, countErr)
	}

	if evaluationReady(count, countErr) {
		if err := evaluationQueue.Enqueue(c.Context(), services.EvaluationJob{ChallengeID: challengeID}); err != nil {
			log.Printf("challenge %d: enqueue failed: %v", challengeID, err)
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Answers submitted. Evaluation in progress.",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Answers submitted. Waiting for opponent.",
	})
}

// GetChallengeResult returns the evaluated outcome of a challenge.
func GetChallengeResult(c *fiber.Ctx) error {
	playerID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "User not authenticated"})
	}

	challengeID, err := parseChallengeID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	challenge, err := challengeStore.GetChallenge(c.Context(), challengeID)
	if err != nil {
		if errors.Is(err, models.ErrChallengeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Challenge not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load challenge"})
	}

	if !challenge.IsParticipant(playerID) {
		return c.Status(403).JSON(fiber.Map{"error": "You are not a participant in this challenge"})
	}

	result, err := resultStore.GetResultByChallenge(c.Context(), challengeID)
	if err != nil {
		if errors.Is(err, models.ErrResultNotReady) {
			return c.Status(400).JSON(fiber.Map{
				"error":  "Challenge has not been evaluated yet",
				"status": challenge.Status,
			})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load result"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"result":  result,
	})
}

// GetChallengeHistory lists the authenticated player's past challenges.
func GetChallengeHistory(c *fiber.Ctx) error {
	playerID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "User not authenticated"})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	db := database.GetDB()

	var total int64
	query := db.Model(&models.Challenge{}).
		Where("player_one_id = ? OR player_two_id = ?", playerID, playerID)
	if err := query.Count(&total).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load history"})
	}

	var challenges []models.Challenge
	if err := db.Preload("PlayerOne").Preload("PlayerTwo").
		Where("player_one_id = ? OR player_two_id = ?", playerID, playerID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&challenges).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load history"})
	}

	entries := historyEntries(playerID, challenges)

	return c.JSON(fiber.Map{
		"success":    true,
		"page":       page,
		"page_size":  pageSize,
		"total":      total,
		"challenges": entries,
	})
}

func historyEntries(playerID uint, challenges []models.Challenge) []fiber.Map {
	db := database.GetDB()
	entries := make([]fiber.Map, 0, len(challenges))
	for i := range challenges {
		ch := &challenges[i]
		entry := fiber.Map{
			"id":         ch.ID,
			"quiz_id":    ch.QuizID,
			"course_id":  ch.CourseID,
			"status":     ch.Status,
			"created_at": ch.CreatedAt,
		}
		opponentID := ch.OpponentOf(playerID)
		if ch.PlayerOne != nil && ch.PlayerOne.ID == opponentID {
			entry["opponent"] = challengeOpponent{ID: ch.PlayerOne.ID, Name: ch.PlayerOne.Name}
		} else if ch.PlayerTwo != nil && ch.PlayerTwo.ID == opponentID {
			entry["opponent"] = challengeOpponent{ID: ch.PlayerTwo.ID, Name: ch.PlayerTwo.Name}
		}

		if ch.Status == models.ChallengeStatusCompleted {
			var result models.ChallengeResult
			if err := db.Where("challenge_id = ?", ch.ID).First(&result).Error; err == nil {
				outcome := "draw"
				if result.WinnerID != nil {
					if *result.WinnerID == playerID {
						outcome = "won"
					} else {
						outcome = "lost"
					}
				}
				score, percentage, timeMs := result.ScoreOf(playerID)
				entry["outcome"] = outcome
				entry["score"] = score
				entry["percentage"] = percentage
				entry["time_ms"] = timeMs
				entry["winner_reason"] = result.WinnerReason
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// GetPlayerStats returns win/loss/draw counts and points for the
// authenticated player.
func GetPlayerStats(c *fiber.Ctx) error {
	playerID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "User not authenticated"})
	}

	db := database.GetDB()

	var student models.Student
	if err := db.First(&student, playerID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Student not found"})
	}

	var points models.StudentPoints
	if err := db.Where("student_id = ?", playerID).First(&points).Error; err != nil {
		points = models.StudentPoints{StudentID: playerID}
	}

	winRate := 0.0
	if student.TotalChallenges > 0 {
		winRate = float64(student.Wins) / float64(student.TotalChallenges) * 100
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats": fiber.Map{
			"total_challenges": student.TotalChallenges,
			"wins":             student.Wins,
			"losses":           student.Losses,
			"draws":            student.Draws,
			"win_rate":         winRate,
			"total_points":     points.TotalPoints,
			"rank":             points.Rank,
		},
	})
}

func viewForPlayer(challenge *models.Challenge, playerID uint, opponent *models.Student, submitted bool) challengeView {
	questions := make([]challengeViewQuestion, len(challenge.Questions))
	for i, q := range challenge.Questions {
		questions[i] = challengeViewQuestion{
			QuestionID: q.QuestionID,
			Text:       q.Text,
			Options:    q.Options,
		}
	}

	view := challengeView{
		ID:              challenge.ID,
		Status:          challenge.Status,
		QuizID:          challenge.QuizID,
		CourseID:        challenge.CourseID,
		ModuleID:        challenge.ModuleID,
		Questions:       questions,
		TimeLimitMs:     challenge.TimeLimitMs,
		RemainingTimeMs: challenge.RemainingTimeMs(time.Now().UTC()),
		ExpiresAt:       challenge.ExpiresAt,
		HasSubmitted:    submitted,
		CreatedAt:       challenge.CreatedAt,
	}
	if opponent != nil {
		view.Opponent = &challengeOpponent{ID: opponent.ID, Name: opponent.Name}
	}
	return view
}
