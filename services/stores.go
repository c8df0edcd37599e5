// services/stores.go - GORM-backed store implementations
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chainverse/database"
	"chainverse/models"
)

// GormChallengeStore implements ChallengeStore on the shared connection.
type GormChallengeStore struct{}

func NewGormChallengeStore() *GormChallengeStore {
	return &GormChallengeStore{}
}

func (s *GormChallengeStore) GetChallenge(ctx context.Context, challengeID uint) (*models.Challenge, error) {
	db := database.GetDB().WithContext(ctx)

	var challenge models.Challenge
	if err := db.Preload("PlayerOne").Preload("PlayerTwo").First(&challenge, challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("loading challenge %d: %w", challengeID, err)
	}
	return &challenge, nil
}

func (s *GormChallengeStore) CreateChallenge(ctx context.Context, challenge *models.Challenge) error {
	db := database.GetDB().WithContext(ctx)
	if err := db.Create(challenge).Error; err != nil {
		return fmt.Errorf("creating challenge: %w", err)
	}
	return nil
}

// MarkInProgress flips pending -> in_progress on the first submission.
// A zero rows-affected outcome just means another submission got there
// first, which is fine.
func (s *GormChallengeStore) MarkInProgress(ctx context.Context, challengeID uint, startedAt time.Time) error {
	db := database.GetDB().WithContext(ctx)
	return db.Model(&models.Challenge{}).
		Where("id = ? AND status = ?", challengeID, models.ChallengeStatusPending).
		Updates(map[string]any{
			"status":     models.ChallengeStatusInProgress,
			"started_at": startedAt,
		}).Error
}

// MarkCompleted is the atomic conditional transition the orchestrator
// relies on. Pending is accepted alongside in_progress: a failed
// MarkInProgress write must not strand an evaluated challenge in pending.
func (s *GormChallengeStore) MarkCompleted(ctx context.Context, challengeID uint, completedAt time.Time) (bool, error) {
	db := database.GetDB().WithContext(ctx)
	res := db.Model(&models.Challenge{}).
		Where("id = ? AND status IN ?", challengeID,
			[]models.ChallengeStatus{models.ChallengeStatusPending, models.ChallengeStatusInProgress}).
		Updates(map[string]any{
			"status":       models.ChallengeStatusCompleted,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormChallengeStore) MarkError(ctx context.Context, challengeID uint, message string, at time.Time) error {
	db := database.GetDB().WithContext(ctx)
	return db.Model(&models.Challenge{}).
		Where("id = ?", challengeID).
		Updates(map[string]any{
			"status":        models.ChallengeStatusError,
			"error_message": message,
			"error_at":      at,
		}).Error
}

// MarkExpired sweeps stale pending/in_progress challenges past their
// deadline. Returns how many were expired.
func (s *GormChallengeStore) MarkExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	db := database.GetDB().WithContext(ctx)
	res := db.Model(&models.Challenge{}).
		Where("status IN ? AND expires_at < ?",
			[]models.ChallengeStatus{models.ChallengeStatusPending, models.ChallengeStatusInProgress}, cutoff).
		Updates(map[string]any{
			"status":       models.ChallengeStatusExpired,
			"completed_at": cutoff,
		})
	return res.RowsAffected, res.Error
}

// GormSubmissionStore implements SubmissionStore.
type GormSubmissionStore struct{}

func NewGormSubmissionStore() *GormSubmissionStore {
	return &GormSubmissionStore{}
}

// CreateSubmission relies on the (challenge_id, player_id) unique index to
// reject duplicates at write time, closing the race two concurrent requests
// by the same player would otherwise open.
func (s *GormSubmissionStore) CreateSubmission(ctx context.Context, submission *models.ChallengeSubmission) error {
	db := database.GetDB().WithContext(ctx)
	if err := db.Create(submission).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrAlreadySubmitted
		}
		return fmt.Errorf("creating submission: %w", err)
	}
	return nil
}

func (s *GormSubmissionStore) ListByChallenge(ctx context.Context, challengeID uint) ([]models.ChallengeSubmission, error) {
	db := database.GetDB().WithContext(ctx)
	var submissions []models.ChallengeSubmission
	if err := db.Where("challenge_id = ?", challengeID).
		Order("submitted_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("listing submissions for challenge %d: %w", challengeID, err)
	}
	return submissions, nil
}

func (s *GormSubmissionStore) CountByChallenge(ctx context.Context, challengeID uint) (int64, error) {
	db := database.GetDB().WithContext(ctx)
	var count int64
	err := db.Model(&models.ChallengeSubmission{}).
		Where("challenge_id = ?", challengeID).
		Count(&count).Error
	return count, err
}

func (s *GormSubmissionStore) HasSubmitted(ctx context.Context, challengeID, playerID uint) (bool, error) {
	db := database.GetDB().WithContext(ctx)
	var count int64
	err := db.Model(&models.ChallengeSubmission{}).
		Where("challenge_id = ? AND player_id = ?", challengeID, playerID).
		Count(&count).Error
	return count > 0, err
}

// GormResultStore implements ResultStore.
type GormResultStore struct{}

func NewGormResultStore() *GormResultStore {
	return &GormResultStore{}
}

func (s *GormResultStore) CreateResult(ctx context.Context, result *models.ChallengeResult) error {
	db := database.GetDB().WithContext(ctx)
	if err := db.Create(result).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrAlreadyEvaluated
		}
		return fmt.Errorf("persisting result: %w", err)
	}
	return nil
}

func (s *GormResultStore) GetResultByChallenge(ctx context.Context, challengeID uint) (*models.ChallengeResult, error) {
	db := database.GetDB().WithContext(ctx)
	var result models.ChallengeResult
	if err := db.Where("challenge_id = ?", challengeID).First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrResultNotReady
		}
		return nil, fmt.Errorf("loading result for challenge %d: %w", challengeID, err)
	}
	return &result, nil
}

// SetRewardsDistributed flips the flag only if it is still unset, so two
// concurrent distribution runs cannot both claim it.
func (s *GormResultStore) SetRewardsDistributed(ctx context.Context, resultID uint, at time.Time) error {
	db := database.GetDB().WithContext(ctx)
	res := db.Model(&models.ChallengeResult{}).
		Where("id = ? AND rewards_distributed = ?", resultID, false).
		Updates(map[string]any{
			"rewards_distributed":    true,
			"rewards_distributed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrRewardsAlreadyDistributed
	}
	return nil
}

func (s *GormResultStore) SetNotificationsSent(ctx context.Context, resultID uint, at time.Time) error {
	db := database.GetDB().WithContext(ctx)
	return db.Model(&models.ChallengeResult{}).
		Where("id = ? AND notifications_sent = ?", resultID, false).
		Updates(map[string]any{
			"notifications_sent":    true,
			"notifications_sent_at": at,
		}).Error
}

// GormStudentStore reads student records for rewards and notifications.
type GormStudentStore struct{}

var _ RewardStudentStore = (*GormStudentStore)(nil)

func (s *GormStudentStore) GetStudent(ctx context.Context, studentID uint) (*models.Student, error) {
	db := database.GetDB().WithContext(ctx)
	var student models.Student
	if err := db.First(&student, studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("student %d not found", studentID)
		}
		return nil, err
	}
	return &student, nil
}

// GormTokenTxStore is the reward audit trail.
type GormTokenTxStore struct{}

var _ TokenTxRecorder = (*GormTokenTxStore)(nil)

func (s *GormTokenTxStore) RecordTransaction(ctx context.Context, tx *models.TokenTransaction) error {
	db := database.GetDB().WithContext(ctx)
	return db.Create(tx).Error
}

// GormNotificationStore persists in-app notifications.
type GormNotificationStore struct{}

var _ NotificationStore = (*GormNotificationStore)(nil)

func (s *GormNotificationStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	db := database.GetDB().WithContext(ctx)
	return db.Create(n).Error
}
