// services/leaderboard.go - Player points ledger and global ranking
package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chainverse/database"
	"chainverse/models"
)

// Base point awards per outcome.
const (
	WinnerPoints = 50
	LoserPoints  = 10
	DrawPoints   = 25
)

const pointsActivityChallenge = "quiz_challenge"

// PerformanceBonus converts a player's own percentage into extra points,
// independent of whether they won.
func PerformanceBonus(percentage int) int {
	switch {
	case percentage >= 100:
		return 20
	case percentage >= 90:
		return 15
	case percentage >= 80:
		return 10
	case percentage >= 70:
		return 5
	}
	return 0
}

// PointAward is one player's computed delta for a single challenge outcome.
type PointAward struct {
	StudentID   uint
	Points      int
	CourseID    string
	Description string
}

// PointsStore owns the StudentPoints ledger rows. ApplyOutcome must commit
// both awards and the win/loss/draw counters atomically, or none of them.
type PointsStore interface {
	ApplyOutcome(ctx context.Context, challenge *models.Challenge, outcome WinnerOutcome, awards [2]PointAward, now time.Time) error
	RecomputeRanks(ctx context.Context) error
	TopGlobal(ctx context.Context, limit int) ([]models.StudentPoints, error)
	TopByCourse(ctx context.Context, courseID string, limit int) ([]models.StudentPoints, error)
}

// LeaderboardService computes point awards and drives the ledger. Rank is a
// derived view recomputed after every award and allowed to lag.
type LeaderboardService struct {
	store PointsStore
	sf    singleflight.Group
}

func NewLeaderboardService(store PointsStore) *LeaderboardService {
	return &LeaderboardService{store: store}
}

var _ LeaderboardUpdater = (*LeaderboardService)(nil)

// ApplyChallengeOutcome awards base + performance points to both players
// atomically, then recomputes global ranks outside the transaction.
func (s *LeaderboardService) ApplyChallengeOutcome(ctx context.Context, challenge *models.Challenge, outcome WinnerOutcome, scoreOne, scoreTwo ScoreBreakdown) error {
	basePointsOne, basePointsTwo := DrawPoints, DrawPoints
	if !outcome.IsDraw {
		if outcome.WonBy(challenge.PlayerOneID) {
			basePointsOne, basePointsTwo = WinnerPoints, LoserPoints
		} else {
			basePointsOne, basePointsTwo = LoserPoints, WinnerPoints
		}
	}

	awards := [2]PointAward{
		{
			StudentID:   challenge.PlayerOneID,
			Points:      basePointsOne + PerformanceBonus(scoreOne.Percentage),
			CourseID:    challenge.CourseID,
			Description: fmt.Sprintf("Challenge match - Score: %d/%d", scoreOne.Score, scoreOne.TotalQuestions),
		},
		{
			StudentID:   challenge.PlayerTwoID,
			Points:      basePointsTwo + PerformanceBonus(scoreTwo.Percentage),
			CourseID:    challenge.CourseID,
			Description: fmt.Sprintf("Challenge match - Score: %d/%d", scoreTwo.Score, scoreTwo.TotalQuestions),
		},
	}

	if err := s.store.ApplyOutcome(ctx, challenge, outcome, awards, time.Now()); err != nil {
		return fmt.Errorf("awarding challenge points: %w", err)
	}

	if err := s.store.RecomputeRanks(ctx); err != nil {
		return fmt.Errorf("recomputing ranks: %w", err)
	}
	return nil
}

// RecomputeRanks reassigns sequential global ranks by total points.
func (s *LeaderboardService) RecomputeRanks(ctx context.Context) error {
	return s.store.RecomputeRanks(ctx)
}

// GetGlobalLeaderboard returns the top ledger entries. Concurrent identical
// reads collapse to one query.
func (s *LeaderboardService) GetGlobalLeaderboard(ctx context.Context, limit int) ([]models.StudentPoints, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	key := fmt.Sprintf("global:%d", limit)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.store.TopGlobal(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.StudentPoints), nil
}

// GetCourseLeaderboard returns top entries among players with history in the
// given course.
func (s *LeaderboardService) GetCourseLeaderboard(ctx context.Context, courseID string, limit int) ([]models.StudentPoints, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	key := fmt.Sprintf("course:%s:%d", courseID, limit)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.store.TopByCourse(ctx, courseID, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.StudentPoints), nil
}

// GormPointsStore implements PointsStore on the shared connection.
type GormPointsStore struct{}

func NewGormPointsStore() *GormPointsStore {
	return &GormPointsStore{}
}

var _ PointsStore = (*GormPointsStore)(nil)

// ApplyOutcome commits both players' awards and the denormalized outcome
// counters in a single transaction.
func (s *GormPointsStore) ApplyOutcome(ctx context.Context, challenge *models.Challenge, outcome WinnerOutcome, awards [2]PointAward, now time.Time) error {
	db := database.GetDB().WithContext(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		for _, award := range awards {
			if err := awardPoints(tx, award, now); err != nil {
				return err
			}
		}
		return recordOutcomeStats(tx, challenge, outcome)
	})
}

// awardPoints creates the ledger row lazily, then applies the delta with a
// row lock held so two concurrent evaluations touching the same player
// cannot interleave their read-modify-write of the history.
func awardPoints(tx *gorm.DB, award PointAward, now time.Time) error {
	entry := models.StudentPoints{StudentID: award.StudentID}
	if err := tx.Where(models.StudentPoints{StudentID: award.StudentID}).
		FirstOrCreate(&entry).Error; err != nil {
		return err
	}

	var locked models.StudentPoints
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ?", award.StudentID).
		First(&locked).Error; err != nil {
		return err
	}

	history := append(locked.History, models.PointEvent{
		Activity:    pointsActivityChallenge,
		Points:      award.Points,
		Description: award.Description,
		CourseID:    award.CourseID,
		EarnedAt:    now,
	})

	return tx.Model(&models.StudentPoints{}).
		Where("student_id = ?", award.StudentID).
		Updates(map[string]any{
			"total_points": gorm.Expr("total_points + ?", award.Points),
			"history":      history,
		}).Error
}

// recordOutcomeStats maintains the denormalized win/loss/draw counters on
// the students table.
func recordOutcomeStats(tx *gorm.DB, challenge *models.Challenge, outcome WinnerOutcome) error {
	column := func(playerID uint) string {
		if outcome.IsDraw {
			return "draws"
		}
		if outcome.WonBy(playerID) {
			return "wins"
		}
		return "losses"
	}

	for _, playerID := range []uint{challenge.PlayerOneID, challenge.PlayerTwoID} {
		col := column(playerID)
		if err := tx.Model(&models.Student{}).
			Where("id = ?", playerID).
			Updates(map[string]any{
				col:                gorm.Expr(col+" + 1"),
				"total_challenges": gorm.Expr("total_challenges + 1"),
			}).Error; err != nil {
			return err
		}
	}
	return nil
}

// RecomputeRanks reassigns sequential global ranks by total points. A full
// recompute, deliberately not atomic with the point award; rank is an
// eventually-consistent view.
func (s *GormPointsStore) RecomputeRanks(ctx context.Context) error {
	db := database.GetDB().WithContext(ctx)
	return db.Exec(`
		UPDATE student_points sp
		SET rank = ranked.new_rank
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY total_points DESC, student_id ASC) AS new_rank
			FROM student_points
		) ranked
		WHERE sp.id = ranked.id
	`).Error
}

func (s *GormPointsStore) TopGlobal(ctx context.Context, limit int) ([]models.StudentPoints, error) {
	db := database.GetDB().WithContext(ctx)
	var entries []models.StudentPoints
	err := db.Preload("Student").
		Order("total_points DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (s *GormPointsStore) TopByCourse(ctx context.Context, courseID string, limit int) ([]models.StudentPoints, error) {
	db := database.GetDB().WithContext(ctx)
	var entries []models.StudentPoints
	err := db.Preload("Student").
		Where("history::text LIKE ?", "%\"course_id\":\""+courseID+"\"%").
		Order("total_points DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
