// services/evaluation.go - Challenge evaluation orchestrator
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"chainverse/models"
)

// ChallengeStore is the orchestrator's view of challenge records.
type ChallengeStore interface {
	GetChallenge(ctx context.Context, challengeID uint) (*models.Challenge, error)
	// MarkCompleted transitions in_progress -> completed atomically and
	// reports whether this caller performed the transition.
	MarkCompleted(ctx context.Context, challengeID uint, completedAt time.Time) (bool, error)
	MarkError(ctx context.Context, challengeID uint, message string, at time.Time) error
}

// SubmissionStore loads persisted submissions.
type SubmissionStore interface {
	ListByChallenge(ctx context.Context, challengeID uint) ([]models.ChallengeSubmission, error)
}

// ResultStore persists evaluation results and mutates only the two
// idempotency flags afterwards.
type ResultStore interface {
	// CreateResult returns models.ErrAlreadyEvaluated when a result for the
	// challenge already exists. That insert is the serialization point for
	// racing evaluation attempts.
	CreateResult(ctx context.Context, result *models.ChallengeResult) error
	GetResultByChallenge(ctx context.Context, challengeID uint) (*models.ChallengeResult, error)
	SetRewardsDistributed(ctx context.Context, resultID uint, at time.Time) error
	SetNotificationsSent(ctx context.Context, resultID uint, at time.Time) error
}

// LeaderboardUpdater applies both players' point awards.
type LeaderboardUpdater interface {
	ApplyChallengeOutcome(ctx context.Context, challenge *models.Challenge, outcome WinnerOutcome, scoreOne, scoreTwo ScoreBreakdown) error
}

// RewardDistributor allocates tokens and NFTs for an evaluated challenge.
type RewardDistributor interface {
	DistributeRewards(ctx context.Context, challenge *models.Challenge, result *models.ChallengeResult, scoreOne, scoreTwo ScoreBreakdown) error
}

// OutcomeNotifier delivers the outcome to both players.
type OutcomeNotifier interface {
	SendOutcomeNotifications(ctx context.Context, challenge *models.Challenge, result *models.ChallengeResult, scoreOne, scoreTwo ScoreBreakdown) error
}

// ChallengeEventPublisher receives lifecycle events for the live feed.
// Optional; nil publisher drops events.
type ChallengeEventPublisher func(challengeID uint, event string, payload any)

// EvaluationService sequences scoring, winner resolution, result
// persistence and the downstream side effects for a challenge once both
// submissions exist.
type EvaluationService struct {
	challenges  ChallengeStore
	submissions SubmissionStore
	results     ResultStore
	leaderboard LeaderboardUpdater
	rewards     RewardDistributor
	notifier    OutcomeNotifier
	publish     ChallengeEventPublisher
	now         func() time.Time
}

func NewEvaluationService(
	challenges ChallengeStore,
	submissions SubmissionStore,
	results ResultStore,
	leaderboard LeaderboardUpdater,
	rewards RewardDistributor,
	notifier OutcomeNotifier,
) *EvaluationService {
	return &EvaluationService{
		challenges:  challenges,
		submissions: submissions,
		results:     results,
		leaderboard: leaderboard,
		rewards:     rewards,
		notifier:    notifier,
		now:         time.Now,
	}
}

// SetEventPublisher wires the live feed; called once from main.
func (s *EvaluationService) SetEventPublisher(publish ChallengeEventPublisher) {
	s.publish = publish
}

// Evaluate runs the full evaluation saga for a challenge.
//
// Guard order matters: terminal statuses are refused before any work, the
// missing-submission case is retryable and must not record an error state,
// and a duplicate result insert means another attempt already finished, so
// this one exits quietly with the persisted result.
//
// Any other failure before the challenge is marked completed transitions it
// to the error state and propagates, so schedulers can log and alert.
// Side-effect failures after that point are logged and isolated; the
// idempotency flags let an admin re-run only the unfinished pieces.
func (s *EvaluationService) Evaluate(ctx context.Context, challengeID uint, method string) (*models.ChallengeResult, error) {
	challenge, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	switch challenge.Status {
	case models.ChallengeStatusCompleted:
		existing, err := s.results.GetResultByChallenge(ctx, challengeID)
		if err != nil {
			return nil, models.ErrAlreadyEvaluated
		}
		return existing, nil
	case models.ChallengeStatusExpired:
		return nil, models.ErrChallengeExpired
	}

	result, scoreOne, scoreTwo, err := s.evaluateAndPersist(ctx, challenge, method)
	if err != nil {
		if err == models.ErrEvaluationNotReady {
			// Triggered prematurely; a later delivery will retry.
			return nil, err
		}
		if err == models.ErrAlreadyEvaluated {
			// Lost the race with a concurrent attempt.
			if existing, getErr := s.results.GetResultByChallenge(ctx, challengeID); getErr == nil {
				return existing, nil
			}
			return nil, err
		}
		s.recordError(ctx, challengeID, err)
		return nil, err
	}

	s.runSideEffects(ctx, challenge, result, scoreOne, scoreTwo)

	if s.publish != nil {
		s.publish(challengeID, "evaluation_completed", result)
	}
	log.Printf("challenge %d evaluation completed (winner=%v draw=%v)", challengeID, result.WinnerID, result.IsDraw)
	return result, nil
}

func (s *EvaluationService) evaluateAndPersist(ctx context.Context, challenge *models.Challenge, method string) (*models.ChallengeResult, ScoreBreakdown, ScoreBreakdown, error) {
	var zero ScoreBreakdown

	submissions, err := s.submissions.ListByChallenge(ctx, challenge.ID)
	if err != nil {
		return nil, zero, zero, fmt.Errorf("loading submissions: %w", err)
	}
	if len(submissions) < 2 {
		return nil, zero, zero, models.ErrEvaluationNotReady
	}

	var subOne, subTwo *models.ChallengeSubmission
	for i := range submissions {
		switch submissions[i].PlayerID {
		case challenge.PlayerOneID:
			subOne = &submissions[i]
		case challenge.PlayerTwoID:
			subTwo = &submissions[i]
		}
	}
	if subOne == nil || subTwo == nil {
		return nil, zero, zero, models.ErrEvaluationNotReady
	}

	scoreOne := CalculateScore(subOne.Answers, challenge.Questions)
	scoreTwo := CalculateScore(subTwo.Answers, challenge.Questions)

	outcome := DetermineWinner(
		challenge.PlayerOneID, challenge.PlayerTwoID,
		scoreOne.Score, scoreTwo.Score,
		subOne.TotalTimeMs, subTwo.TotalTimeMs,
	)

	result := &models.ChallengeResult{
		ChallengeID:         challenge.ID,
		PlayerOneID:         challenge.PlayerOneID,
		PlayerTwoID:         challenge.PlayerTwoID,
		PlayerOneScore:      scoreOne.Score,
		PlayerTwoScore:      scoreTwo.Score,
		PlayerOnePercentage: scoreOne.Percentage,
		PlayerTwoPercentage: scoreTwo.Percentage,
		PlayerOneTimeMs:     subOne.TotalTimeMs,
		PlayerTwoTimeMs:     subTwo.TotalTimeMs,
		WinnerID:            outcome.WinnerID,
		IsDraw:              outcome.IsDraw,
		WinnerReason:        outcome.WinnerReason,
		Details: models.ResultDetails{
			PlayerOne: scoreOne.Details,
			PlayerTwo: scoreTwo.Details,
		},
		EvaluatedAt:      s.now(),
		EvaluationMethod: method,
	}
	result.AuditHash = AuditHash(result)

	if err := s.results.CreateResult(ctx, result); err != nil {
		return nil, zero, zero, err
	}

	performed, err := s.challenges.MarkCompleted(ctx, challenge.ID, s.now())
	if err != nil {
		// The result exists, so the evaluation itself succeeded; the status
		// write is retried by the admin redelivery path.
		log.Printf("challenge %d: completed-status transition failed: %v", challenge.ID, err)
	} else if !performed {
		log.Printf("challenge %d: completed-status transition affected no rows", challenge.ID)
	}

	return result, scoreOne, scoreTwo, nil
}

// runSideEffects fans out the three independent side effects. Each one is
// isolated: a failure is logged and never rolls back the persisted result.
func (s *EvaluationService) runSideEffects(ctx context.Context, challenge *models.Challenge, result *models.ChallengeResult, scoreOne, scoreTwo ScoreBreakdown) {
	outcome := WinnerOutcome{
		WinnerID:        result.WinnerID,
		IsDraw:          result.IsDraw,
		WinnerReason:    result.WinnerReason,
		PlayerOneScore:  result.PlayerOneScore,
		PlayerTwoScore:  result.PlayerTwoScore,
		PlayerOneTimeMs: result.PlayerOneTimeMs,
		PlayerTwoTimeMs: result.PlayerTwoTimeMs,
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := s.leaderboard.ApplyChallengeOutcome(ctx, challenge, outcome, scoreOne, scoreTwo); err != nil {
			log.Printf("challenge %d: leaderboard update failed: %v", challenge.ID, err)
		}
	}()

	go func() {
		defer wg.Done()
		if err := s.rewards.DistributeRewards(ctx, challenge, result, scoreOne, scoreTwo); err != nil {
			log.Printf("challenge %d: reward distribution failed: %v", challenge.ID, err)
		}
	}()

	go func() {
		defer wg.Done()
		if err := s.notifier.SendOutcomeNotifications(ctx, challenge, result, scoreOne, scoreTwo); err != nil {
			log.Printf("challenge %d: notifications failed: %v", challenge.ID, err)
		}
	}()

	wg.Wait()
}

// RedeliverSideEffects re-runs only the side effects whose idempotency flag
// is still unset. Admin-triggered recovery after a partial failure.
func (s *EvaluationService) RedeliverSideEffects(ctx context.Context, challengeID uint) (*models.ChallengeResult, error) {
	challenge, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	result, err := s.results.GetResultByChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListByChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	var scoreOne, scoreTwo ScoreBreakdown
	for i := range submissions {
		breakdown := CalculateScore(submissions[i].Answers, challenge.Questions)
		if submissions[i].PlayerID == challenge.PlayerOneID {
			scoreOne = breakdown
		} else {
			scoreTwo = breakdown
		}
	}

	if !result.RewardsDistributed {
		if err := s.rewards.DistributeRewards(ctx, challenge, result, scoreOne, scoreTwo); err != nil {
			log.Printf("challenge %d: reward redelivery failed: %v", challengeID, err)
		}
	}
	if !result.NotificationsSent {
		if err := s.notifier.SendOutcomeNotifications(ctx, challenge, result, scoreOne, scoreTwo); err != nil {
			log.Printf("challenge %d: notification redelivery failed: %v", challengeID, err)
		}
	}
	return s.results.GetResultByChallenge(ctx, challengeID)
}

func (s *EvaluationService) recordError(ctx context.Context, challengeID uint, cause error) {
	if err := s.challenges.MarkError(ctx, challengeID, cause.Error(), s.now()); err != nil {
		log.Printf("challenge %d: failed to record error status: %v", challengeID, err)
	}
}

// AuditHash computes the tamper-evidence checksum stored on every result: a
// SHA-256 digest of the full immutable payload serialized with sorted keys.
// Everything except the two idempotency flags is covered, including the
// per-question breakdown. Not a signature; a change to any persisted field
// changes the hash.
func AuditHash(r *models.ChallengeResult) string {
	payload := map[string]any{
		"challenge_id":          r.ChallengeID,
		"player_one_id":         r.PlayerOneID,
		"player_two_id":         r.PlayerTwoID,
		"player_one_score":      r.PlayerOneScore,
		"player_two_score":      r.PlayerTwoScore,
		"player_one_percentage": r.PlayerOnePercentage,
		"player_two_percentage": r.PlayerTwoPercentage,
		"player_one_time_ms":    r.PlayerOneTimeMs,
		"player_two_time_ms":    r.PlayerTwoTimeMs,
		"winner_id":             r.WinnerID,
		"is_draw":               r.IsDraw,
		"winner_reason":         r.WinnerReason,
		"details":               r.Details,
		"evaluated_at":          r.EvaluatedAt.UTC().Format(time.RFC3339Nano),
		"evaluation_method":     r.EvaluationMethod,
	}
	// encoding/json writes map keys in sorted order.
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
