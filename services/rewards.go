// services/rewards.go - Token and NFT reward distribution
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"chainverse/models"
)

// Reward amounts, in tokens.
const (
	BaseReward           = 100
	VictoryBonus         = 50
	PerfectScoreBonus    = 25
	FastCompletionBonus  = 30 // finished under half the time limit
	QuickCompletionBonus = 15 // finished under 70% of the time limit

	ParticipationReward = 25
)

// NFTEligibilityPercent gates the victory NFT on the winner's percentage,
// not an absolute correct-answer count, so it scales with the configured
// question count.
const NFTEligibilityPercent = 80

// TokenTxRecorder persists the audit row for every allocation attempt.
type TokenTxRecorder interface {
	RecordTransaction(ctx context.Context, tx *models.TokenTransaction) error
}

// RewardStudentStore loads payout details for a player.
type RewardStudentStore interface {
	GetStudent(ctx context.Context, studentID uint) (*models.Student, error)
}

// RewardService implements reward distribution for evaluated challenges.
type RewardService struct {
	allocator TokenAllocator
	minter    NFTMinter
	students  RewardStudentStore
	results   ResultStore
	audit     TokenTxRecorder
	now       func() time.Time
}

func NewRewardService(allocator TokenAllocator, minter NFTMinter, students RewardStudentStore, results ResultStore, audit TokenTxRecorder) *RewardService {
	return &RewardService{
		allocator: allocator,
		minter:    minter,
		students:  students,
		results:   results,
		audit:     audit,
		now:       time.Now,
	}
}

var _ RewardDistributor = (*RewardService)(nil)

// CalculateWinnerReward computes the winner's token amount from their own
// performance: base + victory + perfect-score + speed + score-percentage
// bonuses.
func CalculateWinnerReward(breakdown ScoreBreakdown, elapsedMs, timeLimitMs int64) int {
	total := BaseReward + VictoryBonus

	if breakdown.IsPerfect() {
		total += PerfectScoreBonus
	}

	if timeLimitMs <= 0 {
		timeLimitMs = models.DefaultTimeLimitMs
	}
	ratio := float64(elapsedMs) / float64(timeLimitMs)
	if ratio < 0.5 {
		total += FastCompletionBonus
	} else if ratio < 0.7 {
		total += QuickCompletionBonus
	}

	switch {
	case breakdown.Percentage >= 90:
		total += 20
	case breakdown.Percentage >= 80:
		total += 10
	case breakdown.Percentage >= 70:
		total += 5
	}
	return total
}

// DistributeRewards allocates tokens for both players and requests the
// victory NFT when earned. The idempotency flag is checked before any work
// and set only after both legs completed, so a partial failure leaves the
// result eligible for redelivery.
func (s *RewardService) DistributeRewards(ctx context.Context, challenge *models.Challenge, result *models.ChallengeResult, scoreOne, scoreTwo ScoreBreakdown) error {
	if result.RewardsDistributed {
		return models.ErrRewardsAlreadyDistributed
	}

	legs := []struct {
		playerID  uint
		breakdown ScoreBreakdown
		elapsedMs int64
	}{
		{challenge.PlayerOneID, scoreOne, result.PlayerOneTimeMs},
		{challenge.PlayerTwoID, scoreTwo, result.PlayerTwoTimeMs},
	}

	for _, leg := range legs {
		amount := ParticipationReward
		reason := "Challenge participation"
		isWinner := result.WinnerID != nil && *result.WinnerID == leg.playerID
		if isWinner {
			amount = CalculateWinnerReward(leg.breakdown, leg.elapsedMs, challenge.TimeLimitMs)
			reason = "Challenge victory"
		}

		student, err := s.students.GetStudent(ctx, leg.playerID)
		if err != nil {
			return fmt.Errorf("loading player %d for rewards: %w", leg.playerID, err)
		}

		if err := s.allocateLeg(ctx, challenge, student, amount, reason); err != nil {
			return err
		}

		if isWinner && leg.breakdown.Percentage >= NFTEligibilityPercent && student.HasWallet() {
			s.requestVictoryNFT(ctx, challenge, student)
		}
	}

	if err := s.results.SetRewardsDistributed(ctx, result.ID, s.now()); err != nil {
		return err
	}
	result.RewardsDistributed = true
	return nil
}

// allocateLeg transfers tokens to one player, degrading to an escrowed
// claimable record when no wallet is on file. Every attempt is audited.
func (s *RewardService) allocateLeg(ctx context.Context, challenge *models.Challenge, student *models.Student, amount int, reason string) error {
	challengeID := challenge.ID
	record := models.TokenTransaction{
		Reference:   uuid.NewString(),
		StudentID:   student.ID,
		ChallengeID: &challengeID,
		Amount:      amount,
		Reason:      reason,
	}

	if !student.HasWallet() {
		record.Status = models.TokenTxStatusEscrowed
		record.ClaimCode = uuid.NewString()
		if err := s.audit.RecordTransaction(ctx, &record); err != nil {
			return fmt.Errorf("recording escrow for player %d: %w", student.ID, err)
		}
		log.Printf("challenge %d: %d tokens escrowed for player %d (no wallet on file)", challenge.ID, amount, student.ID)
		return nil
	}

	record.WalletAddress = *student.WalletAddress
	allocation := s.allocator.Allocate(ctx, student.ID, *student.WalletAddress, amount, reason)
	if allocation.Success {
		record.Status = models.TokenTxStatusCompleted
		record.TxHash = allocation.TxHash
		if allocation.TransactionRef != "" {
			record.Reference = allocation.TransactionRef
		}
	} else {
		record.Status = models.TokenTxStatusFailed
		record.Error = allocation.Error
	}

	if err := s.audit.RecordTransaction(ctx, &record); err != nil {
		return fmt.Errorf("recording allocation for player %d: %w", student.ID, err)
	}
	if !allocation.Success {
		return fmt.Errorf("token allocation failed for player %d: %s", student.ID, allocation.Error)
	}
	return nil
}

// requestVictoryNFT is best-effort; a failed mint is audited but never fails
// the distribution.
func (s *RewardService) requestVictoryNFT(ctx context.Context, challenge *models.Challenge, winner *models.Student) {
	mint := s.minter.MintNFT(ctx, winner.ID, *winner.WalletAddress,
		"Challenge Victory NFT",
		fmt.Sprintf("Victory in quiz challenge %d on %s", challenge.ID, s.now().Format("2006-01-02")))

	challengeID := challenge.ID
	record := models.TokenTransaction{
		Reference:     uuid.NewString(),
		StudentID:     winner.ID,
		ChallengeID:   &challengeID,
		WalletAddress: *winner.WalletAddress,
		Amount:        0,
		Reason:        "Challenge victory NFT",
	}
	if mint.Success {
		record.Status = models.TokenTxStatusCompleted
		record.TxHash = mint.TxHash
		if mint.TransactionRef != "" {
			record.Reference = mint.TransactionRef
		}
	} else {
		record.Status = models.TokenTxStatusFailed
		record.Error = mint.Error
	}
	if err := s.audit.RecordTransaction(ctx, &record); err != nil {
		log.Printf("challenge %d: failed to audit NFT mint for player %d: %v", challenge.ID, winner.ID, err)
	}
}
