package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chainverse/models"
)

type fakeAllocator struct {
	mu    sync.Mutex
	calls []int
	fail  bool
}

func (f *fakeAllocator) Allocate(_ context.Context, _ uint, _ string, amount int, _ string) AllocationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, amount)
	if f.fail {
		return AllocationResult{Success: false, Error: "chain unavailable"}
	}
	return AllocationResult{Success: true, TransactionRef: "ref", TxHash: "0xabc"}
}

type fakeMinter struct {
	mu    sync.Mutex
	mints int
	fail  bool
}

func (f *fakeMinter) MintNFT(_ context.Context, _ uint, _ string, _, _ string) AllocationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mints++
	if f.fail {
		return AllocationResult{Success: false, Error: "mint rejected"}
	}
	return AllocationResult{Success: true, TransactionRef: "nft-ref", TxHash: "0xdef"}
}

type fakeStudentStore struct {
	students map[uint]*models.Student
}

func (f *fakeStudentStore) GetStudent(_ context.Context, id uint) (*models.Student, error) {
	student, ok := f.students[id]
	if !ok {
		return nil, errors.New("student not found")
	}
	return student, nil
}

type fakeTxRecorder struct {
	mu      sync.Mutex
	records []models.TokenTransaction
}

func (f *fakeTxRecorder) RecordTransaction(_ context.Context, tx *models.TokenTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *tx)
	return nil
}

func (f *fakeTxRecorder) byStatus(status string) []models.TokenTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TokenTransaction
	for _, record := range f.records {
		if record.Status == status {
			out = append(out, record)
		}
	}
	return out
}

type rewardFixture struct {
	allocator *fakeAllocator
	minter    *fakeMinter
	students  *fakeStudentStore
	results   *fakeResultStore
	audit     *fakeTxRecorder
	service   *RewardService
}

func newRewardFixture(students ...*models.Student) *rewardFixture {
	f := &rewardFixture{
		allocator: &fakeAllocator{},
		minter:    &fakeMinter{},
		students:  &fakeStudentStore{students: make(map[uint]*models.Student)},
		results:   newFakeResultStore(),
		audit:     &fakeTxRecorder{},
	}
	for _, s := range students {
		f.students.students[s.ID] = s
	}
	f.service = NewRewardService(f.allocator, f.minter, f.students, f.results, f.audit)
	return f
}

func walletStudent(id uint, name string) *models.Student {
	wallet := "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	return &models.Student{ID: id, Name: name, Email: name + "@example.com", WalletAddress: &wallet}
}

func persistedResult(t *testing.T, f *rewardFixture, challenge *models.Challenge, winnerID *uint, p1Time, p2Time int64) *models.ChallengeResult {
	t.Helper()
	result := &models.ChallengeResult{
		ChallengeID:     challenge.ID,
		PlayerOneID:     challenge.PlayerOneID,
		PlayerTwoID:     challenge.PlayerTwoID,
		WinnerID:        winnerID,
		IsDraw:          winnerID == nil,
		PlayerOneTimeMs: p1Time,
		PlayerTwoTimeMs: p2Time,
		EvaluatedAt:     time.Now(),
	}
	if err := f.results.CreateResult(context.Background(), result); err != nil {
		t.Fatalf("CreateResult: %v", err)
	}
	return result
}

func TestCalculateWinnerReward(t *testing.T) {
	questions := fiveQuestions()

	tests := []struct {
		name      string
		correct   int
		elapsedMs int64
		want      int
	}{
		// base 100 + victory 50 + perfect 25 + fast 30 + score% 20
		{"perfect and fast", 5, 100000, 225},
		// base + victory + perfect + quick 15 + 20
		{"perfect and quick", 5, 180000, 210},
		// base + victory + perfect + 20, no speed bonus
		{"perfect and slow", 5, 250000, 195},
		// 4/5 = 80%: base + victory + fast + 10
		{"eighty percent fast", 4, 100000, 190},
		// 3/5 = 60%: base + victory + fast only
		{"sixty percent fast", 3, 100000, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breakdown := CalculateScore(answersFor(questions, tt.correct), questions)
			got := CalculateWinnerReward(breakdown, tt.elapsedMs, models.DefaultTimeLimitMs)
			if got != tt.want {
				t.Errorf("CalculateWinnerReward = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDistributeRewardsWinnerAndLoser(t *testing.T) {
	winner := walletStudent(1, "ada")
	loser := walletStudent(2, "kwame")
	f := newRewardFixture(winner, loser)

	challenge := testChallenge()
	winnerID := uint(1)
	result := persistedResult(t, f, challenge, &winnerID, 100000, 120000)

	scoreOne := CalculateScore(answersFor(challenge.Questions, 5), challenge.Questions)
	scoreTwo := CalculateScore(answersFor(challenge.Questions, 2), challenge.Questions)

	if err := f.service.DistributeRewards(context.Background(), challenge, result, scoreOne, scoreTwo); err != nil {
		t.Fatalf("DistributeRewards: %v", err)
	}

	if len(f.allocator.calls) != 2 {
		t.Fatalf("allocations = %d, want 2", len(f.allocator.calls))
	}
	if f.allocator.calls[0] != 225 {
		t.Errorf("winner amount = %d, want 225", f.allocator.calls[0])
	}
	if f.allocator.calls[1] != ParticipationReward {
		t.Errorf("loser amount = %d, want %d", f.allocator.calls[1], ParticipationReward)
	}
	if f.minter.mints != 1 {
		t.Errorf("NFT mints = %d, want 1 (perfect-score winner with wallet)", f.minter.mints)
	}
	if !result.RewardsDistributed {
		t.Error("RewardsDistributed flag not set")
	}
}

func TestDistributeRewardsIdempotencyGuard(t *testing.T) {
	f := newRewardFixture(walletStudent(1, "ada"), walletStudent(2, "kwame"))

	challenge := testChallenge()
	winnerID := uint(1)
	result := persistedResult(t, f, challenge, &winnerID, 100000, 120000)
	result.RewardsDistributed = true

	err := f.service.DistributeRewards(context.Background(), challenge, result, ScoreBreakdown{}, ScoreBreakdown{})
	if !errors.Is(err, models.ErrRewardsAlreadyDistributed) {
		t.Fatalf("err = %v, want ErrRewardsAlreadyDistributed", err)
	}
	if len(f.allocator.calls) != 0 {
		t.Errorf("allocations = %d, want 0", len(f.allocator.calls))
	}
}

func TestDistributeRewardsEscrowWithoutWallet(t *testing.T) {
	winner := &models.Student{ID: 1, Name: "ada", Email: "ada@example.com"} // no wallet
	loser := walletStudent(2, "kwame")
	f := newRewardFixture(winner, loser)

	challenge := testChallenge()
	winnerID := uint(1)
	result := persistedResult(t, f, challenge, &winnerID, 100000, 120000)

	scoreOne := CalculateScore(answersFor(challenge.Questions, 5), challenge.Questions)
	scoreTwo := CalculateScore(answersFor(challenge.Questions, 2), challenge.Questions)

	if err := f.service.DistributeRewards(context.Background(), challenge, result, scoreOne, scoreTwo); err != nil {
		t.Fatalf("DistributeRewards: %v", err)
	}

	escrowed := f.audit.byStatus(models.TokenTxStatusEscrowed)
	if len(escrowed) != 1 {
		t.Fatalf("escrowed records = %d, want 1", len(escrowed))
	}
	if escrowed[0].ClaimCode == "" {
		t.Error("escrowed record has no claim code")
	}
	if escrowed[0].Amount != 225 {
		t.Errorf("escrowed amount = %d, want 225", escrowed[0].Amount)
	}
	// Only the loser reaches the chain; the walletless winner is escrowed.
	if len(f.allocator.calls) != 1 {
		t.Errorf("allocations = %d, want 1", len(f.allocator.calls))
	}
	if f.minter.mints != 0 {
		t.Errorf("NFT mints = %d, want 0 without a wallet", f.minter.mints)
	}
	if !result.RewardsDistributed {
		t.Error("escrow still counts as a completed distribution")
	}
}

func TestDistributeRewardsDrawPaysParticipationTwice(t *testing.T) {
	f := newRewardFixture(walletStudent(1, "ada"), walletStudent(2, "kwame"))

	challenge := testChallenge()
	result := persistedResult(t, f, challenge, nil, 30000, 30000)

	score := CalculateScore(answersFor(challenge.Questions, 3), challenge.Questions)
	if err := f.service.DistributeRewards(context.Background(), challenge, result, score, score); err != nil {
		t.Fatalf("DistributeRewards: %v", err)
	}

	if len(f.allocator.calls) != 2 {
		t.Fatalf("allocations = %d, want 2", len(f.allocator.calls))
	}
	for i, amount := range f.allocator.calls {
		if amount != ParticipationReward {
			t.Errorf("allocation %d = %d, want %d", i, amount, ParticipationReward)
		}
	}
	if f.minter.mints != 0 {
		t.Errorf("NFT mints = %d, want 0 on a draw", f.minter.mints)
	}
}

func TestDistributeRewardsAllocationFailureLeavesFlagUnset(t *testing.T) {
	f := newRewardFixture(walletStudent(1, "ada"), walletStudent(2, "kwame"))
	f.allocator.fail = true

	challenge := testChallenge()
	winnerID := uint(1)
	result := persistedResult(t, f, challenge, &winnerID, 100000, 120000)

	score := CalculateScore(answersFor(challenge.Questions, 4), challenge.Questions)
	err := f.service.DistributeRewards(context.Background(), challenge, result, score, score)
	if err == nil {
		t.Fatal("DistributeRewards returned nil error")
	}
	if result.RewardsDistributed {
		t.Error("flag must stay unset after a failed allocation so redelivery can retry")
	}
	failed := f.audit.byStatus(models.TokenTxStatusFailed)
	if len(failed) == 0 {
		t.Error("failed allocation was not audited")
	}
}

func TestNFTRequiresEligiblePercentage(t *testing.T) {
	f := newRewardFixture(walletStudent(1, "ada"), walletStudent(2, "kwame"))

	challenge := testChallenge()
	winnerID := uint(1)
	result := persistedResult(t, f, challenge, &winnerID, 100000, 120000)

	// 3/5 = 60%, below the eligibility threshold.
	scoreOne := CalculateScore(answersFor(challenge.Questions, 3), challenge.Questions)
	scoreTwo := CalculateScore(answersFor(challenge.Questions, 2), challenge.Questions)

	if err := f.service.DistributeRewards(context.Background(), challenge, result, scoreOne, scoreTwo); err != nil {
		t.Fatalf("DistributeRewards: %v", err)
	}
	if f.minter.mints != 0 {
		t.Errorf("NFT mints = %d, want 0 below %d%%", f.minter.mints, NFTEligibilityPercent)
	}
}
