package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chainverse/models"
)

// In-memory fakes for the orchestrator's collaborators.

type fakeChallengeStore struct {
	mu         sync.Mutex
	challenges map[uint]*models.Challenge
	errors     map[uint]string
}

func newFakeChallengeStore(challenges ...*models.Challenge) *fakeChallengeStore {
	store := &fakeChallengeStore{
		challenges: make(map[uint]*models.Challenge),
		errors:     make(map[uint]string),
	}
	for _, ch := range challenges {
		store.challenges[ch.ID] = ch
	}
	return store
}

func (s *fakeChallengeStore) GetChallenge(_ context.Context, id uint) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[id]
	if !ok {
		return nil, models.ErrChallengeNotFound
	}
	copied := *ch
	return &copied, nil
}

func (s *fakeChallengeStore) MarkCompleted(_ context.Context, id uint, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[id]
	if !ok {
		return false, models.ErrChallengeNotFound
	}
	if ch.Status != models.ChallengeStatusInProgress && ch.Status != models.ChallengeStatusPending {
		return false, nil
	}
	ch.Status = models.ChallengeStatusCompleted
	ch.CompletedAt = &completedAt
	return true, nil
}

func (s *fakeChallengeStore) MarkError(_ context.Context, id uint, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.challenges[id]; ok {
		ch.Status = models.ChallengeStatusError
		ch.ErrorMessage = message
		ch.ErrorAt = &at
	}
	s.errors[id] = message
	return nil
}

func (s *fakeChallengeStore) status(id uint) models.ChallengeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.challenges[id].Status
}

type fakeSubmissionStore struct {
	mu          sync.Mutex
	submissions map[uint][]models.ChallengeSubmission
	err         error
}

func (s *fakeSubmissionStore) add(sub models.ChallengeSubmission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submissions == nil {
		s.submissions = make(map[uint][]models.ChallengeSubmission)
	}
	s.submissions[sub.ChallengeID] = append(s.submissions[sub.ChallengeID], sub)
}

func (s *fakeSubmissionStore) ListByChallenge(_ context.Context, challengeID uint) ([]models.ChallengeSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.submissions[challengeID], nil
}

type fakeResultStore struct {
	mu      sync.Mutex
	results map[uint]*models.ChallengeResult
	creates int
	nextID  uint
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: make(map[uint]*models.ChallengeResult)}
}

func (s *fakeResultStore) CreateResult(_ context.Context, result *models.ChallengeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.ChallengeID]; exists {
		return models.ErrAlreadyEvaluated
	}
	s.nextID++
	result.ID = s.nextID
	copied := *result
	s.results[result.ChallengeID] = &copied
	s.creates++
	return nil
}

func (s *fakeResultStore) GetResultByChallenge(_ context.Context, challengeID uint) (*models.ChallengeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[challengeID]
	if !ok {
		return nil, models.ErrResultNotReady
	}
	copied := *result
	return &copied, nil
}

func (s *fakeResultStore) SetRewardsDistributed(_ context.Context, resultID uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, result := range s.results {
		if result.ID == resultID {
			if result.RewardsDistributed {
				return models.ErrRewardsAlreadyDistributed
			}
			result.RewardsDistributed = true
			result.RewardsDistributedAt = &at
			return nil
		}
	}
	return models.ErrResultNotReady
}

func (s *fakeResultStore) SetNotificationsSent(_ context.Context, resultID uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, result := range s.results {
		if result.ID == resultID {
			result.NotificationsSent = true
			result.NotificationsSentAt = &at
			return nil
		}
	}
	return models.ErrResultNotReady
}

type fakeLeaderboard struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeLeaderboard) ApplyChallengeOutcome(_ context.Context, _ *models.Challenge, _ WinnerOutcome, _, _ ScoreBreakdown) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type fakeRewards struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRewards) DistributeRewards(_ context.Context, _ *models.Challenge, _ *models.ChallengeResult, _, _ ScoreBreakdown) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) SendOutcomeNotifications(_ context.Context, _ *models.Challenge, _ *models.ChallengeResult, _, _ ScoreBreakdown) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type evalFixture struct {
	challenges  *fakeChallengeStore
	submissions *fakeSubmissionStore
	results     *fakeResultStore
	leaderboard *fakeLeaderboard
	rewards     *fakeRewards
	notifier    *fakeNotifier
	service     *EvaluationService
}

func newEvalFixture(challenge *models.Challenge) *evalFixture {
	f := &evalFixture{
		challenges:  newFakeChallengeStore(challenge),
		submissions: &fakeSubmissionStore{},
		results:     newFakeResultStore(),
		leaderboard: &fakeLeaderboard{},
		rewards:     &fakeRewards{},
		notifier:    &fakeNotifier{},
	}
	f.service = NewEvaluationService(f.challenges, f.submissions, f.results, f.leaderboard, f.rewards, f.notifier)
	return f
}

func testChallenge() *models.Challenge {
	return &models.Challenge{
		ID:          7,
		PlayerOneID: 1,
		PlayerTwoID: 2,
		Questions:   fiveQuestions(),
		Status:      models.ChallengeStatusInProgress,
		TimeLimitMs: models.DefaultTimeLimitMs,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func TestEvaluateHappyPath(t *testing.T) {
	challenge := testChallenge()
	f := newEvalFixture(challenge)
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 1,
		Answers: answersFor(challenge.Questions, 4), TotalTimeMs: 30000,
	})
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 2,
		Answers: answersFor(challenge.Questions, 2), TotalTimeMs: 25000,
	})

	result, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	if result.PlayerOneScore != 4 || result.PlayerTwoScore != 2 {
		t.Errorf("scores = %d/%d, want 4/2", result.PlayerOneScore, result.PlayerTwoScore)
	}
	if result.WinnerID == nil || *result.WinnerID != 1 {
		t.Errorf("WinnerID = %v, want 1", result.WinnerID)
	}
	if result.WinnerReason != models.WinnerReasonHigherScore {
		t.Errorf("WinnerReason = %q, want %q", result.WinnerReason, models.WinnerReasonHigherScore)
	}
	if result.AuditHash == "" {
		t.Error("AuditHash is empty")
	}
	if got := f.challenges.status(7); got != models.ChallengeStatusCompleted {
		t.Errorf("challenge status = %q, want completed", got)
	}
	if f.leaderboard.calls != 1 || f.rewards.calls != 1 || f.notifier.calls != 1 {
		t.Errorf("side effect calls = %d/%d/%d, want 1 each",
			f.leaderboard.calls, f.rewards.calls, f.notifier.calls)
	}
}

func TestEvaluateNotReady(t *testing.T) {
	challenge := testChallenge()
	f := newEvalFixture(challenge)
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 1,
		Answers: answersFor(challenge.Questions, 4), TotalTimeMs: 30000,
	})

	_, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic)
	if !errors.Is(err, models.ErrEvaluationNotReady) {
		t.Fatalf("err = %v, want ErrEvaluationNotReady", err)
	}

	// Retryable: the challenge must not be pushed into the error state.
	if got := f.challenges.status(7); got != models.ChallengeStatusInProgress {
		t.Errorf("challenge status = %q, want in_progress", got)
	}
	if f.results.creates != 0 {
		t.Errorf("results created = %d, want 0", f.results.creates)
	}
}

func TestEvaluateExpired(t *testing.T) {
	challenge := testChallenge()
	challenge.Status = models.ChallengeStatusExpired
	f := newEvalFixture(challenge)

	_, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic)
	if !errors.Is(err, models.ErrChallengeExpired) {
		t.Fatalf("err = %v, want ErrChallengeExpired", err)
	}
}

func TestEvaluateAlreadyCompletedReturnsExisting(t *testing.T) {
	challenge := testChallenge()
	f := newEvalFixture(challenge)
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 1,
		Answers: answersFor(challenge.Questions, 3), TotalTimeMs: 25000,
	})
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 2,
		Answers: answersFor(challenge.Questions, 3), TotalTimeMs: 30000,
	})

	first, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic)
	if err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}

	second, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodManual)
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if second.ID != first.ID || second.AuditHash != first.AuditHash {
		t.Error("second evaluation must return the persisted result")
	}
	if f.results.creates != 1 {
		t.Errorf("results created = %d, want 1", f.results.creates)
	}
	if f.rewards.calls != 1 {
		t.Errorf("reward distributions = %d, want 1", f.rewards.calls)
	}
}

func TestEvaluateConcurrentDoubleTrigger(t *testing.T) {
	challenge := testChallenge()
	f := newEvalFixture(challenge)
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 1,
		Answers: answersFor(challenge.Questions, 5), TotalTimeMs: 20000,
	})
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 2,
		Answers: answersFor(challenge.Questions, 1), TotalTimeMs: 40000,
	})

	const attempts = 8
	var wg sync.WaitGroup
	resultErrs := make([]error, attempts)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			_, resultErrs[i] = f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic)
		}(i)
	}
	wg.Wait()

	for i, err := range resultErrs {
		if err != nil {
			t.Errorf("attempt %d returned error: %v", i, err)
		}
	}
	if f.results.creates != 1 {
		t.Errorf("results created = %d, want exactly 1", f.results.creates)
	}
}

func TestEvaluateFailureRecordsErrorState(t *testing.T) {
	challenge := testChallenge()
	f := newEvalFixture(challenge)
	f.submissions.err = errors.New("connection reset")

	_, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic)
	if err == nil {
		t.Fatal("Evaluate returned nil error")
	}
	if got := f.challenges.status(7); got != models.ChallengeStatusError {
		t.Errorf("challenge status = %q, want error", got)
	}
	if f.challenges.errors[7] == "" {
		t.Error("error message not recorded")
	}
}

func TestEvaluateDrawHasNilWinner(t *testing.T) {
	challenge := testChallenge()
	f := newEvalFixture(challenge)
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 1,
		Answers: answersFor(challenge.Questions, 3), TotalTimeMs: 30000,
	})
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 2,
		Answers: answersFor(challenge.Questions, 3), TotalTimeMs: 30000,
	})

	result, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.WinnerID != nil {
		t.Errorf("WinnerID = %v, want nil", result.WinnerID)
	}
	if !result.IsDraw {
		t.Error("IsDraw = false, want true")
	}
	if result.WinnerReason != models.WinnerReasonPerfectTie {
		t.Errorf("WinnerReason = %q, want %q", result.WinnerReason, models.WinnerReasonPerfectTie)
	}
}

func TestRedeliverSkipsFinishedSideEffects(t *testing.T) {
	challenge := testChallenge()
	f := newEvalFixture(challenge)
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 1,
		Answers: answersFor(challenge.Questions, 4), TotalTimeMs: 30000,
	})
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 2,
		Answers: answersFor(challenge.Questions, 2), TotalTimeMs: 25000,
	})

	result, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Mark rewards done, leave notifications pending.
	if err := f.results.SetRewardsDistributed(context.Background(), result.ID, time.Now()); err != nil {
		t.Fatalf("SetRewardsDistributed: %v", err)
	}

	if _, err := f.service.RedeliverSideEffects(context.Background(), 7); err != nil {
		t.Fatalf("RedeliverSideEffects: %v", err)
	}

	if f.rewards.calls != 1 {
		t.Errorf("reward distributions = %d, want 1 (redelivery must skip the flagged leg)", f.rewards.calls)
	}
	if f.notifier.calls != 2 {
		t.Errorf("notification deliveries = %d, want 2", f.notifier.calls)
	}
}

func TestEvaluateCompletesPendingChallenge(t *testing.T) {
	// A failed pending -> in_progress write on submission must not leave an
	// evaluated challenge stranded in pending.
	challenge := testChallenge()
	challenge.Status = models.ChallengeStatusPending
	f := newEvalFixture(challenge)
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 1,
		Answers: answersFor(challenge.Questions, 4), TotalTimeMs: 30000,
	})
	f.submissions.add(models.ChallengeSubmission{
		ChallengeID: 7, PlayerID: 2,
		Answers: answersFor(challenge.Questions, 2), TotalTimeMs: 25000,
	})

	if _, err := f.service.Evaluate(context.Background(), 7, models.EvaluationMethodAutomatic); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := f.challenges.status(7); got != models.ChallengeStatusCompleted {
		t.Errorf("challenge status = %q, want completed", got)
	}
}

func TestAuditHashChangesWithPayload(t *testing.T) {
	winner := uint(1)
	result := &models.ChallengeResult{
		ChallengeID:    7,
		PlayerOneID:    1,
		PlayerTwoID:    2,
		PlayerOneScore: 4,
		PlayerTwoScore: 2,
		WinnerID:       &winner,
		WinnerReason:   models.WinnerReasonHigherScore,
		EvaluatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	first := AuditHash(result)
	if first == "" {
		t.Fatal("AuditHash returned empty string")
	}
	if again := AuditHash(result); again != first {
		t.Error("AuditHash is not deterministic")
	}

	result.PlayerOneScore = 5
	if AuditHash(result) == first {
		t.Error("AuditHash did not change when the payload changed")
	}
}

func TestAuditHashCoversAnswerBreakdown(t *testing.T) {
	winner := uint(1)
	result := &models.ChallengeResult{
		ChallengeID:    7,
		PlayerOneID:    1,
		PlayerTwoID:    2,
		PlayerOneScore: 4,
		PlayerTwoScore: 2,
		WinnerID:       &winner,
		WinnerReason:   models.WinnerReasonHigherScore,
		Details: models.ResultDetails{
			PlayerOne: []models.AnswerDetail{
				{QuestionID: "q-a", SelectedOption: "opt-1", CorrectOption: "opt-1", IsCorrect: true},
				{QuestionID: "q-b", SelectedOption: "opt-2", CorrectOption: "opt-1", IsCorrect: false},
			},
		},
		EvaluatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	first := AuditHash(result)

	result.Details.PlayerOne[1].SelectedOption = "opt-1"
	result.Details.PlayerOne[1].IsCorrect = true
	if AuditHash(result) == first {
		t.Error("AuditHash did not change after tampering with the answer breakdown")
	}

	// The mutable idempotency flags stay outside the digest.
	result.Details.PlayerOne[1].SelectedOption = "opt-2"
	result.Details.PlayerOne[1].IsCorrect = false
	result.RewardsDistributed = true
	result.NotificationsSent = true
	if AuditHash(result) != first {
		t.Error("AuditHash must not depend on the idempotency flags")
	}
}
