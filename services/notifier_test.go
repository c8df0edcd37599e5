package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chainverse/models"
)

type fakeEmailService struct {
	mu    sync.Mutex
	sent  []string // recipient emails
	texts []string
	fail  map[string]bool
}

func (f *fakeEmailService) Send(_ context.Context, toEmail, _, _, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[toEmail] {
		return errors.New("smtp rejected")
	}
	f.sent = append(f.sent, toEmail)
	f.texts = append(f.texts, body)
	return nil
}

type fakeNotificationStore struct {
	mu      sync.Mutex
	created []models.Notification
}

func (f *fakeNotificationStore) CreateNotification(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *n)
	return nil
}

func notifierFixture() (*NotificationService, *fakeEmailService, *fakeNotificationStore, *fakeResultStore) {
	email := &fakeEmailService{fail: make(map[string]bool)}
	notifications := &fakeNotificationStore{}
	results := newFakeResultStore()
	students := &fakeStudentStore{students: map[uint]*models.Student{
		1: {ID: 1, Name: "Ada", Email: "ada@example.com"},
		2: {ID: 2, Name: "Kwame", Email: "kwame@example.com"},
	}}
	return NewNotificationService(email, students, notifications, results), email, notifications, results
}

func notifierResult(t *testing.T, results *fakeResultStore, challenge *models.Challenge, winnerID *uint) *models.ChallengeResult {
	t.Helper()
	result := &models.ChallengeResult{
		ChallengeID:  challenge.ID,
		PlayerOneID:  challenge.PlayerOneID,
		PlayerTwoID:  challenge.PlayerTwoID,
		WinnerID:     winnerID,
		IsDraw:       winnerID == nil,
		WinnerReason: models.WinnerReasonHigherScore,
		EvaluatedAt:  time.Now(),
	}
	if winnerID == nil {
		result.WinnerReason = models.WinnerReasonPerfectTie
	}
	if err := results.CreateResult(context.Background(), result); err != nil {
		t.Fatalf("CreateResult: %v", err)
	}
	return result
}

func TestSendOutcomeNotificationsBothPlayers(t *testing.T) {
	service, email, notifications, results := notifierFixture()
	challenge := testChallenge()
	winnerID := uint(1)
	result := notifierResult(t, results, challenge, &winnerID)

	scoreOne := ScoreBreakdown{Score: 4, TotalQuestions: 5, Percentage: 80}
	scoreTwo := ScoreBreakdown{Score: 2, TotalQuestions: 5, Percentage: 40}

	if err := service.SendOutcomeNotifications(context.Background(), challenge, result, scoreOne, scoreTwo); err != nil {
		t.Fatalf("SendOutcomeNotifications: %v", err)
	}

	if len(email.sent) != 2 {
		t.Fatalf("emails sent = %d, want 2", len(email.sent))
	}
	if !strings.Contains(email.texts[0], "You won the challenge!") {
		t.Error("winner message missing victory framing")
	}
	if !strings.Contains(email.texts[0], "Your Score: 4/5 (80%)") {
		t.Errorf("winner message missing own score: %q", email.texts[0])
	}
	if !strings.Contains(email.texts[1], "Your opponent won the challenge.") {
		t.Error("loser message missing defeat framing")
	}
	if !strings.Contains(email.texts[1], "Opponent's Score: 4/5") {
		t.Error("loser message missing opponent score")
	}

	if len(notifications.created) != 2 {
		t.Errorf("notification rows = %d, want 2", len(notifications.created))
	}
	if !result.NotificationsSent {
		t.Error("NotificationsSent flag not set")
	}
}

func TestSendOutcomeNotificationsDrawFraming(t *testing.T) {
	service, email, _, results := notifierFixture()
	challenge := testChallenge()
	result := notifierResult(t, results, challenge, nil)

	score := ScoreBreakdown{Score: 3, TotalQuestions: 5, Percentage: 60}
	if err := service.SendOutcomeNotifications(context.Background(), challenge, result, score, score); err != nil {
		t.Fatalf("SendOutcomeNotifications: %v", err)
	}

	for i, body := range email.texts {
		if !strings.Contains(body, "The match ended in a draw!") {
			t.Errorf("message %d missing draw framing", i)
		}
	}
}

func TestSendOutcomeNotificationsFirstFailureStillReachesSecond(t *testing.T) {
	service, email, notifications, results := notifierFixture()
	email.fail["ada@example.com"] = true

	challenge := testChallenge()
	winnerID := uint(1)
	result := notifierResult(t, results, challenge, &winnerID)

	score := ScoreBreakdown{Score: 3, TotalQuestions: 5, Percentage: 60}
	if err := service.SendOutcomeNotifications(context.Background(), challenge, result, score, score); err != nil {
		t.Fatalf("SendOutcomeNotifications: %v", err)
	}

	if len(email.sent) != 1 || email.sent[0] != "kwame@example.com" {
		t.Errorf("sent = %v, want only kwame@example.com", email.sent)
	}
	// The in-app row for the failed email leg is still written.
	if len(notifications.created) != 2 {
		t.Errorf("notification rows = %d, want 2", len(notifications.created))
	}
	if !result.NotificationsSent {
		t.Error("delivery failure must not block the attempt flag")
	}
}

func TestSendOutcomeNotificationsSkipsWhenFlagSet(t *testing.T) {
	service, email, _, results := notifierFixture()
	challenge := testChallenge()
	winnerID := uint(1)
	result := notifierResult(t, results, challenge, &winnerID)
	result.NotificationsSent = true

	if err := service.SendOutcomeNotifications(context.Background(), challenge, result, ScoreBreakdown{}, ScoreBreakdown{}); err != nil {
		t.Fatalf("SendOutcomeNotifications: %v", err)
	}
	if len(email.sent) != 0 {
		t.Errorf("emails sent = %d, want 0", len(email.sent))
	}
}
