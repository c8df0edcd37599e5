// services/notifier.go - Outcome notifications
package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"chainverse/models"
)

// EmailService is the external dispatch capability: send(email, subject,
// body) -> success|failure.
type EmailService interface {
	Send(ctx context.Context, toEmail, toName, subject, body string) error
}

// SendgridEmailService sends through the SendGrid v3 API.
type SendgridEmailService struct {
	key      string
	from     *sgmail.Email
	endpoint string
	host     string
}

func NewSendgridEmailService() *SendgridEmailService {
	fromEmail := os.Getenv("EMAIL_FROM")
	if fromEmail == "" {
		fromEmail = "noreply@chainverse.app"
	}
	return &SendgridEmailService{
		key:      os.Getenv("SENDGRID_API_KEY"),
		from:     sgmail.NewEmail("ChainVerse", fromEmail),
		endpoint: "/v3/mail/send",
		host:     "https://api.sendgrid.com",
	}
}

var _ EmailService = (*SendgridEmailService)(nil)

func (s *SendgridEmailService) Send(_ context.Context, toEmail, toName, subject, body string) error {
	msg := sgmail.NewSingleEmail(s.from, subject, sgmail.NewEmail(toName, toEmail), body, "")

	req := sendgrid.GetRequest(s.key, s.endpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(msg)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sending email to %s: %w", toEmail, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email to %s: status %d - %s", toEmail, res.StatusCode, res.Body)
	}
	return nil
}

// ConsoleEmailService logs instead of sending; the dev default when no
// SendGrid key is configured.
type ConsoleEmailService struct{}

var _ EmailService = (*ConsoleEmailService)(nil)

func (ConsoleEmailService) Send(_ context.Context, toEmail, _, subject, body string) error {
	log.Printf("EMAIL to=%s subject=%q\n%s", toEmail, subject, body)
	return nil
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// NotificationService builds and delivers per-player outcome messages.
// Failures here are logged, never escalated; delivery is best-effort and the
// idempotency flag marks the attempt as done either way.
type NotificationService struct {
	email         EmailService
	students      RewardStudentStore
	notifications NotificationStore
	results       ResultStore
	now           func() time.Time
}

func NewNotificationService(email EmailService, students RewardStudentStore, notifications NotificationStore, results ResultStore) *NotificationService {
	return &NotificationService{
		email:         email,
		students:      students,
		notifications: notifications,
		results:       results,
		now:           time.Now,
	}
}

var _ OutcomeNotifier = (*NotificationService)(nil)

// SendOutcomeNotifications delivers the result to both players. Both
// dispatches are attempted even if the first fails.
func (s *NotificationService) SendOutcomeNotifications(ctx context.Context, challenge *models.Challenge, result *models.ChallengeResult, scoreOne, scoreTwo ScoreBreakdown) error {
	if result.NotificationsSent {
		return nil
	}

	legs := []struct {
		playerID uint
		own      ScoreBreakdown
		opponent ScoreBreakdown
	}{
		{challenge.PlayerOneID, scoreOne, scoreTwo},
		{challenge.PlayerTwoID, scoreTwo, scoreOne},
	}

	for _, leg := range legs {
		if err := s.notifyPlayer(ctx, challenge, result, leg.playerID, leg.own, leg.opponent); err != nil {
			log.Printf("challenge %d: notifying player %d failed: %v", challenge.ID, leg.playerID, err)
		}
	}

	if err := s.results.SetNotificationsSent(ctx, result.ID, s.now()); err != nil {
		return err
	}
	result.NotificationsSent = true
	return nil
}

func (s *NotificationService) notifyPlayer(ctx context.Context, challenge *models.Challenge, result *models.ChallengeResult, playerID uint, own, opponent ScoreBreakdown) error {
	student, err := s.students.GetStudent(ctx, playerID)
	if err != nil {
		return err
	}

	var framing string
	switch {
	case result.IsDraw:
		framing = "The match ended in a draw!"
	case result.WinnerID != nil && *result.WinnerID == playerID:
		framing = "You won the challenge!"
	default:
		framing = "Your opponent won the challenge."
	}

	body := fmt.Sprintf(
		"Hi %s,\n\nYour quiz challenge has been completed!\n\n"+
			"Your Score: %d/%d (%d%%)\n"+
			"Opponent's Score: %d/%d\n\n"+
			"Result: %s (%s)\n\n"+
			"Check your leaderboard position for updated rankings!",
		student.Name,
		own.Score, own.TotalQuestions, own.Percentage,
		opponent.Score, opponent.TotalQuestions,
		framing, result.WinnerReason,
	)

	challengeID := challenge.ID
	notification := models.Notification{
		StudentID:   playerID,
		Title:       "Quiz Challenge Results",
		Message:     body,
		Type:        models.NotificationTypeChallengeResult,
		ChallengeID: &challengeID,
	}
	if err := s.notifications.CreateNotification(ctx, &notification); err != nil {
		log.Printf("challenge %d: persisting notification for player %d failed: %v", challenge.ID, playerID, err)
	}

	return s.email.Send(ctx, student.Email, student.Name, "Quiz Challenge Results", body)
}
