// handlers/admin.go
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"chainverse/models"
)

// AdminEvaluateChallenge triggers evaluation manually, e.g. after an
// automatic run left the challenge in an error state.
// POST /api/admin/challenges/:id/evaluate
func AdminEvaluateChallenge(c *fiber.Ctx) error {
	challengeID, err := parseChallengeID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := evaluator.Evaluate(c.Context(), challengeID, models.EvaluationMethodManual)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChallengeNotFound):
			return c.Status(404).JSON(fiber.Map{"error": "Challenge not found"})
		case errors.Is(err, models.ErrEvaluationNotReady):
			return c.Status(400).JSON(fiber.Map{"error": "Both players must submit before evaluation"})
		case errors.Is(err, models.ErrChallengeExpired):
			return c.Status(400).JSON(fiber.Map{"error": "Challenge has expired"})
		default:
			return c.Status(500).JSON(fiber.Map{"error": "Evaluation failed: " + err.Error()})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"result":  result,
	})
}

// AdminRedeliverSideEffects re-runs reward distribution and notifications
// for an evaluated challenge, skipping legs already flagged as done.
// POST /api/admin/challenges/:id/redeliver
func AdminRedeliverSideEffects(c *fiber.Ctx) error {
	challengeID, err := parseChallengeID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := evaluator.RedeliverSideEffects(c.Context(), challengeID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChallengeNotFound):
			return c.Status(404).JSON(fiber.Map{"error": "Challenge not found"})
		case errors.Is(err, models.ErrResultNotReady):
			return c.Status(400).JSON(fiber.Map{"error": "Challenge has not been evaluated yet"})
		default:
			return c.Status(500).JSON(fiber.Map{"error": "Redelivery failed: " + err.Error()})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"result":  result,
	})
}
