// handlers/leaderboard.go
package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"chainverse/models"
)

type leaderboardEntry struct {
	Rank        int    `json:"rank"`
	StudentID   uint   `json:"student_id"`
	Name        string `json:"name"`
	TotalPoints int    `json:"total_points"`
}

// GetLeaderboard returns ranked standings, globally or per course.
// GET /api/leaderboard?course_id=...&limit=100
func GetLeaderboard(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	if limit < 1 || limit > 100 {
		limit = 100
	}
	courseID := c.Query("course_id")

	var (
		rows []models.StudentPoints
		err  error
	)
	if courseID != "" {
		rows, err = leaderboard.GetCourseLeaderboard(c.Context(), courseID, limit)
	} else {
		rows, err = leaderboard.GetGlobalLeaderboard(c.Context(), limit)
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch leaderboard"})
	}

	entries := make([]leaderboardEntry, len(rows))
	for i, row := range rows {
		rank := row.Rank
		if courseID != "" {
			// Course standings are positional within the filtered slice.
			rank = i + 1
		}
		entry := leaderboardEntry{
			Rank:        rank,
			StudentID:   row.StudentID,
			TotalPoints: row.TotalPoints,
		}
		if row.Student != nil {
			entry.Name = row.Student.Name
		}
		entries[i] = entry
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"course_id":   courseID,
		"leaderboard": entries,
	})
}
