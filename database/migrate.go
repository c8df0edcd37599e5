// database/migrate.go - Database Migration Runner
package database

import (
	"log"

	"chainverse/models"
)

// RunMigrations runs all database migrations
func RunMigrations() {
	db := GetDB()
	log.Println("🔄 Running database migrations...")

	if err := db.AutoMigrate(
		&models.Student{},
		&models.QuizQuestion{},
		&models.Challenge{},
		&models.ChallengeSubmission{},
		&models.ChallengeResult{},
		&models.StudentPoints{},
		&models.Notification{},
		&models.TokenTransaction{},
	); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}

	createIndexes()

	log.Println("✅ All migrations completed successfully")
}

// createIndexes creates the indexes and constraints the evaluation pipeline
// depends on. The two unique indexes are correctness mechanisms, not
// performance tweaks: one submission per (challenge, player), one result per
// challenge.
func createIndexes() {
	db := GetDB()

	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_challenge_player ON challenge_submissions(challenge_id, player_id)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_result_challenge ON challenge_results(challenge_id)")

	db.Exec("CREATE INDEX IF NOT EXISTS idx_challenges_status ON challenges(status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_challenges_expiry ON challenges(status, expires_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_challenges_players ON challenges(player_one_id, player_two_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_points_total ON student_points(total_points DESC)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_notifications_student ON notifications(student_id, created_at DESC)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_token_tx_student ON token_transactions(student_id, created_at DESC)")
}
