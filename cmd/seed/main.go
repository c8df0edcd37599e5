// cmd/seed - Development data seeder: sample students, a question bank and
// a demo challenge.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"chainverse/database"
	"chainverse/models"
)

func main() {
	reset := flag.Bool("reset", false, "delete existing seed data first")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	database.InitDB()
	db := database.GetDB()

	if *reset {
		log.Println("Resetting seed data...")
		db.Exec("DELETE FROM challenge_results")
		db.Exec("DELETE FROM challenge_submissions")
		db.Exec("DELETE FROM challenges")
		db.Exec("DELETE FROM quiz_questions")
		db.Exec("DELETE FROM student_points")
		db.Exec("DELETE FROM notifications")
		db.Exec("DELETE FROM token_transactions")
		db.Exec("DELETE FROM students")
	}

	students := seedStudents(db)
	seedQuestions(db)
	seedDemoChallenge(db, students)

	log.Println("✅ Seed complete")
}

func seedStudents(db *gorm.DB) []models.Student {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hashing seed password: %v", err)
	}

	wallet := "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	students := []models.Student{
		{Name: "Ada Okafor", Email: "ada@example.com", Password: string(hash), WalletAddress: &wallet},
		{Name: "Kwame Mensah", Email: "kwame@example.com", Password: string(hash)},
		{Name: "Admin", Email: "admin@example.com", Password: string(hash), IsAdmin: true},
	}

	for i := range students {
		var existing models.Student
		if err := db.Where("email = ?", students[i].Email).First(&existing).Error; err == nil {
			students[i] = existing
			continue
		}
		if err := db.Create(&students[i]).Error; err != nil {
			log.Fatalf("creating student %s: %v", students[i].Email, err)
		}
		log.Printf("Created student %s (%s)", students[i].Name, students[i].Email)
	}
	return students
}

func seedQuestions(db *gorm.DB) {
	type bankEntry struct {
		text    string
		options [4]string
		correct int
	}

	entries := []bankEntry{
		{"What data structure does a blockchain primarily consist of?",
			[4]string{"Linked blocks", "Binary tree", "Hash table", "Ring buffer"}, 0},
		{"What does a smart contract run on?",
			[4]string{"A web server", "A virtual machine", "A GPU", "A DNS resolver"}, 1},
		{"Which consensus mechanism does proof-of-stake replace?",
			[4]string{"Proof-of-history", "Proof-of-authority", "Proof-of-work", "Proof-of-burn"}, 2},
		{"What is a wallet address derived from?",
			[4]string{"A username", "A public key", "A block hash", "A nonce"}, 1},
		{"What makes an NFT non-fungible?",
			[4]string{"Its price", "Its unique token ID", "Its file size", "Its mint date"}, 1},
		{"What is gas in the context of smart contracts?",
			[4]string{"A storage unit", "A consensus vote", "An execution fee", "A token standard"}, 2},
		{"Which of these is a token standard?",
			[4]string{"ERC-20", "HTTP-2", "SHA-256", "UTF-8"}, 0},
		{"What does a merkle tree efficiently prove?",
			[4]string{"Account balances", "Data inclusion", "Network latency", "Miner identity"}, 1},
	}

	for i, entry := range entries {
		questionID := fmt.Sprintf("chain-101-q%d", i+1)
		var existing models.QuizQuestion
		if err := db.Where("question_id = ?", questionID).First(&existing).Error; err == nil {
			continue
		}

		options := make([]models.QuestionOption, len(entry.options))
		for j, text := range entry.options {
			options[j] = models.QuestionOption{ID: fmt.Sprintf("opt-%d", j+1), Text: text}
		}

		question := models.QuizQuestion{
			QuestionID:      questionID,
			QuizID:          "blockchain-basics",
			CourseID:        "chain-101",
			ModuleID:        "module-1",
			Text:            entry.text,
			Options:         options,
			CorrectOptionID: options[entry.correct].ID,
			Active:          true,
		}
		if err := db.Create(&question).Error; err != nil {
			log.Fatalf("creating question %s: %v", questionID, err)
		}
	}
	log.Printf("Question bank ready (%d questions)", len(entries))
}

func seedDemoChallenge(db *gorm.DB, students []models.Student) {
	if len(students) < 2 {
		return
	}

	var count int64
	db.Model(&models.Challenge{}).
		Where("player_one_id = ? AND player_two_id = ?", students[0].ID, students[1].ID).
		Count(&count)
	if count > 0 {
		return
	}

	var bank []models.QuizQuestion
	if err := db.Where("quiz_id = ? AND active = ?", "blockchain-basics", true).
		Limit(5).Find(&bank).Error; err != nil || len(bank) < 5 {
		log.Println("Skipping demo challenge, question bank too small")
		return
	}

	questions := make([]models.ChallengeQuestion, len(bank))
	for i := range bank {
		questions[i] = bank[i].ToChallengeQuestion()
	}

	now := time.Now().UTC()
	challenge := models.Challenge{
		PlayerOneID: students[0].ID,
		PlayerTwoID: students[1].ID,
		QuizID:      "blockchain-basics",
		CourseID:    "chain-101",
		ModuleID:    "module-1",
		Questions:   questions,
		Status:      models.ChallengeStatusPending,
		TimeLimitMs: models.DefaultTimeLimitMs,
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	if err := db.Create(&challenge).Error; err != nil {
		log.Fatalf("creating demo challenge: %v", err)
	}
	log.Printf("Created demo challenge %d (%s vs %s)", challenge.ID, students[0].Name, students[1].Name)
}
