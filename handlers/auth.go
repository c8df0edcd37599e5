// handlers/auth.go
package handlers

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"chainverse/database"
	"chainverse/middleware"
	"chainverse/models"
	"chainverse/utils"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

type UpdateWalletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type AuthResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token,omitempty"`
	Student StudentInfo `json:"student,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type StudentInfo struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func studentInfo(s *models.Student) StudentInfo {
	info := StudentInfo{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		CreatedAt: s.CreatedAt,
	}
	if s.WalletAddress != nil {
		info.WalletAddress = *s.WalletAddress
	}
	return info
}

// Register creates a new student account
func Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(AuthResponse{
			Success: false,
			Error:   "Invalid request body",
		})
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		return c.Status(400).JSON(AuthResponse{
			Success: false,
			Error:   "Name, email and password required",
		})
	}

	if len(req.Password) < 6 {
		return c.Status(400).JSON(AuthResponse{
			Success: false,
			Error:   "Password must be at least 6 characters",
		})
	}

	if req.WalletAddress != "" && !utils.ValidWalletAddress(req.WalletAddress) {
		return c.Status(400).JSON(AuthResponse{
			Success: false,
			Error:   "Invalid wallet address format",
		})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(500).JSON(AuthResponse{
			Success: false,
			Error:   "Database not available",
		})
	}

	var existing models.Student
	if err := db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return c.Status(400).JSON(AuthResponse{
			Success: false,
			Error:   "Email already registered",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(500).JSON(AuthResponse{
			Success: false,
			Error:   "Failed to hash password",
		})
	}

	student := models.Student{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashedPassword),
	}
	if req.WalletAddress != "" {
		student.WalletAddress = &req.WalletAddress
	}

	if err := db.Create(&student).Error; err != nil {
		return c.Status(500).JSON(AuthResponse{
			Success: false,
			Error:   "Failed to create account",
		})
	}

	token, err := generateToken(student)
	if err != nil {
		return c.Status(500).JSON(AuthResponse{
			Success: false,
			Error:   "Failed to generate token",
		})
	}

	return c.JSON(AuthResponse{
		Success: true,
		Token:   token,
		Student: studentInfo(&student),
	})
}

// Login authenticates a registered student
func Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(AuthResponse{
			Success: false,
			Error:   "Invalid request body",
		})
	}

	if req.Email == "" || req.Password == "" {
		return c.Status(400).JSON(AuthResponse{
			Success: false,
			Error:   "Email and password required",
		})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(500).JSON(AuthResponse{
			Success: false,
			Error:   "Database not available",
		})
	}

	var student models.Student
	if err := db.Where("email = ?", req.Email).First(&student).Error; err != nil {
		return c.Status(401).JSON(AuthResponse{
			Success: false,
			Error:   "Invalid email or password",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(student.Password), []byte(req.Password)); err != nil {
		return c.Status(401).JSON(AuthResponse{
			Success: false,
			Error:   "Invalid email or password",
		})
	}

	now := time.Now()
	db.Model(&student).Update("last_login", now)

	token, err := generateToken(student)
	if err != nil {
		return c.Status(500).JSON(AuthResponse{
			Success: false,
			Error:   "Failed to generate token",
		})
	}

	return c.JSON(AuthResponse{
		Success: true,
		Token:   token,
		Student: studentInfo(&student),
	})
}

// UpdateWallet sets or changes the authenticated student's wallet address.
// Escrowed rewards remain claimable afterwards via their claim codes.
func UpdateWallet(c *fiber.Ctx) error {
	studentID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "User not authenticated"})
	}

	var req UpdateWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if !utils.ValidWalletAddress(req.WalletAddress) {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid wallet address format"})
	}

	db := database.GetDB()
	if err := db.Model(&models.Student{}).Where("id = ?", studentID).
		Update("wallet_address", req.WalletAddress).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to update wallet address"})
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"wallet_address": req.WalletAddress,
	})
}

// Me returns the authenticated student's profile
func Me(c *fiber.Ctx) error {
	studentID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "User not authenticated"})
	}

	db := database.GetDB()
	var student models.Student
	if err := db.First(&student, studentID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Student not found"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"student": studentInfo(&student),
	})
}

func generateToken(student models.Student) (string, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "chainverse-secret-change-in-production"
	}

	claims := jwt.MapClaims{
		"user_id":  student.ID,
		"name":     student.Name,
		"is_admin": student.IsAdmin,
		"exp":      time.Now().Add(time.Hour * 720).Unix(), // 30 days
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}
