package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/database"
	"github.com/vigilcbt/vigil-backend/internal/logger"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Seeds a demo exam with questions plus a batch of students, for local
// development and load testing.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Println("=== Seeding Demo Exam ===")

	examID := uuid.New()
	_, err = pool.Exec(ctx,
		`INSERT INTO exams (id, title, duration_minutes, allow_backtracking, webcam_proctoring_enabled)
		 VALUES ($1, $2, $3, $4, $5)`,
		examID, "General Knowledge Demo", 30, true, true,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %s\n", examID)

	questions := []struct {
		text    string
		options []model.Option
		correct string
		marks   float64
	}{
		{"What is the capital of France?", opts("London", "Paris", "Berlin", "Madrid"), "b", 1},
		{"Which planet is known as the Red Planet?", opts("Venus", "Jupiter", "Mars", "Saturn"), "c", 1},
		{"What is 12 x 12?", opts("124", "144", "154", "164"), "b", 1},
		{"Who wrote Romeo and Juliet?", opts("Dickens", "Austen", "Tolstoy", "Shakespeare"), "d", 2},
		{"What is the chemical symbol for gold?", opts("Au", "Ag", "Go", "Gd"), "a", 1},
	}

	for i, q := range questions {
		optionsJSON, _ := json.Marshal(q.options)
		_, err := pool.Exec(ctx,
			`INSERT INTO questions (id, exam_id, question_text, options, correct_option_id, marks, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), examID, q.text, optionsJSON, q.correct, q.marks, i,
		)
		if err != nil {
			log.Fatal().Err(err).Int("question", i).Msg("Failed to create question")
		}
	}
	fmt.Printf("Created %d questions\n", len(questions))

	fmt.Println("=== Seeding Students ===")

	names := []string{
		"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
		"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	created := 0
	for i, name := range names {
		identifier := fmt.Sprintf("STU-%04d", i+1)
		_, err := pool.Exec(ctx,
			`INSERT INTO students (identifier, name, password_hash)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (identifier) DO NOTHING`,
			identifier, name, string(hash),
		)
		if err != nil {
			log.Fatal().Err(err).Str("identifier", identifier).Msg("Failed to create student")
		}
		created++
	}
	fmt.Printf("Seeded %d students (password: password123)\n", created)

	fmt.Println()
	fmt.Println("Mint an entry token with:")
	fmt.Printf("  go run ./cmd/mint-token -student 1 -exam %s\n", examID)
}

func opts(a, b, c, d string) []model.Option {
	return []model.Option{
		{ID: "a", Text: a},
		{ID: "b", Text: b},
		{ID: "c", Text: c},
		{ID: "d", Text: d},
	}
}
