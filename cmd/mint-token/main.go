package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/database"
	"github.com/vigilcbt/vigil-backend/internal/logger"
	"github.com/vigilcbt/vigil-backend/internal/repository"
	"github.com/vigilcbt/vigil-backend/internal/service"
	"golang.org/x/term"
)

// Operator tool: mints an exam entry token for one student. The token is the
// single credential the shell launches with.
func main() {
	var (
		studentID int
		examIDStr string
	)
	flag.IntVar(&studentID, "student", 0, "Student ID")
	flag.StringVar(&examIDStr, "exam", "", "Exam UUID")
	flag.Parse()

	if studentID <= 0 || examIDStr == "" {
		fmt.Fprintln(os.Stderr, "Usage: mint-token -student <id> -exam <uuid>")
		os.Exit(1)
	}

	examID, err := uuid.Parse(examIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid exam UUID: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// Allow interactive use without the secret in the environment.
	if cfg.EntryTokenSecret == "" {
		fmt.Print("Enter signing secret: ")
		byteSecret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil || len(byteSecret) == 0 {
			fmt.Fprintln(os.Stderr, "Error: signing secret is required")
			os.Exit(1)
		}
		cfg.EntryTokenSecret = string(byteSecret)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	// Refuse to mint for an unknown student.
	student, err := studentRepo.GetByID(ctx, studentID)
	if err != nil {
		log.Fatal().Err(err).Int("student_id", studentID).Msg("Student lookup failed")
	}

	tokenService, err := service.NewTokenService(cfg.EntryTokenSecret, cfg.EntryTokenExpiry, submissionRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("Token service init failed")
	}

	token, err := tokenService.Issue(studentID, examID)
	if err != nil {
		log.Fatal().Err(err).Msg("Token mint failed")
	}

	fmt.Printf("Student: %s (%s)\n", student.Name, student.Identifier)
	fmt.Printf("Exam:    %s\n", examID)
	fmt.Printf("Expires: %s\n", time.Now().Add(cfg.EntryTokenExpiry).Format(time.RFC3339))
	fmt.Println()
	fmt.Println(token)
}
