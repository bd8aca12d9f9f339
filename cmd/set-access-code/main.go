package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/prepdeck/prepdeck-backend/internal/config"
	"github.com/prepdeck/prepdeck-backend/internal/database"
	"github.com/prepdeck/prepdeck-backend/internal/logger"
	"github.com/prepdeck/prepdeck-backend/internal/repository"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	testRepo := repository.NewTestRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Set Test Access Code ===")

	// Test ID
	fmt.Print("Enter Test ID: ")
	idStr, _ := reader.ReadString('\n')
	testID, err := uuid.Parse(strings.TrimSpace(idStr))
	if err != nil {
		fmt.Println("Error: Test ID must be a valid UUID")
		return
	}

	test, err := testRepo.GetByID(ctx, testID)
	if err != nil {
		log.Fatal().Err(err).Msg("Test not found")
	}
	fmt.Printf("Test: %s (%s)\n", test.Title, test.Status)

	// Access code. Empty input removes the code requirement.
	fmt.Print("Enter Access Code (blank to remove): ")
	byteCode, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading access code")
		return
	}
	code := strings.TrimSpace(string(byteCode))
	fmt.Println() // Newline after hidden input

	// ─── Logic ─────────────────────────────────────────────────────────
	hash := ""
	if code != "" {
		if len(code) < 4 || len(code) > 20 {
			fmt.Println("Error: Access code must be 4-20 characters")
			return
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(code), cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash access code")
		}
		hash = string(hashed)
	}

	if err := testRepo.UpdateAccessCode(ctx, testID, hash); err != nil {
		log.Fatal().Err(err).Msg("Failed to update access code")
	}

	if hash == "" {
		fmt.Printf("\nSuccess! Access code removed from '%s'\n", test.Title)
	} else {
		fmt.Printf("\nSuccess! Access code set on '%s'\n", test.Title)
	}
}
