package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/service"
	"golang.org/x/term"
)

func main() {
	var promptSecret bool
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Access Token ===")

	// Token type
	fmt.Print("Token type [student/admin] (default student): ")
	typeStr, _ := reader.ReadString('\n')
	tokenType := service.TokenTypeStudent
	switch strings.ToLower(strings.TrimSpace(typeStr)) {
	case "", "student":
	case "admin":
		tokenType = service.TokenTypeAdmin
	default:
		fmt.Println("Error: Token type must be student or admin")
		return
	}

	// User ID
	fmt.Print("User ID (blank for a new UUID): ")
	idStr, _ := reader.ReadString('\n')
	idStr = strings.TrimSpace(idStr)
	userID := uuid.New()
	if idStr != "" {
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			fmt.Println("Error: User ID must be a UUID")
			return
		}
		userID = parsed
	}

	// Name
	fmt.Print("Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	// Secret
	if promptSecret {
		fmt.Print("Signing secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // Newline after secret input
		if err != nil {
			fmt.Println("Error reading secret")
			return
		}
		if len(secret) < 16 {
			fmt.Println("Error: Secret must be at least 16 characters")
			return
		}
		cfg.JWTSecret = string(secret)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).IssueToken(tokenType, userID, name)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Printf("\nUser ID: %s\nExpires in: %s\nToken:\n%s\n", userID, cfg.JWTExpiry, token)
}
