package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"reelgen/internal/credit"
	"reelgen/internal/infra"
)

// Admin tool for topping up a user's credit balance. The destination account
// is the -user flag and nothing else; there is no way to route credits based
// on request-supplied data.
func main() {
	var (
		userFlag   string
		amountFlag int64
		keyFlag    string
	)

	flag.StringVar(&userFlag, "user", "", "user ID to credit (UUID)")
	flag.Int64Var(&amountFlag, "amount", 0, "number of credits to grant")
	flag.StringVar(&keyFlag, "key", "", "idempotency key (defaults to a fresh UUID)")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if _, err := uuid.Parse(userID); err != nil {
		exitWithError(fmt.Errorf("invalid -user: %w", err))
	}
	if amountFlag <= 0 {
		exitWithError(errors.New("-amount must be positive"))
	}
	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = uuid.NewString()
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("connect database: %w", err))
	}
	defer pool.Close()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ledger := credit.NewLedger(infra.NewSQLRunner(pool, logger), logger)

	if err := ledger.Grant(ctx, userID, amountFlag, key); err != nil {
		exitWithError(err)
	}

	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		exitWithError(err)
	}
	fmt.Printf("granted %d credits to %s (balance now %d)\n", amountFlag, userID, balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
