package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"thumbnailer/internal/infra"
	"thumbnailer/internal/sqlinline"
)

func main() {
	var (
		dsnFlag    string
		dryRunFlag bool
	)
	flag.StringVar(&dsnFlag, "dsn", "", "PostgreSQL connection string (falls back to DATABASE_URL)")
	flag.BoolVar(&dryRunFlag, "dry-run", false, "print the schema instead of applying it")
	flag.Parse()

	_ = godotenv.Load()

	if dryRunFlag {
		fmt.Print(strings.TrimSpace(sqlinline.SchemaThumbnailRequests) + "\n")
		return
	}

	dsn := strings.TrimSpace(dsnFlag)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		exitWithError(errors.New("DATABASE_URL or -dsn is required"))
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		exitWithError(fmt.Errorf("open database: %w", err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		exitWithError(fmt.Errorf("ping database: %w", err))
	}

	start := time.Now()
	if _, err := db.ExecContext(ctx, sqlinline.SchemaThumbnailRequests); err != nil {
		exitWithError(fmt.Errorf("apply schema: %w", err))
	}
	logger.Info().Dur("took", time.Since(start)).Msg("thumbnail_requests schema applied")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
