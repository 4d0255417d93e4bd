package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/rawblock/balance-engine/internal/api"
	"github.com/rawblock/balance-engine/internal/audit"
	"github.com/rawblock/balance-engine/internal/balance"
	"github.com/rawblock/balance-engine/internal/coefficient"
	"github.com/rawblock/balance-engine/internal/db"
	"github.com/rawblock/balance-engine/internal/engine"
)

func main() {
	// .env is optional; in production every value below comes from the
	// real environment instead.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from the environment")
	}

	log.Println("Starting balance engine...")

	dbURL := requireEnv("DATABASE_URL")
	ctx := context.Background()

	store, err := db.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		log.Fatalf("FATAL: schema init failed: %v", err)
	}

	coeffPath := getEnvOrDefault("COEFFICIENT_CONFIG", "config/coefficients.json")
	coeffs, err := coefficient.Load(coeffPath)
	if err != nil {
		log.Fatalf("FATAL: failed to load coefficient configuration from %s: %v", coeffPath, err)
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	auditLog := audit.New(logger, wsHub)
	manager := balance.New(coeffs, auditLog)
	processor := engine.New(&repositoryAdapter{store: store}, manager, auditLog)

	router := api.SetupRouter(processor, wsHub, store, coeffs.GameCount())

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("Engine running on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// repositoryAdapter narrows *db.Store to engine.Repository. It exists
// because *db.Store.BeginTx returns the concrete *db.Tx, and Go's interface
// satisfaction requires method return types to match exactly — this
// adapter does the one conversion engine needs without engine importing
// the Postgres driver directly.
type repositoryAdapter struct {
	store *db.Store
}

func (r *repositoryAdapter) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	return r.store.IsProcessed(ctx, messageID)
}

func (r *repositoryAdapter) MarkProcessed(ctx context.Context, messageID string) error {
	return r.store.MarkProcessed(ctx, messageID)
}

func (r *repositoryAdapter) BeginTx(ctx context.Context) (engine.Tx, error) {
	return r.store.BeginTx(ctx)
}

// requireEnv reads a required environment variable and exits if it is not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Set it in the environment or in a .env file", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
