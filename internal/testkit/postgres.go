package testkit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandhub/backend/internal/db"
	"github.com/errandhub/backend/internal/models"
)

// migrateLockID serializes schema setup across test binaries sharing a database.
const migrateLockID = 7_310_442

// Postgres connects to TEST_DATABASE_URL and applies the schema. The test is
// skipped when the variable is unset. Tests must use fresh UUIDs for every row
// they create; nothing is truncated.
func Postgres(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrateLockID); err != nil {
		t.Fatalf("advisory lock: %v", err)
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, migrateLockID)
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// SeedPostgresWallet inserts a wallet holding balance for userID.
func SeedPostgresWallet(t testing.TB, pool *pgxpool.Pool, userID uuid.UUID, balance int64) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO wallets (id, user_id, balance) VALUES ($1, $2, $3)
	`, uuid.New(), userID, balance)
	if err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
}

// SeedPostgresProfile inserts a profile with the given role.
func SeedPostgresProfile(t testing.TB, pool *pgxpool.Pool, userID uuid.UUID, role string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO profiles (user_id, display_name, role) VALUES ($1, $2, $3)
	`, userID, "user-"+userID.String()[:8], role)
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

// PendingTask returns an unsaved pending task for requesterID.
func PendingTask(requesterID uuid.UUID, reward, commission int64) *models.Task {
	return &models.Task{
		ID:               uuid.New(),
		RequesterID:      requesterID,
		Title:            "Pick up parcel",
		Status:           models.TaskStatusPending,
		RewardAmount:     reward,
		CommissionAmount: commission,
		RunnerAmount:     reward - commission,
	}
}
