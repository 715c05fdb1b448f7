package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/mr-tron/base58"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Address returns a deterministic base58 public key for seed.
// Distinct seeds give distinct addresses.
func Address(seed uint64) string {
	return encodeSeed(seed, 32, 0xA1)
}

// Signature returns a deterministic base58 transaction signature for seed.
func Signature(seed uint64) string {
	return encodeSeed(seed, 64, 0x5C)
}

// Seed digits are stored base 255 offset by one, so no byte is zero and
// distinct seeds never collide.
func encodeSeed(seed uint64, size int, fill byte) string {
	raw := make([]byte, size)
	for i := range raw {
		raw[i] = fill
	}
	for i := size - 1; i >= size-9; i-- {
		raw[i] = byte(seed%255) + 1
		seed /= 255
	}
	return base58.Encode(raw)
}

// Time returns a fixed UTC instant offset by d, for deterministic event timestamps.
func Time(d time.Duration) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(d)
}

// RequireIntegration skips the test if not running integration tests.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("skipping integration test (set INTEGRATION_TEST=1 to run)")
	}
}

// SetupTestDB starts a Postgres container and applies migrations/*.up.sql.
// Returns the *sql.DB and a cleanup function.
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	RequireIntegration(t)

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("launchledger_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping test db: %v", err)
	}

	applyMigrations(t, ctx, db)

	cleanup := func() {
		db.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return db, cleanup
}

// MigrationsDir returns the repository's migrations directory.
func MigrationsDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(findProjectRoot(t), "migrations")
}

func applyMigrations(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()

	dir := MigrationsDir(t)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		body, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			t.Fatalf("read migration %s: %v", f, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			t.Fatalf("apply migration %s: %v", f, err)
		}
		t.Logf("applied migration: %s", f)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}
