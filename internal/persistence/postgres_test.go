package persistence_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"LaunchLedger/internal/persistence"
	"LaunchLedger/internal/state"
	"LaunchLedger/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*persistence.PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return persistence.NewPostgresStore(db, zerolog.Nop()), mock
}

var launchCols = []string{
	"address", "creator", "total_shares", "total_sol", "market_cap_usd",
	"creator_seed_shares", "creator_seed_basis", "creator_claimed_shares",
	"graduated", "refund_mode", "total_shares_at_graduation",
	"created_at", "graduated_at", "refund_enabled_at", "ready_to_graduate_at",
	"last_slot", "last_audit_hash", "version",
}

func q(s string) string { return regexp.QuoteMeta(s) }

// ============================================================================
// Test: WithinLaunch transaction handling
// ============================================================================

func TestPostgresStore_WithinLaunchLocksAndCommits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(launchA).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO processed_signatures")).
		WithArgs("sig-1", launchA, "42").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithinLaunch(context.Background(), launchA, func(tx persistence.Tx) error {
		return tx.MarkProcessed(context.Background(), "sig-1", launchA, 42)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithinLaunchRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithinLaunch(context.Background(), launchA, func(persistence.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkProcessedTwiceIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO processed_signatures")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithinLaunch(context.Background(), launchA, func(tx persistence.Tx) error {
		return tx.MarkProcessed(context.Background(), "sig-1", launchA, 1)
	})
	assert.ErrorIs(t, err, persistence.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UniqueViolationIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO transactions")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	rec := &state.TransactionRecord{IdempotencyKey: "sig-1", Launch: launchA, Timestamp: testutil.Time(0)}
	err := s.WithinLaunch(context.Background(), launchA, func(tx persistence.Tx) error {
		return tx.AppendTransactionRecord(context.Background(), rec)
	})
	assert.ErrorIs(t, err, persistence.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLaunchReturnsVersion(t *testing.T) {
	s, mock := newMockStore(t)
	l := state.NewLaunch(launchA, creator, testutil.Time(0))
	l.TotalShares = 1_000

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("INSERT INTO launches")).
		WithArgs(launchA, creator, "1000", "0", "0", "0", "0", "0", false, false, "0",
			l.CreatedAt, nil, nil, nil, "0", []byte(nil)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))
	mock.ExpectCommit()

	err := s.WithinLaunch(context.Background(), launchA, func(tx persistence.Tx) error {
		return tx.UpsertLaunch(context.Background(), l)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), l.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================================
// Test: Reads
// ============================================================================

func TestPostgresStore_GetLaunchScansFullRange(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	graduated := created.Add(time.Hour)

	mock.ExpectQuery(q("FROM launches WHERE address = $1")).
		WithArgs(launchA).
		WillReturnRows(sqlmock.NewRows(launchCols).AddRow(
			launchA, creator, "18446744073709551615", "5000", "42000",
			"100", "99", "0",
			true, false, "18446744073709551615",
			created, graduated, nil, nil,
			int64(77), []byte{0xAB}, int64(4),
		))

	l, err := s.GetLaunch(context.Background(), launchA)
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), l.TotalShares)
	assert.Equal(t, uint64(42_000), l.MarketCapUSD)
	assert.True(t, l.Graduated)
	require.NotNil(t, l.GraduatedAt)
	assert.True(t, l.GraduatedAt.Equal(graduated))
	assert.Nil(t, l.RefundEnabledAt)
	assert.Equal(t, uint64(77), l.LastSlot)
	assert.Equal(t, int64(4), l.Version)
}

func TestPostgresStore_GetLaunchNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("FROM launches")).WillReturnError(sql.ErrNoRows)

	_, err := s.GetLaunch(context.Background(), launchA)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestPostgresStore_HasProcessedSignature(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q("FROM processed_signatures")).WithArgs("seen").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(q("FROM processed_signatures")).WithArgs("fresh").
		WillReturnError(sql.ErrNoRows)

	seen, err := s.HasProcessedSignature(context.Background(), "seen")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.HasProcessedSignature(context.Background(), "fresh")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPostgresStore_RecentKeysUnlimited(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("ORDER BY seq DESC")).
		WithArgs(nil).
		WillReturnRows(sqlmock.NewRows([]string{"idempotency_key"}).AddRow("b").AddRow("a"))

	keys, err := s.RecentIdempotencyKeys(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keys)
}

// ============================================================================
// Test: Migrator
// ============================================================================

func TestMigrator_UpAppliesPendingInOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("000001_init.up.sql", "CREATE TABLE a (id INT);")
	write("000001_init.down.sql", "DROP TABLE a;")
	write("000002_more.up.sql", "CREATE TABLE b (id INT);")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("000001"))
	mock.ExpectBegin()
	mock.ExpectExec(q("CREATE TABLE b (id INT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO schema_migrations")).
		WithArgs("000002", "000002_more.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := persistence.NewMigrator(db, dir, zerolog.Nop()).Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_DownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT version, filename FROM schema_migrations")).WillReturnError(sql.ErrNoRows)

	rolled, err := persistence.NewMigrator(db, t.TempDir(), zerolog.Nop()).Down(context.Background())
	require.NoError(t, err)
	assert.False(t, rolled)
}

func TestMigrationFilesAreWellFormed(t *testing.T) {
	dir := testutil.MigrationsDir(t)
	ups, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := up[:len(up)-len(".up.sql")] + ".down.sql"
		_, err := os.Stat(down)
		assert.NoError(t, err, "missing down migration for %s", filepath.Base(up))
	}
}
