package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"time"

	"LaunchLedger/internal/state"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// PostgresStore implements Store on Postgres through database/sql and lib/pq.
// WithinLaunch takes a transaction-scoped advisory lock keyed by the launch
// address, so writers for one launch serialize while other launches proceed.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// OpenDB opens and pings a lib/pq connection pool.
func OpenDB(ctx context.Context, url string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) DB() *sql.DB { return s.db }

// Ping is the readiness check for the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) WithinLaunch(ctx context.Context, launch string, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, launch); err != nil {
		sqlTx.Rollback()
		return fmt.Errorf("lock launch %s: %w", launch, err)
	}

	if err := fn(&pgTx{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.Warn().Err(rbErr).Str("launch", launch).Msg("rollback failed")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *PostgresStore) GetLaunch(ctx context.Context, address string) (*state.Launch, error) {
	return getLaunch(ctx, s.db, address, false)
}

func (s *PostgresStore) GetPosition(ctx context.Context, launch, user string) (*state.Position, error) {
	return getPosition(ctx, s.db, launch, user)
}

func (s *PostgresStore) ListActivePositions(ctx context.Context, launch string) ([]*state.Position, error) {
	return listActivePositions(ctx, s.db, launch)
}

func (s *PostgresStore) HasProcessedSignature(ctx context.Context, key string) (bool, error) {
	return hasProcessed(ctx, s.db, key)
}

func (s *PostgresStore) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	return recentKeys(ctx, s.db, limit)
}

func (s *PostgresStore) ListTransactionRecords(ctx context.Context, launch string, limit int) ([]*state.TransactionRecord, error) {
	return listRecords(ctx, s.db, launch, limit)
}

// ListOpenLaunches returns launches that are neither graduated nor refunding.
func (s *PostgresStore) ListOpenLaunches(ctx context.Context) ([]*state.Launch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+launchColumns+`
		FROM launches
		WHERE NOT graduated AND NOT refund_mode
		ORDER BY created_at, address COLLATE "C"
	`)
	if err != nil {
		return nil, fmt.Errorf("list open launches: %w", err)
	}
	defer rows.Close()

	var out []*state.Launch
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// pgTx is the Tx handed to WithinLaunch callbacks.
type pgTx struct {
	q querier
}

func (tx *pgTx) GetLaunch(ctx context.Context, address string) (*state.Launch, error) {
	return getLaunch(ctx, tx.q, address, true)
}

func (tx *pgTx) UpsertLaunch(ctx context.Context, l *state.Launch) error {
	err := tx.q.QueryRowContext(ctx, `
		INSERT INTO launches (
			address, creator, total_shares, total_sol, market_cap_usd,
			creator_seed_shares, creator_seed_basis, creator_claimed_shares,
			graduated, refund_mode, total_shares_at_graduation,
			created_at, graduated_at, refund_enabled_at, ready_to_graduate_at,
			last_slot, last_audit_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (address) DO UPDATE SET
			creator = EXCLUDED.creator,
			total_shares = EXCLUDED.total_shares,
			total_sol = EXCLUDED.total_sol,
			market_cap_usd = EXCLUDED.market_cap_usd,
			creator_seed_shares = EXCLUDED.creator_seed_shares,
			creator_seed_basis = EXCLUDED.creator_seed_basis,
			creator_claimed_shares = EXCLUDED.creator_claimed_shares,
			graduated = EXCLUDED.graduated,
			refund_mode = EXCLUDED.refund_mode,
			total_shares_at_graduation = EXCLUDED.total_shares_at_graduation,
			graduated_at = EXCLUDED.graduated_at,
			refund_enabled_at = EXCLUDED.refund_enabled_at,
			ready_to_graduate_at = EXCLUDED.ready_to_graduate_at,
			last_slot = EXCLUDED.last_slot,
			last_audit_hash = EXCLUDED.last_audit_hash,
			version = launches.version + 1,
			updated_at = NOW()
		RETURNING version
	`,
		l.Address, l.Creator, numeric(l.TotalShares), numeric(l.TotalSol), numeric(l.MarketCapUSD),
		numeric(l.CreatorSeedShares), numeric(l.CreatorSeedBasis), numeric(l.CreatorClaimedShares),
		l.Graduated, l.RefundMode, numeric(l.TotalSharesAtGraduation),
		l.CreatedAt, nullTime(l.GraduatedAt), nullTime(l.RefundEnabledAt), nullTime(l.ReadyToGraduateAt),
		numeric(l.LastSlot), l.LastAuditHash,
	).Scan(&l.Version)
	if err != nil {
		return mapErr(fmt.Errorf("upsert launch %s: %w", l.Address, err))
	}
	return nil
}

func (tx *pgTx) GetPosition(ctx context.Context, launch, user string) (*state.Position, error) {
	return getPosition(ctx, tx.q, launch, user)
}

func (tx *pgTx) UpsertPosition(ctx context.Context, p *state.Position) error {
	err := tx.q.QueryRowContext(ctx, `
		INSERT INTO positions (
			launch, user_address, shares, sol_basis, locked_shares, vested_shares_claimed,
			has_claimed_tokens, has_claimed_refund, first_buy_at, last_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (launch, user_address) DO UPDATE SET
			shares = EXCLUDED.shares,
			sol_basis = EXCLUDED.sol_basis,
			locked_shares = EXCLUDED.locked_shares,
			vested_shares_claimed = EXCLUDED.vested_shares_claimed,
			has_claimed_tokens = EXCLUDED.has_claimed_tokens,
			has_claimed_refund = EXCLUDED.has_claimed_refund,
			last_updated_at = EXCLUDED.last_updated_at,
			version = positions.version + 1
		RETURNING version
	`,
		p.Launch, p.User, numeric(p.Shares), numeric(p.SolBasis), numeric(p.LockedShares),
		numeric(p.VestedSharesClaimed), p.HasClaimedTokens, p.HasClaimedRefund,
		p.FirstBuyAt, p.LastUpdatedAt,
	).Scan(&p.Version)
	if err != nil {
		return mapErr(fmt.Errorf("upsert position %s/%s: %w", p.Launch, p.User, err))
	}
	return nil
}

func (tx *pgTx) ListActivePositions(ctx context.Context, launch string) ([]*state.Position, error) {
	return listActivePositions(ctx, tx.q, launch)
}

func (tx *pgTx) HasProcessedSignature(ctx context.Context, key string) (bool, error) {
	return hasProcessed(ctx, tx.q, key)
}

func (tx *pgTx) MarkProcessed(ctx context.Context, key, launch string, slot uint64) error {
	return markProcessed(ctx, tx.q, key, launch, slot)
}

func (tx *pgTx) AppendTransactionRecord(ctx context.Context, rec *state.TransactionRecord) error {
	return insertRecord(ctx, tx.q, rec)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const launchColumns = `address, creator, total_shares, total_sol, market_cap_usd,
	creator_seed_shares, creator_seed_basis, creator_claimed_shares,
	graduated, refund_mode, total_shares_at_graduation,
	created_at, graduated_at, refund_enabled_at, ready_to_graduate_at,
	last_slot, last_audit_hash, version`

const positionColumns = `launch, user_address, shares, sol_basis, locked_shares, vested_shares_claimed,
	has_claimed_tokens, has_claimed_refund, first_buy_at, last_updated_at, version`

func getLaunch(ctx context.Context, q querier, address string, forUpdate bool) (*state.Launch, error) {
	query := `SELECT ` + launchColumns + ` FROM launches WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	l, err := scanLaunch(q.QueryRowContext(ctx, query, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get launch %s: %w", address, err)
	}
	return l, nil
}

func scanLaunch(row scanner) (*state.Launch, error) {
	var (
		l                              state.Launch
		graduatedAt, refundAt, readyAt sql.NullTime
	)
	err := row.Scan(
		&l.Address, &l.Creator,
		(*numeric)(&l.TotalShares), (*numeric)(&l.TotalSol), (*numeric)(&l.MarketCapUSD),
		(*numeric)(&l.CreatorSeedShares), (*numeric)(&l.CreatorSeedBasis), (*numeric)(&l.CreatorClaimedShares),
		&l.Graduated, &l.RefundMode, (*numeric)(&l.TotalSharesAtGraduation),
		&l.CreatedAt, &graduatedAt, &refundAt, &readyAt,
		(*numeric)(&l.LastSlot), &l.LastAuditHash, &l.Version,
	)
	if err != nil {
		return nil, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.GraduatedAt = timePtr(graduatedAt)
	l.RefundEnabledAt = timePtr(refundAt)
	l.ReadyToGraduateAt = timePtr(readyAt)
	return &l, nil
}

func getPosition(ctx context.Context, q querier, launch, user string) (*state.Position, error) {
	p, err := scanPosition(q.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE launch = $1 AND user_address = $2`,
		launch, user,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", launch, user, err)
	}
	return p, nil
}

func listActivePositions(ctx context.Context, q querier, launch string) ([]*state.Position, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE launch = $1 AND (shares > 0 OR locked_shares > 0)
		ORDER BY user_address COLLATE "C"
	`, launch)
	if err != nil {
		return nil, fmt.Errorf("list positions %s: %w", launch, err)
	}
	defer rows.Close()

	var out []*state.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(row scanner) (*state.Position, error) {
	var p state.Position
	err := row.Scan(
		&p.Launch, &p.User,
		(*numeric)(&p.Shares), (*numeric)(&p.SolBasis), (*numeric)(&p.LockedShares),
		(*numeric)(&p.VestedSharesClaimed), &p.HasClaimedTokens, &p.HasClaimedRefund,
		&p.FirstBuyAt, &p.LastUpdatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	p.FirstBuyAt = p.FirstBuyAt.UTC()
	p.LastUpdatedAt = p.LastUpdatedAt.UTC()
	return &p, nil
}

// numeric maps a uint64 onto NUMERIC(20,0). Values travel as decimal text so
// the full u64 range survives.
type numeric uint64

func (n numeric) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(n), 10), nil
}

func (n *numeric) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*n = 0
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("numeric: negative value %d", v)
		}
		*n = numeric(v)
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("numeric: unsupported type %T", src)
	}
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("numeric: %w", err)
	}
	*n = numeric(u)
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

const uniqueViolation = "23505"

// mapErr turns unique violations into ErrConflict.
func mapErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
