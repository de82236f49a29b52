// Package store owns the database connection pool and the startup schema
// bootstrap: an embedded schema.sql applied with simple statement
// splitting, errors on "already exists" ignored, then a verification pass.
package store

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/withobsrvr/fx-transfer-engine/internal/money"
)

//go:embed schema.sql
var schemaFS embed.FS

// DB is the subset of *pgxpool.Pool and pgx.Tx that callers need. PgQuerier
// is written against this interface so a single query method works whether
// it runs directly against the pool or inside a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool wraps a pgxpool.Pool with schema bootstrap and seeding.
type Pool struct {
	*pgxpool.Pool
	log zerolog.Logger
}

// Open connects to Postgres and configures the pool's max size.
func Open(ctx context.Context, dsn string, maxConns int32, log zerolog.Logger) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool, log: log}, nil
}

// Bootstrap applies the embedded schema and seeds any currency from
// initialBalances that doesn't already have a pool row.
func (p *Pool) Bootstrap(ctx context.Context, initialBalances map[string]string) error {
	p.log.Info().Msg("initializing database schema")

	schemaContent, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}

	for i, stmt := range splitSQLStatements(string(schemaContent)) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := p.Exec(ctx, stmt); err != nil {
			if isIgnorableError(err) {
				p.log.Debug().Int("statement", i).Err(err).Msg("ignoring expected schema error")
				continue
			}
			return fmt.Errorf("execute schema statement %d: %w", i, err)
		}
	}

	if err := p.verifySchema(ctx); err != nil {
		return fmt.Errorf("schema verification failed: %w", err)
	}

	if err := p.seedPools(ctx, initialBalances); err != nil {
		return fmt.Errorf("seed liquidity pools: %w", err)
	}

	p.log.Info().Msg("database schema ready")
	return nil
}

func (p *Pool) seedPools(ctx context.Context, initialBalances map[string]string) error {
	for currency, amount := range initialBalances {
		balance, err := money.New(amount)
		if err != nil {
			return fmt.Errorf("invalid initial balance for %s: %w", currency, err)
		}
		_, err = p.Exec(ctx, `
			INSERT INTO liquidity_pools (currency, balance, reserved_balance, updated_at)
			VALUES ($1, $2, 0, now())
			ON CONFLICT (currency) DO NOTHING`,
			currency, balance)
		if err != nil {
			return fmt.Errorf("seed pool %s: %w", currency, err)
		}
	}
	return nil
}

func (p *Pool) verifySchema(ctx context.Context) error {
	for _, table := range []string{"liquidity_pools", "fx_rates", "transactions"} {
		var exists bool
		err := p.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// splitSQLStatements splits on semicolons outside of string literals.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	escape := false

	for _, ch := range sql {
		current.WriteRune(ch)

		if escape {
			escape = false
			continue
		}

		switch ch {
		case '\\':
			escape = true
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				statements = append(statements, current.String())
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}

func isIgnorableError(err error) bool {
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"already exists", "duplicate key", "unique constraint"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
