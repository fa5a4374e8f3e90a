// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db // import "github.com/toeirei/cachesweep/internal/db"

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	// SQL drivers registered for runtime.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	//go:embed migrations
	embeddedMigrations embed.FS
	// sqlOpenFunc allows tests to override database opening behavior.
	sqlOpenFunc = sql.Open
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// NewStoreFromDSN opens the database, applies the embedded migrations and the
// additive column migrations, and returns a Store backed by a long-lived
// *bun.DB.
func NewStoreFromDSN(dbType, dsn string) (*BunStore, error) {
	driverName, err := driverFor(dbType)
	if err != nil {
		return nil, err
	}
	memory := false
	if dbType == TypeSQLite {
		dsn, memory = sqliteDSN(dsn)
	}

	start := time.Now()
	sqlDB, err := sqlOpenFunc(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	const (
		defaultMaxOpenConns    = 25
		defaultMaxIdleConns    = 25
		defaultConnMaxLifetime = 5 * time.Minute
		defaultConnMaxIdle     = 60 * time.Second
	)
	maxOpen := envInt("CACHESWEEP_DB_MAX_OPEN_CONNS", defaultMaxOpenConns)
	maxIdle := envInt("CACHESWEEP_DB_MAX_IDLE_CONNS", defaultMaxIdleConns)
	connMax := time.Duration(envInt("CACHESWEEP_DB_CONN_MAX_LIFETIME_SECONDS", int(defaultConnMaxLifetime/time.Second))) * time.Second
	connIdle := time.Duration(envInt("CACHESWEEP_DB_CONN_MAX_IDLE_SECONDS", int(defaultConnMaxIdle/time.Second))) * time.Second

	// Every connection to an in-memory SQLite database sees its own database
	// unless the cache is shared, and shared-cache writers contend on table
	// locks. One connection keeps both cases consistent.
	if memory {
		maxOpen = 1
		maxIdle = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(connMax)
	sqlDB.SetConnMaxIdleTime(connIdle)
	if memory {
		// Closing the last connection drops an in-memory database.
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	}
	dbLogf("db: opened %s driver in %s (conn max open=%d, idle=%s, maxLifetime=%s)", driverName, time.Since(start), maxOpen, connIdle, connMax)

	bunDB := createBunDB(sqlDB, dbType)
	ctx := context.Background()

	migStart := time.Now()
	if err := RunMigrations(ctx, bunDB, dbType); err != nil {
		_ = bunDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := EnsureColumns(ctx, bunDB, dbType); err != nil {
		_ = bunDB.Close()
		return nil, fmt.Errorf("failed to apply column migrations: %w", err)
	}
	dbLogf("db: migrations for %s completed in %s", dbType, time.Since(migStart))

	return &BunStore{bun: bunDB, dbType: dbType}, nil
}

func driverFor(dbType string) (string, error) {
	switch dbType {
	case TypeSQLite:
		return "sqlite", nil
	case TypePostgres:
		// The pgx stdlib registers driver name "pgx".
		return "pgx", nil
	case TypeMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported database type: '%s'", dbType)
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// createBunDB constructs a *bun.DB for the provided *sql.DB and dbType.
func createBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case TypePostgres:
		return bun.NewDB(sqlDB, pgdialect.New())
	case TypeMySQL:
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}

// RunMigrations applies the embedded migrations for dbType that have not been
// recorded in schema_migrations yet. Each file is applied in its own
// transaction, one statement at a time.
func RunMigrations(ctx context.Context, bdb *bun.DB, dbType string) error {
	start := time.Now()
	dbLogf("db: starting migrations for %s", dbType)
	migrationsPath := fmt.Sprintf("migrations/%s", dbType)

	entries, err := fs.ReadDir(embeddedMigrations, migrationsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read embedded migrations (%s): %w", migrationsPath, err)
	}

	var ups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	if err := ensureSchemaMigrationsTable(ctx, bdb, dbType); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	for _, fname := range ups {
		version := strings.TrimSuffix(fname, ".up.sql")

		var applied []string
		if err := QueryRawInto(ctx, bdb, &applied, "SELECT version FROM schema_migrations WHERE version = ?", version); err != nil {
			return fmt.Errorf("failed to check migration version %s: %w", version, err)
		}
		if len(applied) > 0 {
			continue
		}

		p := path.Join(migrationsPath, fname)
		data, err := embeddedMigrations.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", p, err)
		}

		err = bdb.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, stmt := range splitStatements(string(data)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("failed to execute migration %s: %w", version, err)
				}
			}
			if _, err := ExecRaw(ctx, tx, "INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", version, time.Now().UTC()); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		dbLogf("db: applied migration %s", version)
	}
	dbLogf("db: applied migrations for %s in %s", dbType, time.Since(start))
	return nil
}

// ensureSchemaMigrationsTable creates schema_migrations if missing.
func ensureSchemaMigrationsTable(ctx context.Context, bdb *bun.DB, dbType string) error {
	// MySQL cannot index TEXT without a length.
	ddl := `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP)`
	if dbType == TypeMySQL {
		ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(191) PRIMARY KEY, applied_at DATETIME(6))`
	}
	_, err := bdb.ExecContext(ctx, ddl)
	return err
}

// splitStatements breaks a migration file into single statements. Statements
// end with a semicolon at the end of a line; migration files contain no
// string literals spanning that boundary.
func splitStatements(script string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")
			out = append(out, stmt)
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// columnMigration is an additive ALTER TABLE that may already have been
// applied, either by an earlier start or by an older deployment of the
// database.
type columnMigration struct {
	table  string
	column string
	ddl    map[string]string
}

var columnMigrations = []columnMigration{
	{table: "hosts", column: "grp", ddl: map[string]string{
		TypeSQLite:   "TEXT NOT NULL DEFAULT ''",
		TypePostgres: "TEXT NOT NULL DEFAULT ''",
		TypeMySQL:    "VARCHAR(255) NOT NULL DEFAULT ''",
	}},
	{table: "hosts", column: "transport", ddl: map[string]string{
		TypeSQLite:   "TEXT NOT NULL DEFAULT 'ssh'",
		TypePostgres: "TEXT NOT NULL DEFAULT 'ssh'",
		TypeMySQL:    "VARCHAR(16) NOT NULL DEFAULT 'ssh'",
	}},
	{table: "hosts", column: "use_sudo", ddl: map[string]string{
		TypeSQLite:   "BOOLEAN NOT NULL DEFAULT 1",
		TypePostgres: "BOOLEAN NOT NULL DEFAULT TRUE",
		TypeMySQL:    "BOOLEAN NOT NULL DEFAULT TRUE",
	}},
}

// EnsureColumns applies the additive column migrations. A column that already
// exists is not an error.
func EnsureColumns(ctx context.Context, bdb *bun.DB, dbType string) error {
	for _, m := range columnMigrations {
		ddl, ok := m.ddl[dbType]
		if !ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, ddl)
		if _, err := bdb.ExecContext(ctx, stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("add column %s.%s: %w", m.table, m.column, err)
		}
		dbLogf("db: added column %s.%s", m.table, m.column)
	}
	return nil
}

// Maintain performs engine-specific maintenance. For SQLite this runs PRAGMA
// optimize, VACUUM and a WAL checkpoint followed by an integrity check. For
// Postgres it runs VACUUM ANALYZE. For MySQL it runs OPTIMIZE TABLE for all
// tables.
func (s *BunStore) Maintain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	sqlDB := s.bun.DB

	switch s.dbType {
	case TypeSQLite:
		// PRAGMA optimize is not useful in every environment; treat its
		// failure as non-fatal.
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
			dbLogf("db: sqlite optimize failed (ignored): %v", err)
		}
		if _, err := sqlDB.ExecContext(ctx, "VACUUM;"); err != nil {
			return fmt.Errorf("sqlite vacuum failed: %w", err)
		}
		_, _ = sqlDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")
		var res string
		if err := sqlDB.QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&res); err == nil && res != "ok" {
			return fmt.Errorf("sqlite integrity_check failed: %s", res)
		}
	case TypePostgres:
		if _, err := sqlDB.ExecContext(ctx, "VACUUM ANALYZE;"); err != nil {
			return fmt.Errorf("postgres vacuum failed: %w", err)
		}
	case TypeMySQL:
		var tables []string
		if err := QueryRawInto(ctx, s.bun, &tables, "SHOW TABLES"); err != nil {
			return fmt.Errorf("mysql show tables failed: %w", err)
		}
		var lastErr error
		for _, table := range tables {
			if _, err := sqlDB.ExecContext(ctx, fmt.Sprintf("OPTIMIZE TABLE `%s`", table)); err != nil {
				dbLogf("db: mysql optimize table %s failed: %v", table, err)
				lastErr = err
			}
		}
		if lastErr != nil {
			return fmt.Errorf("mysql optimize encountered errors: %w", lastErr)
		}
	default:
		return fmt.Errorf("unsupported db type for maintenance: %s", s.dbType)
	}
	return nil
}
