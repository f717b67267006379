package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsTableName is the goose version table.
const MigrationsTableName = "schema_migrations"

var gooseMu sync.Mutex

// slogGooseLogger routes goose output through slog.
type slogGooseLogger struct {
	log *slog.Logger
}

// Printf implements goose.Logger.
func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf implements goose.Logger. It logs at error level and does not exit.
func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// ApplyMigrations runs the embedded migrations against the pool's database.
// A Postgres advisory lock keeps concurrently starting servers from racing.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	const lockTimeout = 45 * time.Second
	log := logger.FromContext(ctx).With("component", "migrations")

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close migration connection", "error", err)
		}
	}()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire dedicated connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx,
		"SELECT pg_advisory_lock(hashtext($1), hashtext($2))", "textproc", "migrations"); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx),
			"SELECT pg_advisory_unlock(hashtext($1), hashtext($2))", "textproc", "migrations"); err != nil {
			log.Warn("failed to release migration advisory lock", "error", err)
		}
	}()

	start := time.Now()
	if err := RunMigrations(ctx, db, log); err != nil {
		return err
	}
	log.Info("migrations applied", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// RunMigrations applies the embedded migrations on an existing *sql.DB.
func RunMigrations(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	defer goose.SetBaseFS(nil)

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(MigrationsTableName)
	goose.SetLogger(&slogGooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
