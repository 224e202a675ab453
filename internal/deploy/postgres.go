package deploy

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresTarget applies scripts to a PostgreSQL database via pgx.
type PostgresTarget struct {
	db *sql.DB
}

func init() {
	RegisterTarget("postgres", func() Target { return &PostgresTarget{} })
}

// NewSQLTarget wraps an existing connection as a postgres target. Tests use
// this to inject a mocked connection.
func NewSQLTarget(db *sql.DB) *PostgresTarget {
	return &PostgresTarget{db: db}
}

// Name returns the target name.
func (t *PostgresTarget) Name() string { return "postgres" }

// Connect establishes a connection to PostgreSQL.
func (t *PostgresTarget) Connect(ctx context.Context, cfg Config) error {
	db, err := sql.Open("pgx", buildPostgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	t.db = db
	return nil
}

// Exec applies one SQL script. Generated scripts hold multiple statements,
// so the simple protocol is requested in the DSN.
func (t *PostgresTarget) Exec(ctx context.Context, script string) error {
	if t.db == nil {
		return fmt.Errorf("target not connected")
	}
	if _, err := t.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("failed to execute script: %w", err)
	}
	return nil
}

// Close closes the connection.
func (t *PostgresTarget) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

// buildPostgresDSN constructs a key=value connection string.
func buildPostgresDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s default_query_exec_mode=simple_protocol",
		host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	if cfg.Schema != "" {
		dsn += fmt.Sprintf(" search_path=%s", cfg.Schema)
	}
	return dsn
}
