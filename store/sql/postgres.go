package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// PostgresConfig configures the production database connection. DSN is
// required; zero values fall back to conservative pool defaults.
type PostgresConfig struct {
	DSN             string
	Debug           bool
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	OtelIdentifier  string
}

type postgresPersistenceConfig struct {
	cfg PostgresConfig
}

func (c postgresPersistenceConfig) GetDebug() bool { return c.cfg.Debug }

func (c postgresPersistenceConfig) GetDriver() string { return "postgres" }

func (c postgresPersistenceConfig) GetServer() string { return c.cfg.DSN }

func (c postgresPersistenceConfig) GetPingTimeout() time.Duration {
	if c.cfg.PingTimeout > 0 {
		return c.cfg.PingTimeout
	}
	return 5 * time.Second
}

func (c postgresPersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.cfg.OtelIdentifier) != "" {
		return c.cfg.OtelIdentifier
	}
	return "go-bookings"
}

// NewPostgresClient opens the Postgres-backed persistence client the
// repository factory builds stores from. The caller owns the client and
// closes it on shutdown.
func NewPostgresClient(cfg PostgresConfig) (*persistence.Client, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	cfg.DSN = dsn

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	client, err := persistence.New(postgresPersistenceConfig{cfg: cfg}, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return client, nil
}
