package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-apiclient/core"
	"github.com/goliatone/go-apiclient/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config describes the database backing the session store. It satisfies the
// persistence client configuration contract.
type Config struct {
	Driver          string        `koanf:"driver" mapstructure:"driver"`
	DSN             string        `koanf:"dsn" mapstructure:"dsn"`
	Debug           bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout     time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
	OtelIdentifier  string        `koanf:"otel_identifier" mapstructure:"otel_identifier"`
	MaxOpenConns    int           `koanf:"max_open_conns" mapstructure:"max_open_conns"`
	SkipMigrations  bool          `koanf:"skip_migrations" mapstructure:"skip_migrations"`
	MigrationSource fs.FS         `koanf:"-" mapstructure:"-"`
}

func (c Config) GetDebug() bool {
	return c.Debug
}

func (c Config) GetDriver() string {
	return c.Driver
}

func (c Config) GetServer() string {
	return c.DSN
}

func (c Config) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c Config) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-apiclient"
	}
	return c.OtelIdentifier
}

// Open connects to the configured database and applies the session token
// migrations for its dialect unless SkipMigrations is set.
func Open(ctx context.Context, cfg Config) (*persistence.Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	driver, dialect, migrationDialect, err := resolveDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	if cfg.SkipMigrations {
		return client, nil
	}
	if err := Migrate(ctx, client, migrationDialect, cfg.MigrationSource); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Migrate registers the session token migrations for dialect and runs them.
func Migrate(ctx context.Context, client *persistence.Client, dialect string, source fs.FS) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	opts := []migrations.Option{migrations.WithValidationTargets(dialect)}
	if source != nil {
		filesystems, err := migrations.Filesystems(source)
		if err != nil {
			return err
		}
		opts = append(opts, migrations.WithFilesystems(filesystems...))
	}
	_, err := migrations.Register(ctx, func(_ context.Context, target string, _ string, fsys fs.FS) error {
		if target != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, opts...)
	if err != nil {
		return err
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// NewCredentialStore builds a session credential store over a persistence
// client or a *bun.DB.
func NewCredentialStore(persistenceClient any, opts ...CredentialStoreOption) (*CredentialStore, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}

	repo := repository.NewRepository[*sessionTokenRecord](db, sessionTokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session token repository wiring: %w", err)
		}
	}

	store := &CredentialStore{
		db:              db,
		repo:            repo,
		sessionKey:      DefaultSessionKey,
		accessTokenKey:  core.DefaultAccessTokenKey,
		refreshTokenKey: core.DefaultRefreshTokenKey,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func resolveDialect(driver string) (string, schema.Dialect, string, error) {
	dialect, err := migrations.DialectForDriver(driver)
	if err != nil {
		return "", nil, "", fmt.Errorf("sqlstore: %w", err)
	}
	if dialect == migrations.DialectPostgres {
		return DriverPostgres, pgdialect.New(), dialect, nil
	}
	return DriverSQLite, sqlitedialect.New(), dialect, nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
