// Package postgres implements PostgreSQL-backed storage using GORM.
// All GORM usage is confined to this package and reused by the SQLite
// backend — domain types remain ORM-free.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkaninda/rubani/internal/storage"
)

// Pool defaults applied when the config leaves a setting zero.
func maxOpen(cfg storage.PostgresConfig) int {
	if cfg.MaxOpenConns > 0 {
		return cfg.MaxOpenConns
	}
	return 25
}

func maxIdle(cfg storage.PostgresConfig) int {
	if cfg.MaxIdleConns > 0 {
		return cfg.MaxIdleConns
	}
	return 5
}

func maxLifetime(cfg storage.PostgresConfig) time.Duration {
	if cfg.ConnMaxLifetimeS > 0 {
		return time.Duration(cfg.ConnMaxLifetimeS) * time.Second
	}
	return 30 * time.Minute
}

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	mu     sync.Mutex
	users  storage.UserRepository
	tokens storage.LoginTokenRepository
}

// Open connects to PostgreSQL and configures the connection pool.
func Open(cfg storage.PostgresConfig, slogger *slog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required (set storage.postgres.dsn or RUBANI_DB_DSN)")
	}

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         gormLogger,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen(cfg))
	sqlDB.SetMaxIdleConns(maxIdle(cfg))
	sqlDB.SetConnMaxLifetime(maxLifetime(cfg))

	slogger.Info("postgres connected",
		slog.Int("max_open_conns", maxOpen(cfg)),
		slog.Int("max_idle_conns", maxIdle(cfg)),
	)

	return &Store{db: db, logger: slogger}, nil
}

// Migrate runs GORM AutoMigrate to create/update tables.
func (s *Store) Migrate(_ context.Context) error {
	return s.db.AutoMigrate(&UserModel{}, &LoginTokenModel{})
}

// Ping checks the database connection for health/readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns "postgres".
func (s *Store) Driver() string {
	return storage.DriverPostgres
}

func (s *Store) Users() storage.UserRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = NewUserRepository(s.db)
	}
	return s.users
}

func (s *Store) LoginTokens() storage.LoginTokenRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = NewLoginTokenRepository(s.db)
	}
	return s.tokens
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
