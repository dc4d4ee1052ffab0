// Package storage defines the persistence interface for user records and
// one-time login tokens. Two backends are provided: SQLite (default,
// zero-config) and PostgreSQL.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ServicePartition is the identity service users authenticate through.
// Usernames are only unique within it.
const ServicePartition = "github.com"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("record already exists")
)

// User links a service identity to its Octopus server and credential.
type User struct {
	Partition  string
	Username   string
	OctopusURL string
	APIKey     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LoginToken is a one-time token issued at the start of a login flow and
// redeemed exactly once to attach Octopus credentials to a user. Endpoint
// and Credential hold the Octopus server URL and API key staged at issue
// time, when the begin step already knows them.
type LoginToken struct {
	ID         uuid.UUID
	Username   string
	Endpoint   string
	Credential string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// UserRepository persists user records.
type UserRepository interface {
	// Save upserts the record keyed by (partition, username).
	Save(ctx context.Context, user *User) error
	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, username string) (*User, error)
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, username string) error
	// Count returns the number of stored users.
	Count(ctx context.Context) (int64, error)
}

// LoginTokenRepository persists one-time login tokens.
type LoginTokenRepository interface {
	// Create stores a new token. ErrDuplicate on ID collision.
	Create(ctx context.Context, token *LoginToken) error
	// Redeem fetches and deletes the token in one step, so a token can be
	// used at most once. ErrNotFound for unknown or already-redeemed IDs;
	// expired tokens are not redeemable.
	Redeem(ctx context.Context, id uuid.UUID, now time.Time) (*LoginToken, error)
	// DeleteExpired removes tokens whose expiry is before now, returning
	// the number deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store is the persistence interface both backends implement.
type Store interface {
	Users() UserRepository
	LoginTokens() LoginTokenRepository

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// Config holds storage configuration for driver selection.
type Config struct {
	Driver   string         `json:"driver" yaml:"driver"` // "sqlite" (default) or "postgres"
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"`
}

// DriverName returns the configured driver, defaulting to DefaultDriver.
func (c Config) DriverName() string {
	if c.Driver != "" {
		return c.Driver
	}
	return DefaultDriver
}

// DefaultDriver is the default storage driver.
const DefaultDriver = "sqlite"

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"
