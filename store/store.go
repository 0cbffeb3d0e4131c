package store

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-gamestate/internal/storeinfra"
	"github.com/goliatone/go-gamestate/record"
)

// Driver names accepted in Config.Driver.
const (
	DriverPostgres = storeinfra.DriverPostgres
	DriverSQLite   = storeinfra.DriverSQLite
)

// Store is the contract the coordinator needs from the system-of-record.
type Store interface {
	// ReadCurrent returns the committed record or an error with code
	// record.CodeNotFound.
	ReadCurrent(ctx context.Context, key string) (record.Record, error)

	// WriteIfVersionMatches commits intent when its expected version matches
	// the stored one (or is record.CreateIfAbsent and nothing is stored) and
	// returns the new version. The read-modify-write is one transaction.
	WriteIfVersionMatches(ctx context.Context, intent record.WriteIntent) (int64, error)

	Close() error
}

var _ Store = (*storeinfra.BunStore)(nil)

// Config selects and tunes the relational backend.
type Config struct {
	Driver       string        `env:"DRIVER" envDefault:"sqlite"`
	DSN          string        `env:"DSN" envDefault:"file:gamestate.db?cache=shared&_busy_timeout=5000"`
	TxTimeout    time.Duration `env:"TX_TIMEOUT" envDefault:"2s"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	AutoMigrate  bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

// DefaultConfig returns a file-backed sqlite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLite,
		DSN:          "file:gamestate.db?cache=shared&_busy_timeout=5000",
		TxTimeout:    2 * time.Second,
		MaxOpenConns: 10,
		AutoMigrate:  true,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverPostgres, DriverSQLite)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.TxTimeout, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
	)
}

// Open connects to the configured database and, when AutoMigrate is set,
// creates the records table.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("store config: %w", err)
	}

	db, err := storeinfra.OpenDB(ctx, cfg.Driver, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}

	s := storeinfra.NewBunStore(db, cfg.TxTimeout)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the records table for an already opened store.
func Migrate(ctx context.Context, s Store) error {
	m, ok := s.(interface{ Migrate(context.Context) error })
	if !ok {
		return fmt.Errorf("store %T does not support migrations", s)
	}
	return m.Migrate(ctx)
}
