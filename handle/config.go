package handle

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
)

// Config holds connection-pool settings applied by Open.
type Config struct {
	MaxOpenConns    int           `validate:"gte=0"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
	ConnMaxIdleTime time.Duration `validate:"gte=0"`
}

// DefaultConfig returns pool settings suitable for most applications.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

var validate = validator.New()

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid handle config: %w", err)
	}
	return nil
}

// Open opens a database pool for the given driver and DSN, applies cfg
// (DefaultConfig when nil) and returns a stable Handle that owns the pool.
// Closing the returned handle closes the pool. Open never pings the
// database; no connection is established until the first statement runs.
func Open(driverName, dsn string, cfg *Config, opts ...Option) (*Handle, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s pool: %w", driverName, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	h := New(db, opts...)
	h.ownsDB = true
	return h, nil
}
