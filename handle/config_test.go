package handle

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidationRejectsNegativeValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "negative max open", cfg: Config{MaxOpenConns: -1}},
		{name: "negative max idle", cfg: Config{MaxIdleConns: -2}},
		{name: "negative lifetime", cfg: Config{ConnMaxLifetime: -time.Second}},
		{name: "negative idle time", cfg: Config{ConnMaxIdleTime: -time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open("sqlmock", "ignored", &Config{MaxOpenConns: -1})
	assert.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("no-such-driver", "dsn", nil)
	assert.Error(t, err)
}

func TestOpenAppliesPoolSettingsAndOwnsThePool(t *testing.T) {
	mockDB, _, err := sqlmock.NewWithDSN("handle_open_dsn")
	require.NoError(t, err)
	defer mockDB.Close()

	h, err := Open("sqlmock", "handle_open_dsn", &Config{MaxOpenConns: 3, MaxIdleConns: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, h.DB().Stats().MaxOpenConnections)

	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
	// Closing an owned pool twice stays a no-op.
	require.NoError(t, h.Close())
}
