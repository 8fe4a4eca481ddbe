package handle

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundSupplierYieldsSameHandle(t *testing.T) {
	h, _ := newMockHandle(t)
	sup := Bound(h)

	first, err := sup.Acquire(context.Background())
	require.NoError(t, err)
	second, err := sup.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, h, first)
	assert.Same(t, h, second)
}

func TestBoundSupplierDoesNotOwnHandle(t *testing.T) {
	h, _ := newMockHandle(t)
	sup := Bound(h)

	acquired, err := sup.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, sup.Release(acquired))
	require.NoError(t, sup.Close())

	// The externally managed handle stays usable after supplier close.
	assert.False(t, h.Closed())
}

func TestBoundSupplierRejectsClosedHandle(t *testing.T) {
	h, _ := newMockHandle(t)
	require.NoError(t, h.Close())

	_, err := Bound(h).Acquire(context.Background())
	assert.ErrorIs(t, err, ErrHandleClosed)
}

func TestOnDemandSupplierYieldsFreshAutoClosingHandles(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	sup := OnDemand(db)

	first, err := sup.Acquire(context.Background())
	require.NoError(t, err)
	second, err := sup.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	// Per-call handles have no stable connection to hold a transaction open.
	assert.ErrorIs(t, first.Begin(context.Background()), ErrNoStableConnection)

	require.NoError(t, sup.Release(first))
	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
}

func TestOnDemandSupplierCloseIsIdempotent(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	sup := OnDemand(db)
	require.NoError(t, sup.Close())
	require.NoError(t, sup.Close())

	_, err = sup.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrSupplierClosed)
}
