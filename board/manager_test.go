package board

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linehaul/config"
	"linehaul/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStore(client)
}

func seedBoard(t *testing.T, db *store.DB) (terminalID int64) {
	t.Helper()
	ctx := context.Background()
	term := &store.Terminal{Code: "FTW", Name: "Fort Worth"}
	require.NoError(t, db.CreateTerminal(ctx, term))
	drv := &store.Driver{TerminalID: term.ID, Name: "Jo Park"}
	require.NoError(t, db.CreateDriver(ctx, drv))
	r := &store.Route{TerminalID: term.ID, Name: "FTW-7", ActiveDays: []string{"mon"}, IsActive: true}
	require.NoError(t, db.CreateRoute(ctx, r))

	ev := &store.DispatchEvent{RouteID: r.ID, TerminalID: term.ID, ExecutionDate: "2025-03-10",
		AssignedDriverID: &drv.ID, Status: "in_transit", Priority: "high"}
	stops := []*store.DispatchEventStop{{Sequence: 1, Status: "completed"}, {Sequence: 2, Status: "exception"}, {Sequence: 3}}
	require.NoError(t, db.CreateDispatchEventWithStops(ctx, ev, stops))
	return term.ID
}

func TestGetFallsBackToSQLThenCaches(t *testing.T) {
	db := testDB(t)
	terminalID := seedBoard(t, db)
	mr, rs := setupMiniRedis(t)
	m := NewManager(db, rs, zerolog.Nop())
	ctx := context.Background()

	b, err := m.Get(ctx, terminalID, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "sql", b.Source)
	require.Len(t, b.Rows, 1)
	row := b.Rows[0]
	assert.Equal(t, "FTW-7", row.RouteName)
	assert.Equal(t, "Jo Park", row.DriverName)
	assert.Equal(t, 3, row.StopsTotal)
	assert.Equal(t, 2, row.StopsDone)
	assert.True(t, row.NeedsAttention)

	assert.True(t, mr.Exists(boardKey(terminalID, "2025-03-10")))
	assert.Positive(t, mr.TTL(boardKey(terminalID, "2025-03-10")))

	b, err = m.Get(ctx, terminalID, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "redis", b.Source)
	assert.Equal(t, row, b.Rows[0])
}

func TestGetSurvivesRedisOutage(t *testing.T) {
	db := testDB(t)
	terminalID := seedBoard(t, db)
	mr, rs := setupMiniRedis(t)
	mr.Close()

	b, err := NewManager(db, rs, zerolog.Nop()).Get(context.Background(), terminalID, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "sql", b.Source)
	assert.Len(t, b.Rows, 1)
}

func TestRefreshAndRebuildAll(t *testing.T) {
	db := testDB(t)
	terminalID := seedBoard(t, db)
	mr, rs := setupMiniRedis(t)
	m := NewManager(db, rs, zerolog.Nop())
	ctx := context.Background()

	n, err := m.RebuildAll(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mr.Exists(boardKey(terminalID, "2025-03-10")))

	empty, err := NewManager(db, nil, zerolog.Nop()).Get(ctx, terminalID, "2025-03-11")
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)
	assert.NotNil(t, empty.Rows)
}
