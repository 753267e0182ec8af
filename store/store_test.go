package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linehaul/config"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	terminal *Terminal
	driver   *Driver
	route    *Route
}

func seed(t *testing.T, db *DB) fixture {
	t.Helper()
	ctx := context.Background()
	term := &Terminal{TenantID: "acme", Code: "DAL", Name: "Dallas", Timezone: "America/Chicago"}
	require.NoError(t, db.CreateTerminal(ctx, term))
	drv := &Driver{TerminalID: term.ID, Name: "Sam Ortiz"}
	require.NoError(t, db.CreateDriver(ctx, drv))
	r := &Route{TenantID: "acme", TerminalID: term.ID, Name: "DAL-101", DefaultDriverID: &drv.ID,
		TruckNumber: ptr("T-12"), DepartureTime: ptr("05:30"), ActiveDays: []string{"mon", "wed", "fri"}, IsActive: true}
	require.NoError(t, db.CreateRoute(ctx, r))
	return fixture{terminal: term, driver: drv, route: r}
}

func TestRouteCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	got, err := db.GetRoute(ctx, f.route.ID)
	require.NoError(t, err)
	assert.Equal(t, "DAL-101", got.Name)
	assert.Equal(t, f.driver.ID, *got.DefaultDriverID)
	assert.Equal(t, "05:30", *got.DepartureTime)
	assert.Equal(t, []string{"mon", "wed", "fri"}, got.ActiveDays)
	assert.True(t, got.IsActive)

	got.TruckNumber = nil
	got.ActiveDays = []string{"Tue", " sat"}
	require.NoError(t, db.UpdateRoute(ctx, got))
	got, err = db.GetRoute(ctx, f.route.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TruckNumber)
	assert.Equal(t, []string{"tue", "sat"}, got.ActiveDays)

	_, err = db.GetRoute(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdateRoute(ctx, &Route{ID: 9999}), ErrNotFound)
}

func TestRouteStopsOrderedAndUnique(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	require.NoError(t, db.CreateRouteStop(ctx, &RouteStop{RouteID: f.route.ID, Sequence: 2, Name: "B", PlannedETA: ptr("08:00")}))
	require.NoError(t, db.CreateRouteStop(ctx, &RouteStop{RouteID: f.route.ID, Sequence: 1, Name: "A", PlannedETA: ptr("07:00")}))
	err := db.CreateRouteStop(ctx, &RouteStop{RouteID: f.route.ID, Sequence: 1, Name: "dup"})
	assert.ErrorIs(t, err, ErrDuplicate)

	stops, err := db.ListRouteStops(ctx, f.route.ID)
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, "A", stops[0].Name)
	assert.Equal(t, "B", stops[1].Name)
	assert.Nil(t, stops[0].PlannedETD)
}

func TestListRoutesForWeekday(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)
	inactive := &Route{TerminalID: f.terminal.ID, Name: "DAL-900", ActiveDays: []string{"mon"}, IsActive: false}
	require.NoError(t, db.CreateRoute(ctx, inactive))
	tue := &Route{TerminalID: f.terminal.ID, Name: "DAL-200", ActiveDays: []string{"tue"}, IsActive: true}
	require.NoError(t, db.CreateRoute(ctx, tue))

	mon, err := db.ListRoutesForWeekday(ctx, f.terminal.ID, time.Monday)
	require.NoError(t, err)
	require.Len(t, mon, 1)
	assert.Equal(t, f.route.ID, mon[0].ID)

	sun, err := db.ListRoutesForWeekday(ctx, f.terminal.ID, time.Sunday)
	require.NoError(t, err)
	assert.Empty(t, sun)
}

func TestFindActiveSubstitutionNewestWins(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	none, err := db.FindActiveSubstitution(ctx, f.route.ID, "2025-03-10")
	require.NoError(t, err)
	assert.Nil(t, none)

	older := &RouteSubstitution{RouteID: f.route.ID, StartDate: "2025-03-01", EndDate: "2025-03-31", TruckNumber: ptr("T-OLD")}
	require.NoError(t, db.CreateSubstitution(ctx, older))
	newer := &RouteSubstitution{RouteID: f.route.ID, StartDate: "2025-03-10", EndDate: "2025-03-10", TruckNumber: ptr("T-NEW")}
	require.NoError(t, db.CreateSubstitution(ctx, newer))

	got, err := db.FindActiveSubstitution(ctx, f.route.ID, "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)

	got, err = db.FindActiveSubstitution(ctx, f.route.ID, "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	got, err = db.FindActiveSubstitution(ctx, f.route.ID, "2025-04-01")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIsDriverAvailable(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	ok, err := db.IsDriverAvailable(ctx, f.driver.ID, "2025-03-10")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.AddDriverTimeOff(ctx, &DriverTimeOff{DriverID: f.driver.ID, StartDate: "2025-03-09", EndDate: "2025-03-10", Reason: "PTO"}))
	ok, err = db.IsDriverAvailable(ctx, f.driver.ID, "2025-03-10")
	require.NoError(t, err)
	assert.False(t, ok, "inclusive end date")
	ok, _ = db.IsDriverAvailable(ctx, f.driver.ID, "2025-03-11")
	assert.True(t, ok)

	f.driver.Status = DriverInactive
	require.NoError(t, db.UpdateDriver(ctx, f.driver))
	ok, _ = db.IsDriverAvailable(ctx, f.driver.ID, "2025-03-11")
	assert.False(t, ok)

	ok, err = db.IsDriverAvailable(ctx, 424242, "2025-03-11")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateDispatchEventWithStops(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	ev := &DispatchEvent{TenantID: "acme", RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: "2025-03-10",
		AssignedDriverID: &f.driver.ID, Status: "assigned", Priority: "normal", CreatedBy: "tester"}
	stops := []*DispatchEventStop{
		{Sequence: 1, Name: "A", PlannedETA: ptr("07:00")},
		{Sequence: 2, Name: "B", PlannedETA: ptr("08:00")},
	}
	require.NoError(t, db.CreateDispatchEventWithStops(ctx, ev, stops))
	assert.NotZero(t, ev.ID)
	assert.NotZero(t, stops[1].ID)

	got, err := db.FindDispatchEvent(ctx, f.route.ID, "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "acme", got.TenantID)

	listed, err := db.ListDispatchStops(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "pending", listed[0].Status)
	assert.Equal(t, "07:00", *listed[0].PlannedETA)

	missing, err := db.FindDispatchEvent(ctx, f.route.ID, "2025-03-11")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDuplicateDispatchRollsBack(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	first := &DispatchEvent{RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: "2025-03-10", Status: "planned", Priority: "normal"}
	require.NoError(t, db.CreateDispatchEventWithStops(ctx, first, []*DispatchEventStop{{Sequence: 1}}))

	second := &DispatchEvent{RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: "2025-03-10", Status: "planned", Priority: "normal"}
	err := db.CreateDispatchEventWithStops(ctx, second, []*DispatchEventStop{{Sequence: 1}, {Sequence: 2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM dispatch_event_stops`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestDuplicateStopSequenceRollsBackEvent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	ev := &DispatchEvent{RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: "2025-03-12", Status: "planned", Priority: "normal"}
	err := db.CreateDispatchEventWithStops(ctx, ev, []*DispatchEventStop{{Sequence: 1}, {Sequence: 1}})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := db.FindDispatchEvent(ctx, f.route.ID, "2025-03-12")
	require.NoError(t, err)
	assert.Nil(t, got, "parent must not be orphaned")
}

func TestUpdateDispatchEventTimestamps(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	ev := &DispatchEvent{RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: "2025-03-10", Status: "planned", Priority: "normal"}
	require.NoError(t, db.CreateDispatchEventWithStops(ctx, ev, nil))

	done := time.Date(2025, 3, 10, 17, 45, 12, 0, time.UTC)
	ev.Status = "completed"
	ev.ActualCompletionTime = &done
	ev.OnTimePerformance = ptr(67)
	ev.TotalMiles = ptr(212.5)
	require.NoError(t, db.UpdateDispatchEvent(ctx, ev))

	got, err := db.GetDispatchEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	require.NotNil(t, got.ActualCompletionTime)
	assert.True(t, done.Equal(*got.ActualCompletionTime))
	assert.Equal(t, 67, *got.OnTimePerformance)
	assert.InDelta(t, 212.5, *got.TotalMiles, 0.001)
	assert.Nil(t, got.ActualDepartureTime)
}

func TestUpdateDispatchEventRejectsStaleVersion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	ev := &DispatchEvent{RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: "2025-03-10", Status: "in_transit", Priority: "normal"}
	require.NoError(t, db.CreateDispatchEventWithStops(ctx, ev, nil))
	stale, err := db.GetDispatchEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale.Version)

	ev.Status = "cancelled"
	require.NoError(t, db.UpdateDispatchEvent(ctx, ev))
	assert.Equal(t, int64(2), ev.Version)

	stale.Status = "completed"
	assert.ErrorIs(t, db.UpdateDispatchEvent(ctx, stale), ErrConflict)

	got, err := db.GetDispatchEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Status)
	assert.Equal(t, int64(2), got.Version)

	missing := &DispatchEvent{ID: 9999, Version: 1, Status: "planned", Priority: "normal"}
	assert.ErrorIs(t, db.UpdateDispatchEvent(ctx, missing), ErrNotFound)
}

func TestDispatchStopUpdateAndPosition(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	ev := &DispatchEvent{RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: "2025-03-10", Status: "dispatched", Priority: "normal"}
	stops := []*DispatchEventStop{{Sequence: 1, Name: "A"}}
	require.NoError(t, db.CreateDispatchEventWithStops(ctx, ev, stops))

	s := stops[0]
	arrived := time.Date(2025, 3, 10, 7, 5, 0, 0, time.UTC)
	s.Status = "arrived"
	s.ActualArrivalTime = &arrived
	s.OnTimeStatus = ptr("on_time")
	s.RequiresAttention = true
	require.NoError(t, db.UpdateDispatchStop(ctx, s))
	require.NoError(t, db.SetStopPosition(ctx, s.ID, 32.78, -96.8))

	got, err := db.GetDispatchStop(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "arrived", got.Status)
	assert.Equal(t, "on_time", *got.OnTimeStatus)
	assert.True(t, got.RequiresAttention)
	assert.InDelta(t, 32.78, *got.Latitude, 1e-9)
	assert.True(t, arrived.Equal(*got.ActualArrivalTime))
}

func TestDeleteDispatchEventRemovesStops(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	ev := &DispatchEvent{RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: "2025-03-10", Status: "planned", Priority: "normal"}
	require.NoError(t, db.CreateDispatchEventWithStops(ctx, ev, []*DispatchEventStop{{Sequence: 1}, {Sequence: 2}}))
	require.NoError(t, db.DeleteDispatchEvent(ctx, ev.ID))

	stops, err := db.ListDispatchStops(ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, stops)
	assert.ErrorIs(t, db.DeleteDispatchEvent(ctx, ev.ID), ErrNotFound)
}

func TestListDispatchEventsFilter(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := seed(t, db)

	for _, d := range []string{"2025-03-10", "2025-03-12"} {
		ev := &DispatchEvent{RouteID: f.route.ID, TerminalID: f.terminal.ID, ExecutionDate: d, Status: "planned", Priority: "normal"}
		require.NoError(t, db.CreateDispatchEventWithStops(ctx, ev, nil))
	}
	all, err := db.ListDispatchEvents(ctx, DispatchFilter{TerminalID: f.terminal.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "2025-03-12", all[0].ExecutionDate)

	one, err := db.ListDispatchEvents(ctx, DispatchFilter{Date: "2025-03-10", Status: "planned"})
	require.NoError(t, err)
	assert.Len(t, one, 1)

	none, err := db.ListDispatchEvents(ctx, DispatchFilter{Status: "completed"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAuditAndOutbox(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.AppendAudit(ctx, &AuditEntry{EntityType: "dispatch_event", EntityID: 5, Action: "created",
		Summary: "created DAL-101", Metadata: []byte(`{"route_id":1}`), Actor: "alice"}))
	require.NoError(t, db.AppendAudit(ctx, &AuditEntry{EntityType: "dispatch_event", EntityID: 6, Action: "deleted"}))

	entries, err := db.ListAudit(ctx, "dispatch_event", 5, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"route_id":1}`, string(entries[0].Metadata))
	assert.Equal(t, "alice", entries[0].Actor)

	all, err := db.ListAudit(ctx, "", 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "system", all[0].Actor)

	require.NoError(t, db.EnqueueOutbox(ctx, "linehaul.dispatch.acme", []byte(`{}`), "dispatch:created", "acme"))
	pending, err := db.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, db.IncrementOutboxRetries(ctx, pending[0].ID))
	require.NoError(t, db.AckOutbox(ctx, pending[0].ID))
	pending, err = db.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAdminUsers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	exists, err := db.AdminUserExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.CreateAdminUser(ctx, "admin", "hash"))
	assert.ErrorIs(t, db.CreateAdminUser(ctx, "admin", "other"), ErrDuplicate)

	u, err := db.GetAdminUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)

	_, err = db.GetAdminUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a=$1 AND b=$2", Rebind("SELECT * FROM t WHERE a=? AND b=?"))
}
