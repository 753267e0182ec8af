package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linehaul/config"
	"linehaul/store"
)

// --- Mock collaborators ---

type published struct {
	tenant  string
	event   string
	payload any
}

type mockPublisher struct {
	mu     sync.Mutex
	events []published
}

func (m *mockPublisher) Publish(tenantID, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{tenantID, event, payload})
}

func (m *mockPublisher) named(event string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, e := range m.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type mockAuditor struct {
	entries []*store.AuditEntry
	err     error
}

func (m *mockAuditor) AppendAudit(_ context.Context, e *store.AuditEntry) error {
	m.entries = append(m.entries, e)
	return m.err
}

// --- Test helpers ---

var fixedNow = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

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

type harness struct {
	db       *store.DB
	d        *Dispatcher
	pub      *mockPublisher
	aud      *mockAuditor
	terminal *store.Terminal
	driver   *store.Driver
	route    *store.Route
}

// newHarness seeds a Monday/Wednesday route with three stops and no default driver.
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db := testDB(t)
	h := &harness{db: db, pub: &mockPublisher{}, aud: &mockAuditor{}}

	h.terminal = &store.Terminal{TenantID: "acme", Code: "DAL", Name: "Dallas"}
	require.NoError(t, db.CreateTerminal(ctx, h.terminal))
	h.driver = &store.Driver{TerminalID: h.terminal.ID, Name: "Pat Lee"}
	require.NoError(t, db.CreateDriver(ctx, h.driver))
	h.route = &store.Route{TenantID: "acme", TerminalID: h.terminal.ID, Name: "DAL-101",
		TruckNumber: ptr("T-12"), DepartureTime: ptr("05:30"), ActiveDays: []string{"mon", "wed"}, IsActive: true}
	require.NoError(t, db.CreateRoute(ctx, h.route))
	for i, eta := range []string{"07:00", "09:00", "11:00"} {
		require.NoError(t, db.CreateRouteStop(ctx, &store.RouteStop{RouteID: h.route.ID, Sequence: i + 1, Name: eta, PlannedETA: ptr(eta)}))
	}

	h.d = NewDispatcher(db, db, WithPublisher(h.pub), WithAuditor(h.aud), WithClock(func() time.Time { return fixedNow }))
	return h
}

func (h *harness) create(t *testing.T, in CreateInput) *Detail {
	t.Helper()
	if in.RouteID == 0 {
		in.RouteID = h.route.ID
	}
	if in.ExecutionDate == "" {
		in.ExecutionDate = "2025-03-10"
	}
	detail, err := h.d.Create(context.Background(), in, "tester")
	require.NoError(t, err)
	return detail
}

func (h *harness) setStatus(t *testing.T, id int64, status string) {
	t.Helper()
	ev, err := h.db.GetDispatchEvent(context.Background(), id)
	require.NoError(t, err)
	ev.Status = status
	require.NoError(t, h.db.UpdateDispatchEvent(context.Background(), ev))
}

// --- Create ---

func TestCreateSeedsStopsAndDefaults(t *testing.T) {
	h := newHarness(t)
	detail := h.create(t, CreateInput{})

	ev := detail.Event
	assert.Equal(t, StatusPlanned, ev.Status)
	assert.Equal(t, PriorityNormal, ev.Priority)
	assert.Equal(t, "acme", ev.TenantID)
	assert.Equal(t, h.terminal.ID, ev.TerminalID)
	assert.Equal(t, "05:30", *ev.PlannedDepartureTime)
	assert.Equal(t, "T-12", *ev.AssignedTruckID)
	assert.Nil(t, ev.AssignedDriverID)

	require.Len(t, detail.Stops, 3)
	assert.Equal(t, 1, detail.Stops[0].Sequence)
	assert.Equal(t, "07:00", *detail.Stops[0].PlannedETA)
	assert.Equal(t, StopPending, detail.Stops[0].Status)
	assert.NotNil(t, detail.Stops[0].RouteStopID)

	created := h.pub.named(EventCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "acme", created[0].tenant)
	assert.Equal(t, SourceManual, created[0].payload.(*Created).Source)
	require.Len(t, h.aud.entries, 1)
	assert.Equal(t, "created", h.aud.entries[0].Action)
	assert.Equal(t, "tester", h.aud.entries[0].Actor)
}

func TestCreateWithDriverIsAssigned(t *testing.T) {
	h := newHarness(t)
	detail := h.create(t, CreateInput{DriverID: &h.driver.ID, PlannedDepartureTime: ptr("06:15")})
	assert.Equal(t, StatusAssigned, detail.Event.Status)
	assert.Equal(t, "06:15", *detail.Event.PlannedDepartureTime)
}

func TestCreateExplicitStatusKept(t *testing.T) {
	h := newHarness(t)
	detail := h.create(t, CreateInput{DriverID: &h.driver.ID, Status: StatusDispatched})
	assert.Equal(t, StatusDispatched, detail.Event.Status)
}

func TestCreateUsesSubstitution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.db.CreateSubstitution(ctx, &store.RouteSubstitution{
		RouteID: h.route.ID, StartDate: "2025-03-01", EndDate: "2025-03-31",
		DriverID: &h.driver.ID, SubUnitNumber: ptr("TRL-9"),
	}))
	detail := h.create(t, CreateInput{TruckID: ptr("T-99")})
	assert.Equal(t, h.driver.ID, *detail.Event.AssignedDriverID)
	assert.Equal(t, "T-99", *detail.Event.AssignedTruckID)
	assert.Equal(t, "TRL-9", *detail.Event.AssignedSubUnitID)
	assert.Equal(t, StatusAssigned, detail.Event.Status)
}

func TestCreateRouteNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.d.Create(context.Background(), CreateInput{RouteID: 999, ExecutionDate: "2025-03-10"}, "tester")
	assert.True(t, IsCode(err, CodeRouteNotFound))
	assert.Equal(t, 404, HTTPStatus(err))
}

func TestCreateDuplicateCreatesNoStops(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, CreateInput{})

	_, err := h.d.Create(ctx, CreateInput{RouteID: h.route.ID, ExecutionDate: "2025-03-10"}, "tester")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeDuplicateDispatch))
	assert.Equal(t, 409, HTTPStatus(err))

	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM dispatch_event_stops`).Scan(&n))
	assert.Equal(t, 3, n)
	assert.Len(t, h.pub.named(EventCreated), 1)
}

// racingStore hides the existing row from the pre-check so the insert hits
// the unique constraint.
type racingStore struct{ *store.DB }

func (racingStore) FindDispatchEvent(context.Context, int64, string) (*store.DispatchEvent, error) {
	return nil, nil
}

func TestCreateDuplicateViaConstraint(t *testing.T) {
	h := newHarness(t)
	h.create(t, CreateInput{})

	d := NewDispatcher(racingStore{h.db}, h.db)
	_, err := d.Create(context.Background(), CreateInput{RouteID: h.route.ID, ExecutionDate: "2025-03-10"}, "tester")
	assert.True(t, IsCode(err, CodeDuplicateDispatch))
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, in := range []CreateInput{
		{RouteID: h.route.ID, ExecutionDate: "03/10/2025"},
		{RouteID: h.route.ID, ExecutionDate: "2025-03-10", Priority: "asap"},
		{RouteID: h.route.ID, ExecutionDate: "2025-03-10", Status: "parked"},
	} {
		_, err := h.d.Create(ctx, in, "tester")
		assert.True(t, IsCode(err, CodeValidation), "%+v", in)
	}
}

func TestAuditFailureDoesNotFailCreate(t *testing.T) {
	h := newHarness(t)
	h.aud.err = errors.New("audit down")
	detail := h.create(t, CreateInput{})
	assert.NotZero(t, detail.Event.ID)
}

// --- ChangeStatus ---

func TestChangeStatusAllPairs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, CreateInput{}).Event

	for _, from := range Statuses {
		for _, to := range Statuses {
			h.setStatus(t, ev.ID, from)
			got, err := h.d.ChangeStatus(ctx, ev.ID, to, "tester", StatusOptions{CancellationReason: ptr("r")})
			stored, gerr := h.db.GetDispatchEvent(ctx, ev.ID)
			require.NoError(t, gerr)
			if IsValidTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, got.Status)
				assert.Equal(t, to, stored.Status)
			} else {
				assert.True(t, IsCode(err, CodeInvalidStatusTransition), "%s -> %s", from, to)
				assert.Equal(t, from, stored.Status, "status unchanged on rejection")
			}
		}
	}
}

func TestChangeStatusCancelAndComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, CreateInput{}).Event

	got, err := h.d.ChangeStatus(ctx, ev.ID, StatusCancelled, "tester", StatusOptions{CancellationReason: ptr("no freight"), CancellationNotes: ptr("shipper closed")})
	require.NoError(t, err)
	assert.Equal(t, "no freight", *got.CancellationReason)
	assert.Equal(t, "shipper closed", *got.CancellationNotes)

	change := h.pub.named(EventStatusChanged)
	require.Len(t, change, 1)
	sc := change[0].payload.(*StatusChange)
	assert.Equal(t, StatusPlanned, sc.From)
	assert.Equal(t, StatusCancelled, sc.To)
	assert.Equal(t, CauseManual, sc.Cause)

	other := h.create(t, CreateInput{ExecutionDate: "2025-03-12"}).Event
	h.setStatus(t, other.ID, StatusInTransit)
	got, err = h.d.ChangeStatus(ctx, other.ID, StatusCompleted, "tester", StatusOptions{})
	require.NoError(t, err)
	assert.True(t, fixedNow.Equal(*got.ActualCompletionTime))
	assert.Nil(t, got.OnTimePerformance)
}

func TestChangeStatusNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.d.ChangeStatus(context.Background(), 404, StatusAssigned, "tester", StatusOptions{})
	assert.True(t, IsCode(err, CodeDispatchNotFound))
}

// --- AssignDriver ---

func TestAssignDriverSideTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, CreateInput{}).Event
	require.Equal(t, StatusPlanned, ev.Status)

	got, err := h.d.AssignDriver(ctx, ev.ID, &h.driver.ID, ptr("T-77"), "tester")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, got.Status)
	assert.Equal(t, "T-77", *got.AssignedTruckID)

	got, err = h.d.AssignDriver(ctx, ev.ID, nil, nil, "tester")
	require.NoError(t, err)
	assert.Equal(t, StatusPlanned, got.Status)
	assert.Nil(t, got.AssignedDriverID)
	assert.Equal(t, "T-77", *got.AssignedTruckID, "truck untouched when not given")

	causes := h.pub.named(EventStatusChanged)
	require.Len(t, causes, 2)
	assert.Equal(t, CauseAssignment, causes[0].payload.(*StatusChange).Cause)
}

func TestAssignDriverOtherStatusesUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, CreateInput{DriverID: &h.driver.ID}).Event
	h.setStatus(t, ev.ID, StatusDispatched)

	got, err := h.d.AssignDriver(ctx, ev.ID, nil, nil, "tester")
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, got.Status)

	got, err = h.d.AssignDriver(ctx, ev.ID, &h.driver.ID, nil, "tester")
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, got.Status)
}

func TestAssignDriverUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, CreateInput{}).Event
	require.NoError(t, h.db.AddDriverTimeOff(ctx, &store.DriverTimeOff{DriverID: h.driver.ID, StartDate: "2025-03-10", EndDate: "2025-03-10"}))

	_, err := h.d.AssignDriver(ctx, ev.ID, &h.driver.ID, ptr("T-1"), "tester")
	assert.True(t, IsCode(err, CodeDriverUnavailable))
	assert.Equal(t, 400, HTTPStatus(err))

	stored, err := h.db.GetDispatchEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPlanned, stored.Status)
	assert.Nil(t, stored.AssignedDriverID)
	assert.Equal(t, "T-12", *stored.AssignedTruckID)
}

// --- UpdateStop and cascades ---

func TestUpdateStopFirstArrivalStartsDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	detail := h.create(t, CreateInput{DriverID: &h.driver.ID})
	h.setStatus(t, detail.Event.ID, StatusDispatched)

	arrival := time.Date(2025, 3, 10, 7, 10, 0, 0, time.UTC)
	stop, err := h.d.UpdateStop(ctx, detail.Event.ID, detail.Stops[0].ID, StopPatch{Status: ptr(StopArrived), ActualArrivalTime: &arrival}, "tester")
	require.NoError(t, err)
	assert.Equal(t, OnTimeOnTime, *stop.OnTimeStatus)

	ev, err := h.db.GetDispatchEvent(ctx, detail.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, ev.Status)
	assert.True(t, fixedNow.Equal(*ev.ActualDepartureTime))

	changes := h.pub.named(EventStatusChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, CauseCascade, changes[0].payload.(*StatusChange).Cause)
	assert.Len(t, h.pub.named(EventStopUpdated), 1)
}

func TestUpdateStopArrivalWithoutTimeNotClassified(t *testing.T) {
	h := newHarness(t)
	detail := h.create(t, CreateInput{})
	stop, err := h.d.UpdateStop(context.Background(), detail.Event.ID, detail.Stops[0].ID, StopPatch{Status: ptr(StopArrived)}, "tester")
	require.NoError(t, err)
	assert.Nil(t, stop.OnTimeStatus)
}

func TestUpdateStopClassificationNotRecomputed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	detail := h.create(t, CreateInput{})
	id, stopID := detail.Event.ID, detail.Stops[0].ID

	early := time.Date(2025, 3, 10, 6, 50, 0, 0, time.UTC)
	_, err := h.d.UpdateStop(ctx, id, stopID, StopPatch{Status: ptr(StopArrived), ActualArrivalTime: &early}, "tester")
	require.NoError(t, err)

	late := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	stop, err := h.d.UpdateStop(ctx, id, stopID, StopPatch{Status: ptr(StopArrived), ActualArrivalTime: &late}, "tester")
	require.NoError(t, err)
	assert.Equal(t, OnTimeEarly, *stop.OnTimeStatus)
	assert.True(t, late.Equal(*stop.ActualArrivalTime))
}

func TestCascadeCompletionComputesPerformance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	detail := h.create(t, CreateInput{DriverID: &h.driver.ID})
	id := detail.Event.ID
	h.setStatus(t, id, StatusInTransit)

	arrive := func(stop *store.DispatchEventStop, hh, mm int) {
		at := time.Date(2025, 3, 10, hh, mm, 0, 0, time.UTC)
		_, err := h.d.UpdateStop(ctx, id, stop.ID, StopPatch{Status: ptr(StopArrived), ActualArrivalTime: &at}, "tester")
		require.NoError(t, err)
	}
	arrive(detail.Stops[0], 6, 55)  // early
	arrive(detail.Stops[1], 9, 40)  // late
	arrive(detail.Stops[2], 11, 5)  // on time

	_, err := h.d.UpdateStop(ctx, id, detail.Stops[0].ID, StopPatch{Status: ptr(StopCompleted)}, "tester")
	require.NoError(t, err)
	_, err = h.d.UpdateStop(ctx, id, detail.Stops[1].ID, StopPatch{Status: ptr(StopException), ExceptionReason: ptr("dock closed")}, "tester")
	require.NoError(t, err)

	ev, err := h.db.GetDispatchEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, ev.Status, "one stop still open")

	_, err = h.d.UpdateStop(ctx, id, detail.Stops[2].ID, StopPatch{Status: ptr(StopCompleted)}, "tester")
	require.NoError(t, err)

	ev, err = h.db.GetDispatchEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ev.Status)
	assert.True(t, fixedNow.Equal(*ev.ActualCompletionTime))
	require.NotNil(t, ev.OnTimePerformance)
	assert.Equal(t, 67, *ev.OnTimePerformance)
}

func TestCascadeSkippedForCancelledParent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	detail := h.create(t, CreateInput{})
	h.setStatus(t, detail.Event.ID, StatusCancelled)

	for _, s := range detail.Stops {
		_, err := h.d.UpdateStop(ctx, detail.Event.ID, s.ID, StopPatch{Status: ptr(StopSkipped)}, "tester")
		require.NoError(t, err)
	}
	ev, err := h.db.GetDispatchEvent(ctx, detail.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, ev.Status)
	assert.Empty(t, h.pub.named(EventStatusChanged))
}

func TestUpdateStopNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, CreateInput{})
	b := h.create(t, CreateInput{ExecutionDate: "2025-03-12"})

	_, err := h.d.UpdateStop(ctx, 999, a.Stops[0].ID, StopPatch{}, "tester")
	assert.True(t, IsCode(err, CodeDispatchNotFound))

	_, err = h.d.UpdateStop(ctx, a.Event.ID, 999, StopPatch{}, "tester")
	assert.True(t, IsCode(err, CodeStopNotFound))

	_, err = h.d.UpdateStop(ctx, a.Event.ID, b.Stops[0].ID, StopPatch{}, "tester")
	assert.True(t, IsCode(err, CodeStopNotFound), "stop of another event")

	_, err = h.d.UpdateStop(ctx, a.Event.ID, a.Stops[0].ID, StopPatch{Status: ptr("teleported")}, "tester")
	assert.True(t, IsCode(err, CodeValidation))
}

// --- Update, Remove ---

func TestUpdateLeavesStatusAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, CreateInput{}).Event

	got, err := h.d.Update(ctx, ev.ID, EventPatch{Priority: ptr(PriorityUrgent), TotalMiles: ptr(310.5), Notes: ptr("reefer")}, "tester")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, got.Priority)
	assert.Equal(t, StatusPlanned, got.Status)
	assert.InDelta(t, 310.5, *got.TotalMiles, 0.001)

	_, err = h.d.Update(ctx, ev.ID, EventPatch{Priority: ptr("whenever")}, "tester")
	assert.True(t, IsCode(err, CodeValidation))
}

func TestRemove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, CreateInput{}).Event

	require.NoError(t, h.d.Remove(ctx, ev.ID, "tester"))
	assert.True(t, IsCode(h.d.Remove(ctx, ev.ID, "tester"), CodeDispatchNotFound))
	assert.Len(t, h.pub.named(EventDeleted), 1)

	_, err := h.d.Get(ctx, ev.ID)
	assert.True(t, IsCode(err, CodeDispatchNotFound))
}
