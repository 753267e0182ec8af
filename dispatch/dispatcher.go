package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"linehaul/store"
)

const (
	auditTimeout = 2 * time.Second
	// writeAttempts bounds the reload-and-reapply loop in mutate.
	writeAttempts = 3
)

// errNoChange lets a mutate callback skip the write.
var errNoChange = errors.New("dispatch: no change")

// Dispatcher runs the dispatch event lifecycle: creation, status changes,
// assignment, stop updates with their cascades, and daily generation.
type Dispatcher struct {
	db        Store
	avail     Availability
	publisher Publisher
	auditor   Auditor
	log       zerolog.Logger
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Dispatcher)

func WithPublisher(p Publisher) Option { return func(d *Dispatcher) { d.publisher = p } }
func WithAuditor(a Auditor) Option     { return func(d *Dispatcher) { d.auditor = a } }
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithLocation sets the zone used for stop on-time classification.
func WithLocation(loc *time.Location) Option { return func(d *Dispatcher) { d.loc = loc } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

func NewDispatcher(db Store, avail Availability, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		db:        db,
		avail:     avail,
		publisher: noopPublisher{},
		auditor:   noopAuditor{},
		log:       zerolog.Nop(),
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	if d.publisher == nil {
		d.publisher = noopPublisher{}
	}
	if d.auditor == nil {
		d.auditor = noopAuditor{}
	}
	return d
}

func (d *Dispatcher) clock() time.Time { return d.now().In(d.loc) }

// Today is the current date in the dispatcher's location.
func (d *Dispatcher) Today() string { return d.clock().Format(dateLayout) }

// Get returns the event and its stops.
func (d *Dispatcher) Get(ctx context.Context, id int64) (*Detail, error) {
	ev, err := d.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	stops, err := d.db.ListDispatchStops(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	return &Detail{Event: ev, Stops: stops}, nil
}

// Create builds a dispatch event for a route and date, seeding its stops from
// the route's static stop list.
func (d *Dispatcher) Create(ctx context.Context, in CreateInput, actor string) (*Detail, error) {
	return d.create(ctx, in, actor, SourceManual)
}

func (d *Dispatcher) create(ctx context.Context, in CreateInput, actor, source string) (*Detail, error) {
	if _, err := parseDate(in.ExecutionDate); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !priorities[in.Priority] {
		return nil, errValidation("unknown priority %q", in.Priority)
	}
	if in.Status != "" && !isKnownStatus(in.Status) {
		return nil, errValidation("unknown status %q", in.Status)
	}

	route, err := d.db.GetRoute(ctx, in.RouteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errRouteNotFound(in.RouteID)
	}
	if err != nil {
		return nil, fmt.Errorf("get route: %w", err)
	}

	existing, err := d.db.FindDispatchEvent(ctx, route.ID, in.ExecutionDate)
	if err != nil {
		return nil, fmt.Errorf("find dispatch event: %w", err)
	}
	if existing != nil {
		return nil, errDuplicate(route.ID, in.ExecutionDate)
	}

	sub, err := d.db.FindActiveSubstitution(ctx, route.ID, in.ExecutionDate)
	if err != nil {
		return nil, fmt.Errorf("find substitution: %w", err)
	}
	a := ResolveAssignment(route, sub, Assignment{DriverID: in.DriverID, TruckID: in.TruckID, SubUnitID: in.SubUnitID})

	status := in.Status
	if status == "" {
		status = StatusPlanned
	}
	if a.DriverID != nil && status == StatusPlanned {
		status = StatusAssigned
	}
	departure := in.PlannedDepartureTime
	if departure == nil {
		departure = route.DepartureTime
	}

	ev := &store.DispatchEvent{
		TenantID:             route.TenantID,
		RouteID:              route.ID,
		TerminalID:           route.TerminalID,
		ExecutionDate:        in.ExecutionDate,
		AssignedDriverID:     a.DriverID,
		AssignedTruckID:      a.TruckID,
		AssignedSubUnitID:    a.SubUnitID,
		PlannedDepartureTime: departure,
		Status:               status,
		Priority:             in.Priority,
		Notes:                in.Notes,
		CreatedBy:            actor,
	}

	routeStops, err := d.db.ListRouteStops(ctx, route.ID)
	if err != nil {
		return nil, fmt.Errorf("list route stops: %w", err)
	}
	stops := make([]*store.DispatchEventStop, 0, len(routeStops))
	for _, rs := range routeStops {
		stops = append(stops, &store.DispatchEventStop{
			RouteStopID: &rs.ID,
			Sequence:    rs.Sequence,
			Name:        rs.Name,
			Address:     rs.Address,
			PlannedETA:  rs.PlannedETA,
			PlannedETD:  rs.PlannedETD,
			Status:      StopPending,
		})
	}

	if err := d.db.CreateDispatchEventWithStops(ctx, ev, stops); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errDuplicate(route.ID, in.ExecutionDate)
		}
		return nil, err
	}

	detail := &Detail{Event: ev, Stops: stops}
	d.publisher.Publish(ev.TenantID, EventCreated, &Created{Detail: *detail, Source: source})
	d.audit(ctx, ev.ID, "created", actor,
		fmt.Sprintf("created dispatch for route %s on %s (%s)", route.Name, ev.ExecutionDate, ev.Status),
		map[string]any{"route_id": route.ID, "source": source, "driver_id": ev.AssignedDriverID, "stops": len(stops)})
	return detail, nil
}

// ChangeStatus applies an explicit status change through the transition table.
func (d *Dispatcher) ChangeStatus(ctx context.Context, id int64, to, actor string, opts StatusOptions) (*store.DispatchEvent, error) {
	ev, from, err := d.mutate(ctx, id, func(ev *store.DispatchEvent) error {
		return applyTransition(ev, to, opts, d.clock())
	})
	if err != nil {
		return nil, err
	}
	d.publisher.Publish(ev.TenantID, EventStatusChanged, &StatusChange{Event: ev, From: from, To: to, Cause: CauseManual})
	d.audit(ctx, ev.ID, "status_changed", actor, fmt.Sprintf("status %s -> %s", from, to),
		map[string]any{"from": from, "to": to, "cancellation_reason": ev.CancellationReason})
	return ev, nil
}

// AssignDriver sets or clears the driver, and optionally the truck. A planned
// event with a new driver becomes assigned; an assigned event losing its
// driver reverts to planned.
func (d *Dispatcher) AssignDriver(ctx context.Context, id int64, driverID *int64, truckID *string, actor string) (*store.DispatchEvent, error) {
	var changed bool
	ev, from, err := d.mutate(ctx, id, func(ev *store.DispatchEvent) error {
		if driverID != nil {
			ok, err := d.avail.IsDriverAvailable(ctx, *driverID, ev.ExecutionDate)
			if err != nil {
				return fmt.Errorf("check driver availability: %w", err)
			}
			if !ok {
				return errDriverUnavailable(*driverID, ev.ExecutionDate)
			}
		}
		changed = applyAssignment(ev, driverID)
		if truckID != nil {
			ev.AssignedTruckID = truckID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.publisher.Publish(ev.TenantID, EventUpdated, ev)
	if changed {
		d.publisher.Publish(ev.TenantID, EventStatusChanged, &StatusChange{Event: ev, From: from, To: ev.Status, Cause: CauseAssignment})
	}
	summary := "driver cleared"
	if driverID != nil {
		summary = fmt.Sprintf("driver %d assigned", *driverID)
	}
	d.audit(ctx, ev.ID, "driver_assigned", actor, summary,
		map[string]any{"driver_id": driverID, "truck_id": ev.AssignedTruckID, "from": from, "to": ev.Status})
	return ev, nil
}

// Update edits non-lifecycle fields. Status is never touched here.
func (d *Dispatcher) Update(ctx context.Context, id int64, p EventPatch, actor string) (*store.DispatchEvent, error) {
	if p.Priority != nil && !priorities[*p.Priority] {
		return nil, errValidation("unknown priority %q", *p.Priority)
	}
	if p.PlannedDepartureTime != nil {
		if _, ok := parseClock(*p.PlannedDepartureTime); !ok {
			return nil, errValidation("planned_departure_time must be HH:MM")
		}
	}
	ev, _, err := d.mutate(ctx, id, func(ev *store.DispatchEvent) error {
		p.apply(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.publisher.Publish(ev.TenantID, EventUpdated, ev)
	d.audit(ctx, ev.ID, "updated", actor, "dispatch details updated", p)
	return ev, nil
}

func (p EventPatch) apply(ev *store.DispatchEvent) {
	set(&ev.Priority, p.Priority)
	setPtr(&ev.PlannedDepartureTime, p.PlannedDepartureTime)
	setPtr(&ev.AssignedTruckID, p.TruckID)
	setPtr(&ev.AssignedSubUnitID, p.SubUnitID)
	setPtr(&ev.EstimatedReturnTime, p.EstimatedReturnTime)
	setPtr(&ev.ActualReturnTime, p.ActualReturnTime)
	setPtr(&ev.EstimatedCompletionTime, p.EstimatedCompletionTime)
	setPtr(&ev.EstimatedDelayMinutes, p.EstimatedDelayMinutes)
	setPtr(&ev.TotalMiles, p.TotalMiles)
	setPtr(&ev.TotalServiceTime, p.TotalServiceTime)
	setPtr(&ev.FuelUsed, p.FuelUsed)
	set(&ev.Notes, p.Notes)
}

// UpdateStop applies a stop patch, classifies arrival timeliness, and runs
// the parent cascade.
func (d *Dispatcher) UpdateStop(ctx context.Context, dispatchID, stopID int64, p StopPatch, actor string) (*store.DispatchEventStop, error) {
	if p.Status != nil && !stopStatuses[*p.Status] {
		return nil, errValidation("unknown stop status %q", *p.Status)
	}
	ev, err := d.loadEvent(ctx, dispatchID)
	if err != nil {
		return nil, err
	}
	stop, err := d.db.GetDispatchStop(ctx, stopID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && stop.DispatchEventID != ev.ID) {
		return nil, errStopNotFound(dispatchID, stopID)
	}
	if err != nil {
		return nil, fmt.Errorf("get stop: %w", err)
	}

	prev := stop.Status
	set(&stop.Status, p.Status)
	setPtr(&stop.ActualArrivalTime, p.ActualArrivalTime)
	setPtr(&stop.ActualDepartureTime, p.ActualDepartureTime)
	setPtr(&stop.ServiceTime, p.ServiceTime)
	setPtr(&stop.Latitude, p.Latitude)
	setPtr(&stop.Longitude, p.Longitude)
	setPtr(&stop.Odometer, p.Odometer)
	setPtr(&stop.FuelUsed, p.FuelUsed)
	setPtr(&stop.ExceptionReason, p.ExceptionReason)
	setPtr(&stop.SkipReason, p.SkipReason)
	set(&stop.RequiresAttention, p.RequiresAttention)
	set(&stop.Notes, p.Notes)

	// Classified once, on the update that records the arrival.
	if p.Status != nil && *p.Status == StopArrived && p.ActualArrivalTime != nil && stop.OnTimeStatus == nil {
		class := ClassifyOnTime(stop.PlannedETA, p.ActualArrivalTime.In(d.loc))
		stop.OnTimeStatus = &class
	}

	if err := d.db.UpdateDispatchStop(ctx, stop); err != nil {
		return nil, fmt.Errorf("update stop: %w", err)
	}
	d.publisher.Publish(ev.TenantID, EventStopUpdated, &StopUpdate{
		DispatchID:     ev.ID,
		TerminalID:     ev.TerminalID,
		ExecutionDate:  ev.ExecutionDate,
		AssignedTruck:  ev.AssignedTruckID,
		PreviousStatus: prev,
		Stop:           stop,
	})
	d.audit(ctx, ev.ID, "stop_updated", actor, fmt.Sprintf("stop %d %s -> %s", stop.Sequence, prev, stop.Status),
		map[string]any{"stop_id": stop.ID, "from": prev, "to": stop.Status, "on_time_status": stop.OnTimeStatus})

	if p.Status != nil {
		if err := d.cascade(ctx, ev.ID, *p.Status, actor); err != nil {
			return stop, err
		}
	}
	return stop, nil
}

// cascade evaluates the parent as it is now, not as UpdateStop first read it,
// so a status change that landed in between is respected.
func (d *Dispatcher) cascade(ctx context.Context, id int64, stopStatus, actor string) error {
	var stops []*store.DispatchEventStop
	if IsTerminalStop(stopStatus) {
		var err error
		if stops, err = d.db.ListDispatchStops(ctx, id); err != nil {
			return fmt.Errorf("cascade list stops: %w", err)
		}
	}
	ev, from, err := d.mutate(ctx, id, func(ev *store.DispatchEvent) error {
		res, ok := evaluateCascade(ev, stopStatus, stops)
		if !ok {
			return errNoChange
		}
		applyCascade(ev, res, d.clock())
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cascade: %w", err)
	}
	d.log.Info().Int64("dispatch_id", ev.ID).Str("from", from).Str("to", ev.Status).Msg("stop cascade")
	d.publisher.Publish(ev.TenantID, EventStatusChanged, &StatusChange{Event: ev, From: from, To: ev.Status, Cause: CauseCascade})
	d.publisher.Publish(ev.TenantID, EventUpdated, ev)
	d.audit(ctx, ev.ID, "status_changed", actor, fmt.Sprintf("status %s -> %s (stop cascade)", from, ev.Status),
		map[string]any{"from": from, "to": ev.Status, "cause": CauseCascade, "on_time_performance": ev.OnTimePerformance})
	return nil
}

// Remove deletes the event and its stops.
func (d *Dispatcher) Remove(ctx context.Context, id int64, actor string) error {
	ev, err := d.loadEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := d.db.DeleteDispatchEvent(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errDispatchNotFound(id)
		}
		return fmt.Errorf("delete dispatch event: %w", err)
	}
	d.publisher.Publish(ev.TenantID, EventDeleted, &Deleted{ID: ev.ID, RouteID: ev.RouteID, TerminalID: ev.TerminalID, ExecutionDate: ev.ExecutionDate})
	d.audit(ctx, ev.ID, "deleted", actor, fmt.Sprintf("deleted dispatch for route %d on %s", ev.RouteID, ev.ExecutionDate), nil)
	return nil
}

func (d *Dispatcher) loadEvent(ctx context.Context, id int64) (*store.DispatchEvent, error) {
	ev, err := d.db.GetDispatchEvent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errDispatchNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dispatch event: %w", err)
	}
	return ev, nil
}

// mutate loads the event, applies fn and writes the row back only if nobody
// else wrote it in the meantime. On a stale write the event is reloaded and
// fn reapplied, so its checks always run against the current row. fn errors
// are returned as is; from is the status fn started from.
func (d *Dispatcher) mutate(ctx context.Context, id int64, fn func(ev *store.DispatchEvent) error) (*store.DispatchEvent, string, error) {
	for attempt := 1; ; attempt++ {
		ev, err := d.loadEvent(ctx, id)
		if err != nil {
			return nil, "", err
		}
		from := ev.Status
		if err := fn(ev); err != nil {
			return nil, "", err
		}
		err = d.db.UpdateDispatchEvent(ctx, ev)
		switch {
		case err == nil:
			return ev, from, nil
		case errors.Is(err, store.ErrNotFound):
			return nil, "", errDispatchNotFound(id)
		case !errors.Is(err, store.ErrConflict):
			return nil, "", fmt.Errorf("update dispatch event: %w", err)
		}
		if attempt == writeAttempts {
			return nil, "", errConcurrentUpdate(id)
		}
		d.log.Debug().Int64("dispatch_id", id).Int("attempt", attempt).Msg("stale dispatch write, retrying")
	}
}

// audit appends best-effort with its own deadline so a slow audit sink
// cannot hold the request.
func (d *Dispatcher) audit(ctx context.Context, id int64, action, actor, summary string, meta any) {
	var raw json.RawMessage
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			raw = b
		}
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	err := d.auditor.AppendAudit(actx, &store.AuditEntry{
		EntityType: "dispatch_event",
		EntityID:   id,
		Action:     action,
		Summary:    summary,
		Metadata:   raw,
		Actor:      actor,
	})
	if err != nil {
		d.log.Warn().Err(err).Int64("dispatch_id", id).Str("action", action).Msg("audit append failed")
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errValidation("date %q must be YYYY-MM-DD", s)
	}
	return t, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setPtr[T any](dst **T, v *T) {
	if v != nil {
		c := *v
		*dst = &c
	}
}
