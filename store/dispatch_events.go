package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DispatchEvent is one operational run of a route on one execution date.
type DispatchEvent struct {
	ID                      int64      `json:"id"`
	TenantID                string     `json:"tenant_id"`
	RouteID                 int64      `json:"route_id"`
	TerminalID              int64      `json:"terminal_id"`
	ExecutionDate           string     `json:"execution_date"`
	AssignedDriverID        *int64     `json:"assigned_driver_id"`
	AssignedTruckID         *string    `json:"assigned_truck_id"`
	AssignedSubUnitID       *string    `json:"assigned_sub_unit_id"`
	PlannedDepartureTime    *string    `json:"planned_departure_time"`
	Status                  string     `json:"status"`
	Priority                string     `json:"priority"`
	ActualDepartureTime     *time.Time `json:"actual_departure_time"`
	EstimatedReturnTime     *time.Time `json:"estimated_return_time"`
	ActualReturnTime        *time.Time `json:"actual_return_time"`
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time"`
	ActualCompletionTime    *time.Time `json:"actual_completion_time"`
	CancellationReason      *string    `json:"cancellation_reason"`
	CancellationNotes       *string    `json:"cancellation_notes"`
	EstimatedDelayMinutes   *int       `json:"estimated_delay_minutes"`
	TotalMiles              *float64   `json:"total_miles"`
	TotalServiceTime        *int       `json:"total_service_time"`
	FuelUsed                *float64   `json:"fuel_used"`
	OnTimePerformance       *int       `json:"on_time_performance"`
	Notes                   string     `json:"notes"`
	CreatedBy               string     `json:"created_by"`
	Version                 int64      `json:"version"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// DispatchFilter narrows ListDispatchEvents. Zero values match everything.
type DispatchFilter struct {
	TerminalID int64
	RouteID    int64
	Date       string
	Status     string
	Limit      int
}

const dispatchEventSelectCols = `id, tenant_id, route_id, terminal_id, execution_date, assigned_driver_id, assigned_truck_id, assigned_sub_unit_id, planned_departure_time, status, priority, actual_departure_time, estimated_return_time, actual_return_time, estimated_completion_time, actual_completion_time, cancellation_reason, cancellation_notes, estimated_delay_minutes, total_miles, total_service_time, fuel_used, on_time_performance, notes, created_by, version, created_at, updated_at`

func scanDispatchEvent(row interface{ Scan(...any) error }) (*DispatchEvent, error) {
	var e DispatchEvent
	var driverID, delay, serviceTime, onTime sql.NullInt64
	var truck, subUnit, departure, cancelReason, cancelNotes sql.NullString
	var miles, fuel sql.NullFloat64
	var actualDep, estReturn, actualReturn, estCompletion, actualCompletion any
	var createdAt, updatedAt any

	err := row.Scan(&e.ID, &e.TenantID, &e.RouteID, &e.TerminalID, &e.ExecutionDate,
		&driverID, &truck, &subUnit, &departure, &e.Status, &e.Priority,
		&actualDep, &estReturn, &actualReturn, &estCompletion, &actualCompletion,
		&cancelReason, &cancelNotes, &delay, &miles, &serviceTime, &fuel, &onTime,
		&e.Notes, &e.CreatedBy, &e.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.AssignedDriverID = int64Ptr(driverID)
	e.AssignedTruckID = strPtr(truck)
	e.AssignedSubUnitID = strPtr(subUnit)
	e.PlannedDepartureTime = strPtr(departure)
	e.ActualDepartureTime = parseTimePtr(actualDep)
	e.EstimatedReturnTime = parseTimePtr(estReturn)
	e.ActualReturnTime = parseTimePtr(actualReturn)
	e.EstimatedCompletionTime = parseTimePtr(estCompletion)
	e.ActualCompletionTime = parseTimePtr(actualCompletion)
	e.CancellationReason = strPtr(cancelReason)
	e.CancellationNotes = strPtr(cancelNotes)
	e.EstimatedDelayMinutes = intPtr(delay)
	e.TotalMiles = floatPtr(miles)
	e.TotalServiceTime = intPtr(serviceTime)
	e.FuelUsed = floatPtr(fuel)
	e.OnTimePerformance = intPtr(onTime)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// CreateDispatchEventWithStops inserts the event and its stops in one
// transaction. A (route, date) or (event, sequence) collision returns an
// error matching ErrDuplicate and leaves nothing behind.
func (db *DB) CreateDispatchEventWithStops(ctx context.Context, e *DispatchEvent, stops []*DispatchEventStop) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		id, err := insertID(ctx, tx, db.Q(`INSERT INTO dispatch_events (tenant_id, route_id, terminal_id, execution_date, assigned_driver_id, assigned_truck_id, assigned_sub_unit_id, planned_departure_time, status, priority, notes, created_by) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			e.TenantID, e.RouteID, e.TerminalID, e.ExecutionDate,
			nullable(e.AssignedDriverID), nullable(e.AssignedTruckID), nullable(e.AssignedSubUnitID),
			nullable(e.PlannedDepartureTime), e.Status, e.Priority, e.Notes, e.CreatedBy)
		if err != nil {
			return fmt.Errorf("create dispatch event: %w", mapErr(err))
		}
		e.ID = id
		e.Version = 1
		for _, s := range stops {
			s.DispatchEventID = id
			if s.Status == "" {
				s.Status = "pending"
			}
			sid, err := insertID(ctx, tx, db.Q(`INSERT INTO dispatch_event_stops (dispatch_event_id, route_stop_id, sequence, name, address, planned_eta, planned_etd, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
				id, nullable(s.RouteStopID), s.Sequence, s.Name, s.Address, nullable(s.PlannedETA), nullable(s.PlannedETD), s.Status)
			if err != nil {
				return fmt.Errorf("create dispatch stop %d: %w", s.Sequence, mapErr(err))
			}
			s.ID = sid
		}
		return nil
	})
}

func (db *DB) GetDispatchEvent(ctx context.Context, id int64) (*DispatchEvent, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+dispatchEventSelectCols+` FROM dispatch_events WHERE id=?`), id)
	e, err := scanDispatchEvent(row)
	return e, mapErr(err)
}

// FindDispatchEvent returns the event for (routeID, date), or nil if none exists.
func (db *DB) FindDispatchEvent(ctx context.Context, routeID int64, date string) (*DispatchEvent, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+dispatchEventSelectCols+` FROM dispatch_events WHERE route_id=? AND execution_date=?`), routeID, date)
	e, err := scanDispatchEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (db *DB) ListDispatchEvents(ctx context.Context, f DispatchFilter) ([]*DispatchEvent, error) {
	query := `SELECT ` + dispatchEventSelectCols + ` FROM dispatch_events WHERE 1=1`
	var args []any
	if f.TerminalID != 0 {
		query += ` AND terminal_id=?`
		args = append(args, f.TerminalID)
	}
	if f.RouteID != 0 {
		query += ` AND route_id=?`
		args = append(args, f.RouteID)
	}
	if f.Date != "" {
		query += ` AND execution_date=?`
		args = append(args, f.Date)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY execution_date DESC, planned_departure_time, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := db.QueryContext(ctx, db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DispatchEvent
	for rows.Next() {
		e, err := scanDispatchEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateDispatchEvent writes every mutable column of e, provided the row is
// still at e.Version. A row changed since e was read returns ErrConflict and
// is left untouched; on success e.Version is advanced.
func (db *DB) UpdateDispatchEvent(ctx context.Context, e *DispatchEvent) error {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE dispatch_events SET
		assigned_driver_id=?, assigned_truck_id=?, assigned_sub_unit_id=?, planned_departure_time=?,
		status=?, priority=?, actual_departure_time=?, estimated_return_time=?, actual_return_time=?,
		estimated_completion_time=?, actual_completion_time=?, cancellation_reason=?, cancellation_notes=?,
		estimated_delay_minutes=?, total_miles=?, total_service_time=?, fuel_used=?, on_time_performance=?,
		notes=?, version=version+1, updated_at=CURRENT_TIMESTAMP
		WHERE id=? AND version=?`),
		nullable(e.AssignedDriverID), nullable(e.AssignedTruckID), nullable(e.AssignedSubUnitID), nullable(e.PlannedDepartureTime),
		e.Status, e.Priority, db.timeArg(e.ActualDepartureTime), db.timeArg(e.EstimatedReturnTime), db.timeArg(e.ActualReturnTime),
		db.timeArg(e.EstimatedCompletionTime), db.timeArg(e.ActualCompletionTime), nullable(e.CancellationReason), nullable(e.CancellationNotes),
		nullable(e.EstimatedDelayMinutes), nullable(e.TotalMiles), nullable(e.TotalServiceTime), nullable(e.FuelUsed), nullable(e.OnTimePerformance),
		e.Notes, e.ID, e.Version)
	if err := checkAffected(res, err); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		var n int
		if err := db.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM dispatch_events WHERE id=?`), e.ID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		return ErrNotFound
	}
	e.Version++
	return nil
}

// DeleteDispatchEvent removes the event and its stops together.
func (db *DB) DeleteDispatchEvent(ctx context.Context, id int64) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, db.Q(`DELETE FROM dispatch_event_stops WHERE dispatch_event_id=?`), id); err != nil {
			return fmt.Errorf("delete dispatch stops: %w", err)
		}
		res, err := tx.ExecContext(ctx, db.Q(`DELETE FROM dispatch_events WHERE id=?`), id)
		return checkAffected(res, err)
	})
}
