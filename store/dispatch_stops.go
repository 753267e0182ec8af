package store

import (
	"context"
	"database/sql"
	"time"
)

// DispatchEventStop is the execution record of one stop within a dispatch event.
type DispatchEventStop struct {
	ID                  int64      `json:"id"`
	DispatchEventID     int64      `json:"dispatch_event_id"`
	RouteStopID         *int64     `json:"route_stop_id"`
	Sequence            int        `json:"sequence"`
	Name                string     `json:"name"`
	Address             string     `json:"address"`
	PlannedETA          *string    `json:"planned_eta"`
	PlannedETD          *string    `json:"planned_etd"`
	ActualArrivalTime   *time.Time `json:"actual_arrival_time"`
	ActualDepartureTime *time.Time `json:"actual_departure_time"`
	Status              string     `json:"status"`
	OnTimeStatus        *string    `json:"on_time_status"`
	ServiceTime         *int       `json:"service_time"`
	Latitude            *float64   `json:"latitude"`
	Longitude           *float64   `json:"longitude"`
	Odometer            *float64   `json:"odometer"`
	FuelUsed            *float64   `json:"fuel_used"`
	ExceptionReason     *string    `json:"exception_reason"`
	SkipReason          *string    `json:"skip_reason"`
	RequiresAttention   bool       `json:"requires_attention"`
	Notes               string     `json:"notes"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

const dispatchStopSelectCols = `id, dispatch_event_id, route_stop_id, sequence, name, address, planned_eta, planned_etd, actual_arrival_time, actual_departure_time, status, on_time_status, service_time, latitude, longitude, odometer, fuel_used, exception_reason, skip_reason, requires_attention, notes, created_at, updated_at`

func scanDispatchStop(row interface{ Scan(...any) error }) (*DispatchEventStop, error) {
	var s DispatchEventStop
	var routeStopID, serviceTime sql.NullInt64
	var eta, etd, onTime, exception, skip sql.NullString
	var lat, lng, odo, fuel sql.NullFloat64
	var arrival, departure, createdAt, updatedAt any

	err := row.Scan(&s.ID, &s.DispatchEventID, &routeStopID, &s.Sequence, &s.Name, &s.Address,
		&eta, &etd, &arrival, &departure, &s.Status, &onTime, &serviceTime,
		&lat, &lng, &odo, &fuel, &exception, &skip, &s.RequiresAttention, &s.Notes,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.RouteStopID = int64Ptr(routeStopID)
	s.PlannedETA = strPtr(eta)
	s.PlannedETD = strPtr(etd)
	s.ActualArrivalTime = parseTimePtr(arrival)
	s.ActualDepartureTime = parseTimePtr(departure)
	s.OnTimeStatus = strPtr(onTime)
	s.ServiceTime = intPtr(serviceTime)
	s.Latitude = floatPtr(lat)
	s.Longitude = floatPtr(lng)
	s.Odometer = floatPtr(odo)
	s.FuelUsed = floatPtr(fuel)
	s.ExceptionReason = strPtr(exception)
	s.SkipReason = strPtr(skip)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// ListDispatchStops returns the event's stops ordered by sequence.
func (db *DB) ListDispatchStops(ctx context.Context, dispatchEventID int64) ([]*DispatchEventStop, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+dispatchStopSelectCols+` FROM dispatch_event_stops WHERE dispatch_event_id=? ORDER BY sequence`), dispatchEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DispatchEventStop
	for rows.Next() {
		s, err := scanDispatchStop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) GetDispatchStop(ctx context.Context, id int64) (*DispatchEventStop, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+dispatchStopSelectCols+` FROM dispatch_event_stops WHERE id=?`), id)
	s, err := scanDispatchStop(row)
	return s, mapErr(err)
}

// UpdateDispatchStop writes the execution columns of s. Planned ETA/ETD and
// sequence are fixed at creation and not touched.
func (db *DB) UpdateDispatchStop(ctx context.Context, s *DispatchEventStop) error {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE dispatch_event_stops SET
		actual_arrival_time=?, actual_departure_time=?, status=?, on_time_status=?, service_time=?,
		latitude=?, longitude=?, odometer=?, fuel_used=?, exception_reason=?, skip_reason=?,
		requires_attention=?, notes=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=?`),
		db.timeArg(s.ActualArrivalTime), db.timeArg(s.ActualDepartureTime), s.Status, nullable(s.OnTimeStatus), nullable(s.ServiceTime),
		nullable(s.Latitude), nullable(s.Longitude), nullable(s.Odometer), nullable(s.FuelUsed),
		nullable(s.ExceptionReason), nullable(s.SkipReason), s.RequiresAttention, s.Notes, s.ID)
	return checkAffected(res, err)
}

// SetStopPosition records coordinates without touching other columns.
func (db *DB) SetStopPosition(ctx context.Context, id int64, lat, lng float64) error {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE dispatch_event_stops SET latitude=?, longitude=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`), lat, lng, id)
	return checkAffected(res, err)
}
