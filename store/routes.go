package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Route is the static template a dispatch event is generated from.
type Route struct {
	ID              int64     `json:"id"`
	TenantID        string    `json:"tenant_id"`
	TerminalID      int64     `json:"terminal_id"`
	Name            string    `json:"name"`
	DefaultDriverID *int64    `json:"default_driver_id,omitempty"`
	TruckNumber     *string   `json:"truck_number,omitempty"`
	DepartureTime   *string   `json:"departure_time,omitempty"` // HH:MM
	ActiveDays      []string  `json:"active_days"`              // mon..sun
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RouteStop struct {
	ID         int64   `json:"id"`
	RouteID    int64   `json:"route_id"`
	Sequence   int     `json:"sequence"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	PlannedETA *string `json:"planned_eta,omitempty"`
	PlannedETD *string `json:"planned_etd,omitempty"`
}

var weekdayKeys = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// WeekdayKey returns the active_days token for wd.
func WeekdayKey(wd time.Weekday) string { return weekdayKeys[wd] }

// RunsOn reports whether the route is scheduled on wd.
func (r *Route) RunsOn(wd time.Weekday) bool {
	key := WeekdayKey(wd)
	for _, d := range r.ActiveDays {
		if strings.EqualFold(strings.TrimSpace(d), key) {
			return true
		}
	}
	return false
}

func joinDays(days []string) string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return strings.Join(out, ",")
}

func splitDays(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

const routeSelectCols = `id, tenant_id, terminal_id, name, default_driver_id, truck_number, departure_time, active_days, is_active, created_at, updated_at`

func scanRoute(row interface{ Scan(...any) error }) (*Route, error) {
	var r Route
	var driverID sql.NullInt64
	var truck, departure sql.NullString
	var days string
	var createdAt, updatedAt any
	err := row.Scan(&r.ID, &r.TenantID, &r.TerminalID, &r.Name, &driverID, &truck, &departure,
		&days, &r.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.DefaultDriverID = int64Ptr(driverID)
	r.TruckNumber = strPtr(truck)
	r.DepartureTime = strPtr(departure)
	r.ActiveDays = splitDays(days)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func scanRoutes(rows *sql.Rows) ([]*Route, error) {
	var out []*Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) CreateRoute(ctx context.Context, r *Route) error {
	if r.TenantID == "" {
		r.TenantID = "default"
	}
	id, err := insertID(ctx, db, db.Q(`INSERT INTO routes (tenant_id, terminal_id, name, default_driver_id, truck_number, departure_time, active_days, is_active) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		r.TenantID, r.TerminalID, r.Name, nullable(r.DefaultDriverID), nullable(r.TruckNumber),
		nullable(r.DepartureTime), joinDays(r.ActiveDays), r.IsActive)
	if err != nil {
		return fmt.Errorf("create route: %w", mapErr(err))
	}
	r.ID = id
	return nil
}

func (db *DB) GetRoute(ctx context.Context, id int64) (*Route, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+routeSelectCols+` FROM routes WHERE id=?`), id)
	r, err := scanRoute(row)
	return r, mapErr(err)
}

// ListRoutes returns all routes, or only those of terminalID when non-zero.
func (db *DB) ListRoutes(ctx context.Context, terminalID int64) ([]*Route, error) {
	query := `SELECT ` + routeSelectCols + ` FROM routes`
	var args []any
	if terminalID != 0 {
		query += ` WHERE terminal_id=?`
		args = append(args, terminalID)
	}
	rows, err := db.QueryContext(ctx, db.Q(query+` ORDER BY name, id`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutes(rows)
}

// ListRoutesForWeekday returns the terminal's active routes scheduled on wd.
func (db *DB) ListRoutesForWeekday(ctx context.Context, terminalID int64, wd time.Weekday) ([]*Route, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+routeSelectCols+` FROM routes WHERE terminal_id=? AND is_active=? ORDER BY id`), terminalID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	all, err := scanRoutes(rows)
	if err != nil {
		return nil, err
	}
	var out []*Route
	for _, r := range all {
		if r.RunsOn(wd) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (db *DB) UpdateRoute(ctx context.Context, r *Route) error {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE routes SET terminal_id=?, name=?, default_driver_id=?, truck_number=?, departure_time=?, active_days=?, is_active=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`),
		r.TerminalID, r.Name, nullable(r.DefaultDriverID), nullable(r.TruckNumber),
		nullable(r.DepartureTime), joinDays(r.ActiveDays), r.IsActive, r.ID)
	return checkAffected(res, err)
}

func (db *DB) DeleteRoute(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM routes WHERE id=?`), id)
	return checkAffected(res, mapErr(err))
}

func (db *DB) CreateRouteStop(ctx context.Context, s *RouteStop) error {
	id, err := insertID(ctx, db, db.Q(`INSERT INTO route_stops (route_id, sequence, name, address, planned_eta, planned_etd) VALUES (?, ?, ?, ?, ?, ?)`),
		s.RouteID, s.Sequence, s.Name, s.Address, nullable(s.PlannedETA), nullable(s.PlannedETD))
	if err != nil {
		return fmt.Errorf("create route stop: %w", mapErr(err))
	}
	s.ID = id
	return nil
}

// ListRouteStops returns the route's static stops ordered by sequence.
func (db *DB) ListRouteStops(ctx context.Context, routeID int64) ([]*RouteStop, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, route_id, sequence, name, address, planned_eta, planned_etd FROM route_stops WHERE route_id=? ORDER BY sequence`), routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RouteStop
	for rows.Next() {
		var s RouteStop
		var eta, etd sql.NullString
		if err := rows.Scan(&s.ID, &s.RouteID, &s.Sequence, &s.Name, &s.Address, &eta, &etd); err != nil {
			return nil, err
		}
		s.PlannedETA = strPtr(eta)
		s.PlannedETD = strPtr(etd)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (db *DB) DeleteRouteStop(ctx context.Context, routeID, stopID int64) error {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM route_stops WHERE id=? AND route_id=?`), stopID, routeID)
	return checkAffected(res, err)
}
