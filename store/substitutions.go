package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RouteSubstitution overrides a route's driver, truck or sub-unit for an
// inclusive date range. Nil fields leave the route default in place.
type RouteSubstitution struct {
	ID            int64     `json:"id"`
	RouteID       int64     `json:"route_id"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`
	DriverID      *int64    `json:"driver_id,omitempty"`
	TruckNumber   *string   `json:"truck_number,omitempty"`
	SubUnitNumber *string   `json:"sub_unit_number,omitempty"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

const substitutionSelectCols = `id, route_id, start_date, end_date, driver_id, truck_number, sub_unit_number, reason, created_at`

func scanSubstitution(row interface{ Scan(...any) error }) (*RouteSubstitution, error) {
	var s RouteSubstitution
	var driverID sql.NullInt64
	var truck, subUnit sql.NullString
	var createdAt any
	err := row.Scan(&s.ID, &s.RouteID, &s.StartDate, &s.EndDate, &driverID, &truck, &subUnit, &s.Reason, &createdAt)
	if err != nil {
		return nil, err
	}
	s.DriverID = int64Ptr(driverID)
	s.TruckNumber = strPtr(truck)
	s.SubUnitNumber = strPtr(subUnit)
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

func (db *DB) CreateSubstitution(ctx context.Context, s *RouteSubstitution) error {
	id, err := insertID(ctx, db, db.Q(`INSERT INTO route_substitutions (route_id, start_date, end_date, driver_id, truck_number, sub_unit_number, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		s.RouteID, s.StartDate, s.EndDate, nullable(s.DriverID), nullable(s.TruckNumber), nullable(s.SubUnitNumber), s.Reason)
	if err != nil {
		return fmt.Errorf("create substitution: %w", mapErr(err))
	}
	s.ID = id
	return nil
}

func (db *DB) ListSubstitutions(ctx context.Context, routeID int64) ([]*RouteSubstitution, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+substitutionSelectCols+` FROM route_substitutions WHERE route_id=? ORDER BY start_date, id`), routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RouteSubstitution
	for rows.Next() {
		s, err := scanSubstitution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) DeleteSubstitution(ctx context.Context, routeID, id int64) error {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM route_substitutions WHERE id=? AND route_id=?`), id, routeID)
	return checkAffected(res, err)
}

// FindActiveSubstitution returns the most recently created substitution whose
// range contains date, or nil when none applies. Ties on created_at fall to
// the higher id.
func (db *DB) FindActiveSubstitution(ctx context.Context, routeID int64, date string) (*RouteSubstitution, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+substitutionSelectCols+` FROM route_substitutions
		WHERE route_id=? AND start_date<=? AND end_date>=?
		ORDER BY created_at DESC, id DESC LIMIT 1`), routeID, date, date)
	s, err := scanSubstitution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}
