package store

import (
	"context"
	"fmt"
	"time"
)

const (
	DriverActive   = "active"
	DriverInactive = "inactive"
)

type Driver struct {
	ID            int64     `json:"id"`
	TenantID      string    `json:"tenant_id"`
	TerminalID    int64     `json:"terminal_id"`
	Name          string    `json:"name"`
	LicenseNumber string    `json:"license_number"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// DriverTimeOff is an inclusive date range during which a driver cannot be assigned.
type DriverTimeOff struct {
	ID        int64  `json:"id"`
	DriverID  int64  `json:"driver_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

const driverSelectCols = `id, tenant_id, terminal_id, name, license_number, status, created_at`

func scanDriver(row interface{ Scan(...any) error }) (*Driver, error) {
	var d Driver
	var createdAt any
	if err := row.Scan(&d.ID, &d.TenantID, &d.TerminalID, &d.Name, &d.LicenseNumber, &d.Status, &createdAt); err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

func (db *DB) CreateDriver(ctx context.Context, d *Driver) error {
	if d.Status == "" {
		d.Status = DriverActive
	}
	if d.TenantID == "" {
		d.TenantID = "default"
	}
	id, err := insertID(ctx, db, db.Q(`INSERT INTO drivers (tenant_id, terminal_id, name, license_number, status) VALUES (?, ?, ?, ?, ?)`),
		d.TenantID, d.TerminalID, d.Name, d.LicenseNumber, d.Status)
	if err != nil {
		return fmt.Errorf("create driver: %w", mapErr(err))
	}
	d.ID = id
	return nil
}

func (db *DB) GetDriver(ctx context.Context, id int64) (*Driver, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+driverSelectCols+` FROM drivers WHERE id=?`), id)
	d, err := scanDriver(row)
	return d, mapErr(err)
}

// ListDrivers returns all drivers, or only those of terminalID when non-zero.
func (db *DB) ListDrivers(ctx context.Context, terminalID int64) ([]*Driver, error) {
	query := `SELECT ` + driverSelectCols + ` FROM drivers`
	var args []any
	if terminalID != 0 {
		query += ` WHERE terminal_id=?`
		args = append(args, terminalID)
	}
	rows, err := db.QueryContext(ctx, db.Q(query+` ORDER BY name`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) UpdateDriver(ctx context.Context, d *Driver) error {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE drivers SET terminal_id=?, name=?, license_number=?, status=? WHERE id=?`),
		d.TerminalID, d.Name, d.LicenseNumber, d.Status, d.ID)
	return checkAffected(res, err)
}

func (db *DB) DeleteDriver(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM drivers WHERE id=?`), id)
	return checkAffected(res, err)
}

func (db *DB) AddDriverTimeOff(ctx context.Context, off *DriverTimeOff) error {
	id, err := insertID(ctx, db, db.Q(`INSERT INTO driver_time_off (driver_id, start_date, end_date, reason) VALUES (?, ?, ?, ?)`),
		off.DriverID, off.StartDate, off.EndDate, off.Reason)
	if err != nil {
		return fmt.Errorf("add time off: %w", mapErr(err))
	}
	off.ID = id
	return nil
}

func (db *DB) ListDriverTimeOff(ctx context.Context, driverID int64) ([]*DriverTimeOff, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, driver_id, start_date, end_date, reason FROM driver_time_off WHERE driver_id=? ORDER BY start_date`), driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DriverTimeOff
	for rows.Next() {
		var o DriverTimeOff
		if err := rows.Scan(&o.ID, &o.DriverID, &o.StartDate, &o.EndDate, &o.Reason); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (db *DB) DeleteDriverTimeOff(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM driver_time_off WHERE id=?`), id)
	return checkAffected(res, err)
}

// IsDriverAvailable reports whether the driver exists, is active, and has no
// time off covering date (YYYY-MM-DD).
func (db *DB) IsDriverAvailable(ctx context.Context, driverID int64, date string) (bool, error) {
	d, err := db.GetDriver(ctx, driverID)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if d.Status != DriverActive {
		return false, nil
	}
	var n int
	err = db.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM driver_time_off WHERE driver_id=? AND start_date<=? AND end_date>=?`),
		driverID, date, date).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
