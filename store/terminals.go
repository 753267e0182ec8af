package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Terminal struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

const terminalSelectCols = `id, tenant_id, code, name, timezone, created_at`

func scanTerminal(row interface{ Scan(...any) error }) (*Terminal, error) {
	var t Terminal
	var createdAt any
	if err := row.Scan(&t.ID, &t.TenantID, &t.Code, &t.Name, &t.Timezone, &createdAt); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func (db *DB) CreateTerminal(ctx context.Context, t *Terminal) error {
	if t.TenantID == "" {
		t.TenantID = "default"
	}
	id, err := insertID(ctx, db, db.Q(`INSERT INTO terminals (tenant_id, code, name, timezone) VALUES (?, ?, ?, ?)`),
		t.TenantID, t.Code, t.Name, t.Timezone)
	if err != nil {
		return fmt.Errorf("create terminal: %w", mapErr(err))
	}
	t.ID = id
	return nil
}

func (db *DB) GetTerminal(ctx context.Context, id int64) (*Terminal, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+terminalSelectCols+` FROM terminals WHERE id=?`), id)
	t, err := scanTerminal(row)
	return t, mapErr(err)
}

func (db *DB) GetTerminalByCode(ctx context.Context, code string) (*Terminal, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+terminalSelectCols+` FROM terminals WHERE code=?`), code)
	t, err := scanTerminal(row)
	return t, mapErr(err)
}

func (db *DB) ListTerminals(ctx context.Context) ([]*Terminal, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+terminalSelectCols+` FROM terminals ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Terminal
	for rows.Next() {
		t, err := scanTerminal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) UpdateTerminal(ctx context.Context, t *Terminal) error {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE terminals SET tenant_id=?, code=?, name=?, timezone=? WHERE id=?`),
		t.TenantID, t.Code, t.Name, t.Timezone, t.ID)
	return checkAffected(res, mapErr(err))
}

func (db *DB) DeleteTerminal(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM terminals WHERE id=?`), id)
	return checkAffected(res, err)
}

// checkAffected turns a zero-row UPDATE/DELETE into ErrNotFound.
func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
