package board

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"linehaul/store"
)

// Manager builds boards from SQL and keeps them cached in Redis. Reads fall
// back to SQL when Redis is missing, empty or down.
type Manager struct {
	db    *store.DB
	redis *RedisStore
	log   zerolog.Logger
}

// NewManager accepts a nil redis store, in which case every read hits SQL.
func NewManager(db *store.DB, redis *RedisStore, log zerolog.Logger) *Manager {
	return &Manager{db: db, redis: redis, log: log}
}

// Get returns the board for a terminal and date.
func (m *Manager) Get(ctx context.Context, terminalID int64, date string) (*Board, error) {
	if m.redis != nil {
		rows, err := m.redis.GetRows(ctx, terminalID, date)
		if err == nil && rows != nil {
			return &Board{TerminalID: terminalID, Date: date, Rows: rows, Source: "redis"}, nil
		}
		if err != nil {
			m.log.Warn().Err(err).Int64("terminal_id", terminalID).Str("date", date).Msg("board redis read failed, using sql")
		}
	}
	rows, err := m.build(ctx, terminalID, date)
	if err != nil {
		return nil, err
	}
	m.store(ctx, terminalID, date, rows)
	return &Board{TerminalID: terminalID, Date: date, Rows: rows, Source: "sql"}, nil
}

// Refresh rebuilds the board from SQL and writes it through to Redis.
func (m *Manager) Refresh(ctx context.Context, terminalID int64, date string) error {
	rows, err := m.build(ctx, terminalID, date)
	if err != nil {
		return err
	}
	m.store(ctx, terminalID, date, rows)
	return nil
}

// RebuildAll refreshes every terminal's board for date.
func (m *Manager) RebuildAll(ctx context.Context, date string) (int, error) {
	terminals, err := m.db.ListTerminals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list terminals: %w", err)
	}
	n := 0
	for _, t := range terminals {
		if err := m.Refresh(ctx, t.ID, date); err != nil {
			m.log.Warn().Err(err).Int64("terminal_id", t.ID).Msg("board rebuild failed")
			continue
		}
		n++
	}
	return n, nil
}

func (m *Manager) store(ctx context.Context, terminalID int64, date string, rows []Row) {
	if m.redis == nil {
		return
	}
	if err := m.redis.SetRows(ctx, terminalID, date, rows); err != nil {
		m.log.Warn().Err(err).Int64("terminal_id", terminalID).Str("date", date).Msg("board redis write failed")
	}
}

func (m *Manager) build(ctx context.Context, terminalID int64, date string) ([]Row, error) {
	events, err := m.db.ListDispatchEvents(ctx, store.DispatchFilter{TerminalID: terminalID, Date: date})
	if err != nil {
		return nil, fmt.Errorf("list dispatch events: %w", err)
	}
	routes, err := m.db.ListRoutes(ctx, terminalID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	drivers, err := m.db.ListDrivers(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	routeNames := make(map[int64]string, len(routes))
	for _, r := range routes {
		routeNames[r.ID] = r.Name
	}
	driverNames := make(map[int64]string, len(drivers))
	for _, d := range drivers {
		driverNames[d.ID] = d.Name
	}

	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		stops, err := m.db.ListDispatchStops(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("list stops for %d: %w", ev.ID, err)
		}
		row := Row{
			DispatchID:        ev.ID,
			RouteID:           ev.RouteID,
			RouteName:         routeNames[ev.RouteID],
			Status:            ev.Status,
			Priority:          ev.Priority,
			DriverID:          ev.AssignedDriverID,
			TruckID:           ev.AssignedTruckID,
			SubUnitID:         ev.AssignedSubUnitID,
			PlannedDeparture:  ev.PlannedDepartureTime,
			StopsTotal:        len(stops),
			OnTimePerformance: ev.OnTimePerformance,
		}
		if ev.AssignedDriverID != nil {
			row.DriverName = driverNames[*ev.AssignedDriverID]
		}
		for _, s := range stops {
			switch s.Status {
			case "completed", "skipped", "exception":
				row.StopsDone++
			}
			if s.RequiresAttention || s.Status == "exception" {
				row.NeedsAttention = true
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
