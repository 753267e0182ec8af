package dispatch

import (
	"context"
	"fmt"

	"linehaul/store"
)

// GenerateDaily creates one dispatch event per route of the terminal that
// runs on date's weekday. Routes that already have an event, or whose
// creation fails, are reported as skipped. Safe to re-run.
func (d *Dispatcher) GenerateDaily(ctx context.Context, terminalID int64, date, actor string) (*GenerateResult, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	routes, err := d.db.ListRoutesForWeekday(ctx, terminalID, day.Weekday())
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}

	res := &GenerateResult{TerminalID: terminalID, Date: date, Created: []*store.DispatchEvent{}, Skipped: []int64{}}
	for _, r := range routes {
		existing, err := d.db.FindDispatchEvent(ctx, r.ID, date)
		if err != nil {
			d.log.Warn().Err(err).Int64("route_id", r.ID).Str("date", date).Msg("generate: existing event lookup failed, route skipped")
			res.Skipped = append(res.Skipped, r.ID)
			continue
		}
		if existing != nil {
			res.Skipped = append(res.Skipped, r.ID)
			continue
		}
		detail, err := d.create(ctx, CreateInput{RouteID: r.ID, ExecutionDate: date}, actor, SourceGenerator)
		if err != nil {
			d.log.Warn().Err(err).Int64("route_id", r.ID).Str("date", date).Msg("generate: route skipped")
			res.Skipped = append(res.Skipped, r.ID)
			continue
		}
		res.Created = append(res.Created, detail.Event)
	}

	d.log.Info().Int64("terminal_id", terminalID).Str("date", date).
		Int("created", len(res.Created)).Int("skipped", len(res.Skipped)).Msg("daily generation")
	if len(routes) > 0 {
		d.publisher.Publish(routes[0].TenantID, EventGenerated, res)
	}
	return res, nil
}
