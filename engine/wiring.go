package engine

import (
	"context"
	"time"

	"linehaul/dispatch"
	"linehaul/messaging"
	"linehaul/store"
)

func (e *Engine) wireEventHandlers() {
	// Every dispatch event is queued for the per-tenant events topic
	e.Events.SubscribeTypes(e.enqueueOutbox, DispatchEventTypes...)

	// Keep the cached board for the affected terminal/date fresh
	if e.board != nil {
		e.Events.SubscribeTypes(func(evt Event) {
			terminalID, date, ok := boardKey(evt.Payload)
			if !ok {
				return
			}
			e.async(func(ctx context.Context) {
				// Serialized so the last writer always holds the latest SQL read.
				e.boardMu.Lock()
				defer e.boardMu.Unlock()
				if err := e.board.Refresh(ctx, terminalID, date); err != nil {
					e.log.Warn().Err(err).Int64("terminal_id", terminalID).Str("date", date).Msg("engine: board refresh")
				}
			})
		}, DispatchEventTypes...)
	}

	if e.metrics != nil {
		e.Events.SubscribeTypes(e.observe, DispatchEventTypes...)
	}

	// Arrivals without coordinates get the truck's last GPS fix
	if e.telematics != nil {
		e.Events.SubscribeTypes(func(evt Event) {
			su, ok := evt.Payload.(*dispatch.StopUpdate)
			if !ok || su.Stop == nil || su.AssignedTruck == nil || *su.AssignedTruck == "" {
				return
			}
			if su.Stop.Status != dispatch.StopArrived || (su.Stop.Latitude != nil && su.Stop.Longitude != nil) {
				return
			}
			stopID, truck := su.Stop.ID, *su.AssignedTruck
			e.async(func(ctx context.Context) {
				e.enrichStopPosition(ctx, stopID, truck)
			})
		}, EventDispatchStopUpdated)
	}
}

func (e *Engine) enqueueOutbox(evt Event) {
	name := evt.Type.Name()
	env := messaging.NewEnvelope(messaging.TypeDispatchEvent, e.cfg.Messaging.StationID, evt.TenantID,
		messaging.DispatchEvent{Event: name, Data: evt.Payload})
	data, err := env.Encode()
	if err != nil {
		e.log.Warn().Err(err).Str("event", name).Msg("engine: encode outbox message")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	topic := messaging.TenantTopic(e.cfg.Messaging.EventsTopic, evt.TenantID)
	if err := e.db.EnqueueOutbox(ctx, topic, data, messaging.TypeDispatchEvent, evt.TenantID); err != nil {
		e.log.Warn().Err(err).Str("event", name).Str("topic", topic).Msg("engine: enqueue outbox")
	}
}

func (e *Engine) observe(evt Event) {
	switch p := evt.Payload.(type) {
	case *dispatch.Created:
		e.metrics.ObserveCreated(p.Source)
	case *dispatch.StatusChange:
		e.metrics.ObserveTransition(p.From, p.To)
		if p.Cause == dispatch.CauseCascade {
			kind := "completed"
			if p.To == dispatch.StatusInTransit {
				kind = "started"
			}
			e.metrics.ObserveCascade(kind)
		}
	case *dispatch.StopUpdate:
		if p.Stop != nil {
			e.metrics.ObserveStopUpdate(p.Stop.Status)
		}
	case *dispatch.GenerateResult:
		e.metrics.ObserveSkipped(len(p.Skipped))
	}
}

func (e *Engine) enrichStopPosition(ctx context.Context, stopID int64, truck string) {
	pos, err := e.telematics.DevicePosition(ctx, truck)
	if err != nil {
		e.log.Warn().Err(err).Int64("stop_id", stopID).Str("truck", truck).Msg("engine: telematics position")
		return
	}
	if err := e.db.SetStopPosition(ctx, stopID, pos.Latitude, pos.Longitude); err != nil {
		e.log.Warn().Err(err).Int64("stop_id", stopID).Msg("engine: store stop position")
		return
	}
	e.log.Debug().Int64("stop_id", stopID).Str("truck", truck).Msg("engine: stop position enriched")
}

// boardKey extracts the board a dispatch payload touches.
func boardKey(payload any) (int64, string, bool) {
	var ev *store.DispatchEvent
	switch p := payload.(type) {
	case *dispatch.Created:
		ev = p.Event
	case *store.DispatchEvent:
		ev = p
	case *dispatch.StatusChange:
		ev = p.Event
	case *dispatch.StopUpdate:
		return p.TerminalID, p.ExecutionDate, true
	case *dispatch.Deleted:
		return p.TerminalID, p.ExecutionDate, true
	case *dispatch.GenerateResult:
		return p.TerminalID, p.Date, true
	}
	if ev == nil {
		return 0, "", false
	}
	return ev.TerminalID, ev.ExecutionDate, true
}
