package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"linehaul/dispatch"
	"linehaul/messaging"
	"linehaul/telematics"
)

// busPublisher bridges the dispatcher's realtime publisher to the EventBus.
type busPublisher struct {
	bus *EventBus
	log zerolog.Logger
}

func (p *busPublisher) Publish(tenantID, name string, payload any) {
	t, ok := EventTypeFor(name)
	if !ok {
		p.log.Warn().Str("event", name).Msg("unknown realtime event")
		return
	}
	p.bus.Emit(Event{Type: t, TenantID: tenantID, Payload: payload})
}

// errTenantMismatch rejects a device message aimed at another tenant's dispatch.
var errTenantMismatch = errors.New("engine: envelope tenant does not own dispatch event")

// stopApplier applies device stop messages through the dispatcher. The
// envelope's tenant must own the target dispatch event.
type stopApplier struct {
	dispatcher *dispatch.Dispatcher
}

func (a *stopApplier) HandleStopUpdate(ctx context.Context, env *messaging.Envelope, msg messaging.StopUpdate) error {
	detail, err := a.dispatcher.Get(ctx, msg.DispatchID)
	if err != nil {
		return err
	}
	if detail.Event.TenantID != env.TenantID {
		return fmt.Errorf("%w: dispatch %d, envelope tenant %q", errTenantMismatch, msg.DispatchID, env.TenantID)
	}
	_, err = a.dispatcher.UpdateStop(ctx, msg.DispatchID, msg.StopID, dispatch.StopPatch{
		Status:              msg.Status,
		ActualArrivalTime:   msg.ActualArrivalTime,
		ActualDepartureTime: msg.ActualDepartureTime,
		ServiceTime:         msg.ServiceTime,
		Latitude:            msg.Latitude,
		Longitude:           msg.Longitude,
		Odometer:            msg.Odometer,
		FuelUsed:            msg.FuelUsed,
		ExceptionReason:     msg.ExceptionReason,
		SkipReason:          msg.SkipReason,
		RequiresAttention:   msg.RequiresAttention,
		Notes:               msg.Notes,
	}, "device:"+env.Src)
	return err
}

// Positioner looks up a truck's last known position. *telematics.Client satisfies it.
type Positioner interface {
	DevicePosition(ctx context.Context, truck string) (*telematics.Position, error)
}

// MessagingClient is the broker connection the engine drives. *messaging.Client satisfies it.
type MessagingClient interface {
	messaging.Sender
	messaging.Subscriber
	IsConnected() bool
}
