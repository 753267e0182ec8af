package messaging

import "time"

// Message types.
const (
	TypeStopUpdate    = "stop.update"
	TypeDispatchEvent = "dispatch.event"
)

// StopUpdate is sent by driver devices when a stop changes.
type StopUpdate struct {
	DispatchID          int64      `json:"dispatch_id"`
	StopID              int64      `json:"stop_id"`
	Status              *string    `json:"status,omitempty"`
	ActualArrivalTime   *time.Time `json:"actual_arrival_time,omitempty"`
	ActualDepartureTime *time.Time `json:"actual_departure_time,omitempty"`
	ServiceTime         *int       `json:"service_time,omitempty"`
	Latitude            *float64   `json:"latitude,omitempty"`
	Longitude           *float64   `json:"longitude,omitempty"`
	Odometer            *float64   `json:"odometer,omitempty"`
	FuelUsed            *float64   `json:"fuel_used,omitempty"`
	ExceptionReason     *string    `json:"exception_reason,omitempty"`
	SkipReason          *string    `json:"skip_reason,omitempty"`
	RequiresAttention   *bool      `json:"requires_attention,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
}

// DispatchEvent is the outbound notification written to the outbox for
// every realtime dispatch event.
type DispatchEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
