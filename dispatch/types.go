package dispatch

import (
	"time"

	"linehaul/store"
)

// Dispatch event statuses.
const (
	StatusPlanned    = "planned"
	StatusAssigned   = "assigned"
	StatusDispatched = "dispatched"
	StatusInTransit  = "in_transit"
	StatusDelayed    = "delayed"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Stop statuses. Completed, skipped and exception end a stop's lifecycle.
const (
	StopPending   = "pending"
	StopArrived   = "arrived"
	StopCompleted = "completed"
	StopSkipped   = "skipped"
	StopException = "exception"
)

// On-time classifications.
const (
	OnTimeEarly   = "early"
	OnTimeOnTime  = "on_time"
	OnTimeDelayed = "delayed"
	OnTimeLate    = "late"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Realtime event names.
const (
	EventCreated       = "dispatch:created"
	EventUpdated       = "dispatch:updated"
	EventStatusChanged = "dispatch:status_changed"
	EventStopUpdated   = "dispatch:stop_updated"
	EventDeleted       = "dispatch:deleted"
	EventGenerated     = "dispatch:generated"
)

// Causes carried on StatusChange.
const (
	CauseManual     = "manual"
	CauseAssignment = "assignment"
	CauseCascade    = "cascade"
)

// Sources carried on Created.
const (
	SourceManual    = "manual"
	SourceGenerator = "generator"
)

const dateLayout = "2006-01-02"

var stopStatuses = map[string]bool{
	StopPending: true, StopArrived: true, StopCompleted: true, StopSkipped: true, StopException: true,
}

var priorities = map[string]bool{
	PriorityLow: true, PriorityNormal: true, PriorityHigh: true, PriorityUrgent: true,
}

// IsTerminalStop reports whether a stop status ends the stop's lifecycle.
func IsTerminalStop(status string) bool {
	return status == StopCompleted || status == StopSkipped || status == StopException
}

// CreateInput is the caller's request for a new dispatch event. Nil
// assignment fields defer to substitutions and route defaults.
type CreateInput struct {
	RouteID              int64   `json:"route_id"`
	ExecutionDate        string  `json:"execution_date"`
	DriverID             *int64  `json:"driver_id"`
	TruckID              *string `json:"truck_id"`
	SubUnitID            *string `json:"sub_unit_id"`
	Status               string  `json:"status"`
	Priority             string  `json:"priority"`
	PlannedDepartureTime *string `json:"planned_departure_time"`
	Notes                string  `json:"notes"`
}

// StatusOptions carries the cancellation details for a status change.
type StatusOptions struct {
	CancellationReason *string `json:"cancellation_reason"`
	CancellationNotes  *string `json:"cancellation_notes"`
}

// StopPatch is a partial update of a dispatch stop. Nil fields are left alone.
type StopPatch struct {
	Status              *string    `json:"status"`
	ActualArrivalTime   *time.Time `json:"actual_arrival_time"`
	ActualDepartureTime *time.Time `json:"actual_departure_time"`
	ServiceTime         *int       `json:"service_time"`
	Latitude            *float64   `json:"latitude"`
	Longitude           *float64   `json:"longitude"`
	Odometer            *float64   `json:"odometer"`
	FuelUsed            *float64   `json:"fuel_used"`
	ExceptionReason     *string    `json:"exception_reason"`
	SkipReason          *string    `json:"skip_reason"`
	RequiresAttention   *bool      `json:"requires_attention"`
	Notes               *string    `json:"notes"`
}

// EventPatch edits the non-lifecycle fields of a dispatch event.
type EventPatch struct {
	Priority                *string    `json:"priority"`
	PlannedDepartureTime    *string    `json:"planned_departure_time"`
	TruckID                 *string    `json:"truck_id"`
	SubUnitID               *string    `json:"sub_unit_id"`
	EstimatedReturnTime     *time.Time `json:"estimated_return_time"`
	ActualReturnTime        *time.Time `json:"actual_return_time"`
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time"`
	EstimatedDelayMinutes   *int       `json:"estimated_delay_minutes"`
	TotalMiles              *float64   `json:"total_miles"`
	TotalServiceTime        *int       `json:"total_service_time"`
	FuelUsed                *float64   `json:"fuel_used"`
	Notes                   *string    `json:"notes"`
}

// Detail is a dispatch event with its stops.
type Detail struct {
	Event *store.DispatchEvent       `json:"event"`
	Stops []*store.DispatchEventStop `json:"stops"`
}

// GenerateResult reports a daily generation run.
type GenerateResult struct {
	TerminalID int64                  `json:"terminal_id"`
	Date       string                 `json:"date"`
	Created    []*store.DispatchEvent `json:"created"`
	Skipped    []int64                `json:"skipped"`
}

// Realtime payloads.

type Created struct {
	Detail
	Source string `json:"source"`
}

type StatusChange struct {
	Event *store.DispatchEvent `json:"event"`
	From  string               `json:"from"`
	To    string               `json:"to"`
	Cause string               `json:"cause"`
}

type StopUpdate struct {
	DispatchID     int64                    `json:"dispatch_id"`
	TerminalID     int64                    `json:"terminal_id"`
	ExecutionDate  string                   `json:"execution_date"`
	AssignedTruck  *string                  `json:"assigned_truck_id"`
	PreviousStatus string                   `json:"previous_status"`
	Stop           *store.DispatchEventStop `json:"stop"`
}

type Deleted struct {
	ID            int64  `json:"id"`
	RouteID       int64  `json:"route_id"`
	TerminalID    int64  `json:"terminal_id"`
	ExecutionDate string `json:"execution_date"`
}
