package dispatch

import (
	"context"
	"time"

	"linehaul/store"
)

// Store is the persistence the dispatcher needs. *store.DB satisfies it.
type Store interface {
	GetRoute(ctx context.Context, id int64) (*store.Route, error)
	ListRouteStops(ctx context.Context, routeID int64) ([]*store.RouteStop, error)
	ListRoutesForWeekday(ctx context.Context, terminalID int64, wd time.Weekday) ([]*store.Route, error)
	FindActiveSubstitution(ctx context.Context, routeID int64, date string) (*store.RouteSubstitution, error)

	GetDispatchEvent(ctx context.Context, id int64) (*store.DispatchEvent, error)
	FindDispatchEvent(ctx context.Context, routeID int64, date string) (*store.DispatchEvent, error)
	CreateDispatchEventWithStops(ctx context.Context, e *store.DispatchEvent, stops []*store.DispatchEventStop) error
	UpdateDispatchEvent(ctx context.Context, e *store.DispatchEvent) error
	DeleteDispatchEvent(ctx context.Context, id int64) error

	ListDispatchStops(ctx context.Context, dispatchEventID int64) ([]*store.DispatchEventStop, error)
	GetDispatchStop(ctx context.Context, id int64) (*store.DispatchEventStop, error)
	UpdateDispatchStop(ctx context.Context, s *store.DispatchEventStop) error
}

// Availability answers whether a driver can take work on a date.
type Availability interface {
	IsDriverAvailable(ctx context.Context, driverID int64, date string) (bool, error)
}

// Publisher is the realtime sink. Publish must not block.
type Publisher interface {
	Publish(tenantID, event string, payload any)
}

// Auditor appends to the audit trail. Errors are logged, never returned to callers.
type Auditor interface {
	AppendAudit(ctx context.Context, e *store.AuditEntry) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, string, any) {}

type noopAuditor struct{}

func (noopAuditor) AppendAudit(context.Context, *store.AuditEntry) error { return nil }
