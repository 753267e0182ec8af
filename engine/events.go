package engine

import "linehaul/dispatch"

const (
	EventDispatchCreated EventType = iota + 1
	EventDispatchUpdated
	EventDispatchStatusChanged
	EventDispatchStopUpdated
	EventDispatchDeleted
	EventDispatchGenerated
	EventMessagingConnected
	EventMessagingDisconnected
)

var eventNames = map[EventType]string{
	EventDispatchCreated:       dispatch.EventCreated,
	EventDispatchUpdated:       dispatch.EventUpdated,
	EventDispatchStatusChanged: dispatch.EventStatusChanged,
	EventDispatchStopUpdated:   dispatch.EventStopUpdated,
	EventDispatchDeleted:       dispatch.EventDeleted,
	EventDispatchGenerated:     dispatch.EventGenerated,
	EventMessagingConnected:    "messaging:connected",
	EventMessagingDisconnected: "messaging:disconnected",
}

var eventTypes = func() map[string]EventType {
	m := make(map[string]EventType, len(eventNames))
	for t, n := range eventNames {
		m[n] = t
	}
	return m
}()

// DispatchEventTypes lists every dispatch lifecycle event.
var DispatchEventTypes = []EventType{
	EventDispatchCreated,
	EventDispatchUpdated,
	EventDispatchStatusChanged,
	EventDispatchStopUpdated,
	EventDispatchDeleted,
	EventDispatchGenerated,
}

// Name returns the wire name, e.g. "dispatch:created".
func (t EventType) Name() string {
	return eventNames[t]
}

// EventTypeFor maps a wire name back to its type.
func EventTypeFor(name string) (EventType, bool) {
	t, ok := eventTypes[name]
	return t, ok
}

type ConnectionEvent struct {
	Detail string `json:"detail"`
}
