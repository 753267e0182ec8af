package dispatch

import (
	"math"
	"time"

	"linehaul/store"
)

// cascadeResult is the parent change implied by a stop update.
type cascadeResult struct {
	To                string
	OnTimePerformance *int
}

// evaluateCascade decides whether a stop reaching stopStatus moves its parent.
// First arrival on a dispatched event means the truck has left; every stop
// terminal means the run is complete. Terminal parents never cascade.
func evaluateCascade(parent *store.DispatchEvent, stopStatus string, stops []*store.DispatchEventStop) (cascadeResult, bool) {
	if IsTerminal(parent.Status) {
		return cascadeResult{}, false
	}
	if stopStatus == StopArrived && parent.Status == StatusDispatched {
		return cascadeResult{To: StatusInTransit}, true
	}
	if !IsTerminalStop(stopStatus) || len(stops) == 0 {
		return cascadeResult{}, false
	}
	var terminal, onTime int
	for _, s := range stops {
		if !IsTerminalStop(s.Status) {
			return cascadeResult{}, false
		}
		terminal++
		if countsOnTime(s.OnTimeStatus) {
			onTime++
		}
	}
	return cascadeResult{To: StatusCompleted, OnTimePerformance: onTimePerformance(onTime, terminal)}, true
}

// onTimePerformance is round(100 * onTime / terminal), nil when nothing is terminal.
func onTimePerformance(onTime, terminal int) *int {
	if terminal == 0 {
		return nil
	}
	pct := int(math.Round(100 * float64(onTime) / float64(terminal)))
	return &pct
}

// applyCascade writes the cascade's side effects onto parent.
func applyCascade(parent *store.DispatchEvent, c cascadeResult, now time.Time) {
	parent.Status = c.To
	switch c.To {
	case StatusInTransit:
		parent.ActualDepartureTime = &now
	case StatusCompleted:
		parent.ActualCompletionTime = &now
		parent.OnTimePerformance = c.OnTimePerformance
	}
}
