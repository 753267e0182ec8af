package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"linehaul/store"
)

func stopsWith(statuses ...string) []*store.DispatchEventStop {
	out := make([]*store.DispatchEventStop, len(statuses))
	for i, s := range statuses {
		out[i] = &store.DispatchEventStop{Sequence: i + 1, Status: s}
	}
	return out
}

func TestEvaluateCascadeStart(t *testing.T) {
	res, ok := evaluateCascade(&store.DispatchEvent{Status: StatusDispatched}, StopArrived, nil)
	assert.True(t, ok)
	assert.Equal(t, StatusInTransit, res.To)

	_, ok = evaluateCascade(&store.DispatchEvent{Status: StatusInTransit}, StopArrived, nil)
	assert.False(t, ok, "already moving")

	_, ok = evaluateCascade(&store.DispatchEvent{Status: StatusAssigned}, StopArrived, nil)
	assert.False(t, ok)
}

func TestEvaluateCascadeCompletion(t *testing.T) {
	stops := stopsWith(StopCompleted, StopSkipped, StopException)
	stops[0].OnTimeStatus = ptr(OnTimeEarly)
	stops[1].OnTimeStatus = ptr(OnTimeLate)

	res, ok := evaluateCascade(&store.DispatchEvent{Status: StatusInTransit}, StopException, stops)
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, res.To)
	assert.Equal(t, 33, *res.OnTimePerformance)

	_, ok = evaluateCascade(&store.DispatchEvent{Status: StatusInTransit}, StopCompleted, stopsWith(StopCompleted, StopArrived))
	assert.False(t, ok, "one stop still open")

	_, ok = evaluateCascade(&store.DispatchEvent{Status: StatusInTransit}, StopPending, stopsWith(StopCompleted))
	assert.False(t, ok, "non-terminal stop status never completes")
}

func TestEvaluateCascadeTerminalParent(t *testing.T) {
	for _, st := range []string{StatusCompleted, StatusCancelled} {
		_, ok := evaluateCascade(&store.DispatchEvent{Status: st}, StopCompleted, stopsWith(StopCompleted))
		assert.False(t, ok, st)
	}
}

func TestOnTimePerformanceRounding(t *testing.T) {
	assert.Nil(t, onTimePerformance(0, 0))
	assert.Equal(t, 67, *onTimePerformance(2, 3))
	assert.Equal(t, 50, *onTimePerformance(1, 2))
	assert.Equal(t, 100, *onTimePerformance(4, 4))
	assert.Equal(t, 0, *onTimePerformance(0, 5))
}
