package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linehaul/store"
)

// interleavingStore runs a competing write once, just before the wrapped
// stop or event write, to reproduce two requests overlapping.
type interleavingStore struct {
	*store.DB
	beforeStopWrite  func()
	beforeEventWrite func()
	alwaysStale      bool
}

func (s *interleavingStore) UpdateDispatchStop(ctx context.Context, stop *store.DispatchEventStop) error {
	if fn := s.beforeStopWrite; fn != nil {
		s.beforeStopWrite = nil
		fn()
	}
	return s.DB.UpdateDispatchStop(ctx, stop)
}

func (s *interleavingStore) UpdateDispatchEvent(ctx context.Context, e *store.DispatchEvent) error {
	if s.alwaysStale {
		return store.ErrConflict
	}
	if fn := s.beforeEventWrite; fn != nil {
		s.beforeEventWrite = nil
		fn()
	}
	return s.DB.UpdateDispatchEvent(ctx, e)
}

func (h *harness) interleaved(s *interleavingStore) *Dispatcher {
	s.DB = h.db
	return NewDispatcher(s, h.db, WithPublisher(h.pub), WithClock(func() time.Time { return fixedNow }))
}

func TestCascadeRespectsCancelBetweenStopWriteAndCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	detail := h.create(t, CreateInput{DriverID: &h.driver.ID})
	id := detail.Event.ID
	h.setStatus(t, id, StatusInTransit)
	for _, s := range detail.Stops[:2] {
		_, err := h.d.UpdateStop(ctx, id, s.ID, StopPatch{Status: ptr(StopCompleted)}, "tester")
		require.NoError(t, err)
	}

	s := &interleavingStore{}
	s.beforeStopWrite = func() {
		_, err := h.d.ChangeStatus(ctx, id, StatusCancelled, "dispatcher", StatusOptions{CancellationReason: ptr("weather")})
		require.NoError(t, err)
	}
	_, err := h.interleaved(s).UpdateStop(ctx, id, detail.Stops[2].ID, StopPatch{Status: ptr(StopCompleted)}, "driver")
	require.NoError(t, err)

	ev, err := h.db.GetDispatchEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, ev.Status)
	assert.Equal(t, "weather", *ev.CancellationReason)
	assert.Nil(t, ev.ActualCompletionTime)
	assert.Nil(t, ev.OnTimePerformance)
}

func TestChangeStatusReevaluatedAfterStaleWrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, CreateInput{}).Event.ID
	h.setStatus(t, id, StatusInTransit)

	s := &interleavingStore{}
	s.beforeEventWrite = func() {
		_, err := h.d.ChangeStatus(ctx, id, StatusCancelled, "dispatcher", StatusOptions{})
		require.NoError(t, err)
	}
	_, err := h.interleaved(s).ChangeStatus(ctx, id, StatusCompleted, "tester", StatusOptions{})
	assert.True(t, IsCode(err, CodeInvalidStatusTransition), "cancelled is final: %v", err)

	ev, err := h.db.GetDispatchEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, ev.Status)
	assert.Nil(t, ev.ActualCompletionTime)
}

func TestAssignDriverKeepsConcurrentStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, CreateInput{}).Event.ID

	s := &interleavingStore{}
	s.beforeEventWrite = func() {
		_, err := h.d.ChangeStatus(ctx, id, StatusCancelled, "dispatcher", StatusOptions{})
		require.NoError(t, err)
	}
	got, err := h.interleaved(s).AssignDriver(ctx, id, &h.driver.ID, nil, "tester")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	ev, err := h.db.GetDispatchEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, ev.Status)
	assert.Equal(t, h.driver.ID, *ev.AssignedDriverID)
}

func TestUpdateGivesUpOnPersistentConflict(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, CreateInput{}).Event.ID

	_, err := h.interleaved(&interleavingStore{alwaysStale: true}).Update(context.Background(), id, EventPatch{Notes: ptr("x")}, "tester")
	assert.True(t, IsCode(err, CodeConcurrentUpdate))
	assert.Equal(t, 409, HTTPStatus(err))
}
