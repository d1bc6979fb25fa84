package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeAndUnsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	unsub := bus.Subscribe(RunStarted, func(e *Event) { got = append(got, e) })
	assert.Equal(t, 1, bus.SubscriberCount(RunStarted))

	bus.Emit(RunStarted, "analysis", map[string]interface{}{"run_id": "r1"})
	bus.Emit(RunCompleted, "analysis", nil)
	require.Len(t, got, 1)
	assert.Equal(t, RunStarted, got[0].Type)
	assert.Equal(t, "analysis", got[0].Module)
	assert.Equal(t, "r1", got[0].Data["run_id"])
	assert.False(t, got[0].Timestamp.IsZero())

	unsub()
	assert.Zero(t, bus.SubscriberCount(RunStarted))
	bus.Emit(RunStarted, "analysis", nil)
	assert.Len(t, got, 1)
}

func TestBus_SubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	seen := make(map[EventType]int)
	unsub := bus.SubscribeAll(func(e *Event) {
		mu.Lock()
		defer mu.Unlock()
		seen[e.Type]++
	})
	defer unsub()

	for _, et := range AllEventTypes() {
		bus.Emit(et, "test", nil)
	}
	assert.Len(t, seen, len(AllEventTypes()))
}

func TestBus_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := 0
	bus.Subscribe(RunFailed, func(*Event) { panic("boom") })
	bus.Subscribe(RunFailed, func(*Event) { delivered++ })

	assert.NotPanics(t, func() { bus.Emit(RunFailed, "test", nil) })
	assert.Equal(t, 1, delivered)
}

func TestManager_EmitTypedRoundTripsData(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(RunCompleted, func(e *Event) { got = e })

	manager.EmitTyped("analysis", &RunCompletedData{
		RunID:     "abc",
		Portfolio: "growth",
		Warnings:  2,
		Elapsed:   "1.5s",
	})

	require.NotNil(t, got)
	typed, ok := got.GetTypedData().(*RunCompletedData)
	require.True(t, ok)
	assert.Equal(t, "abc", typed.RunID)
	assert.Equal(t, "growth", typed.Portfolio)
	assert.Equal(t, 2, typed.Warnings)
}

func TestManager_EmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { got = e })

	manager.EmitError("scheduler", errors.New("disk full"), map[string]interface{}{"job": "batch"})

	require.NotNil(t, got)
	typed, ok := got.GetTypedData().(*ErrorEventData)
	require.True(t, ok)
	assert.Equal(t, "disk full", typed.Error)
	assert.Equal(t, "batch", typed.Context["job"])
}

func TestGetTypedData_UnknownOrEmpty(t *testing.T) {
	assert.Nil(t, (&Event{Type: RunStage}).GetTypedData())
	assert.Nil(t, (&Event{Type: "OTHER", Data: map[string]interface{}{}}).GetTypedData())
}
