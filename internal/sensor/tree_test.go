package sensor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolSpec(name string) Spec {
	return Spec{Name: name, Kind: KindBool, Default: Value{Bool: false}}
}

func TestAddSensorRejectsDuplicateName(t *testing.T) {
	tree := NewTree(4)
	defer tree.Close()

	require.NoError(t, tree.AddSensor(boolSpec("device.active")))
	err := tree.AddSensor(boolSpec("device.active"))
	assert.Error(t, err)
}

func TestSetValueGetValueRoundTrip(t *testing.T) {
	tree := NewTree(4)
	defer tree.Close()

	require.NoError(t, tree.AddSensor(Spec{Name: "pipeline.count", Kind: KindInt}))
	require.NoError(t, tree.SetValue("pipeline.count", Value{Int: 3}, WithStatus(StatusNominal)))

	r, err := tree.GetValue("pipeline.count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Value.Int)
	assert.Equal(t, StatusNominal, r.Status)
}

func TestSetValueUnknownSensorFails(t *testing.T) {
	tree := NewTree(4)
	defer tree.Close()
	err := tree.SetValue("nope", Value{Int: 1})
	assert.Error(t, err)
}

// TestListenerObservesEventStrategy covers spec §8 property 2: a
// listener registered with the event strategy observes every update
// published after its registration.
func TestListenerObservesEventStrategy(t *testing.T) {
	tree := NewTree(4)
	defer tree.Close()
	require.NoError(t, tree.AddSensor(Spec{Name: "s", Kind: KindInt}))

	var mu sync.Mutex
	var seen []int64
	done := make(chan struct{}, 4)

	tree.RegisterListener("s", StrategyEvent, 0, func(evt Event) {
		mu.Lock()
		seen = append(seen, evt.Value.Int)
		mu.Unlock()
		done <- struct{}{}
	})

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, tree.SetValue("s", Value{Int: i}))
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, seen)
}

// TestStatusOnlyChangeStillFires: a SetValue that only changes status
// (value unchanged) still notifies event-strategy listeners.
func TestStatusOnlyChangeStillFires(t *testing.T) {
	tree := NewTree(4)
	defer tree.Close()
	require.NoError(t, tree.AddSensor(Spec{Name: "s", Kind: KindInt}))

	fired := make(chan Event, 2)
	tree.RegisterListener("s", StrategyEvent, 0, func(evt Event) { fired <- evt })

	require.NoError(t, tree.SetValue("s", Value{Int: 5}, WithStatus(StatusNominal)))
	<-fired
	require.NoError(t, tree.SetValue("s", Value{Int: 5}, WithStatus(StatusWarn)))
	evt := <-fired
	assert.Equal(t, StatusWarn, evt.Status)
}

func TestPeriodStrategyCoalesces(t *testing.T) {
	tree := NewTree(4)
	defer tree.Close()
	require.NoError(t, tree.AddSensor(Spec{Name: "s", Kind: KindInt}))

	received := make(chan Event, 16)
	h := tree.RegisterListener("s", StrategyPeriod, 20*time.Millisecond, func(evt Event) {
		received <- evt
	})
	defer tree.Unregister(h)

	for i := int64(0); i < 10; i++ {
		require.NoError(t, tree.SetValue("s", Value{Int: i}))
	}

	select {
	case evt := <-received:
		assert.Equal(t, int64(9), evt.Value.Int)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for coalesced period delivery")
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	tree := NewTree(4)
	defer tree.Close()
	require.NoError(t, tree.AddSensor(Spec{Name: "s", Kind: KindInt}))

	fired := make(chan struct{}, 8)
	h := tree.RegisterListener("s", StrategyEvent, 0, func(Event) { fired <- struct{}{} })

	require.NoError(t, tree.SetValue("s", Value{Int: 1}))
	<-fired

	tree.Unregister(h)
	require.NoError(t, tree.SetValue("s", Value{Int: 2}))

	select {
	case <-fired:
		t.Fatal("listener fired after Unregister")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshotIncludesAllSensors(t *testing.T) {
	tree := NewTree(4)
	defer tree.Close()
	require.NoError(t, tree.AddSensor(Spec{Name: "a", Kind: KindInt}))
	require.NoError(t, tree.AddSensor(Spec{Name: "b", Kind: KindBool}))

	snap := tree.Snapshot()
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "a")
	assert.Contains(t, snap, "b")
}
