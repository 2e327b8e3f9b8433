package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/mpifr-bdr/reynard/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	Register(Descriptor{
		TypeName:        "test-type",
		RequiredSensors: []string{"frequency"},
		NewChildren: func(config map[string]any) ([]ChildSpec, error) {
			return []ChildSpec{{Name: "worker"}}, nil
		},
	})
	Register(Descriptor{
		TypeName:        "multi-child-type",
		RequiredSensors: []string{"frequency"},
		NewChildren: func(config map[string]any) ([]ChildSpec, error) {
			return []ChildSpec{{Name: "first"}, {Name: "second"}, {Name: "third"}}, nil
		},
	})
	Register(Descriptor{
		TypeName:        "persistent-type",
		RequiredSensors: []string{"frequency"},
		NewChildren: func(config map[string]any) ([]ChildSpec, error) {
			return []ChildSpec{{Name: "guard", Persistent: true}}, nil
		},
	})
}

func sensors(names ...string) map[string]sensor.Reading {
	out := make(map[string]sensor.Reading)
	for _, n := range names {
		out[n] = sensor.Reading{}
	}
	return out
}

func TestLifecycleHappyPath(t *testing.T) {
	inst, err := New("p1", "test-type")
	require.NoError(t, err)
	defer inst.Close()

	require.NoError(t, inst.Configure(context.Background(), nil, sensors("frequency")))
	assert.Equal(t, StateReady, inst.State())

	require.NoError(t, inst.Start(context.Background(), nil))
	assert.Equal(t, StateRunning, inst.State())

	require.NoError(t, inst.Stop(context.Background(), false))
	assert.Equal(t, StateReady, inst.State())

	require.NoError(t, inst.Deconfigure(context.Background()))
	assert.Equal(t, StateIdle, inst.State())
}

func TestConfigureFailsOnMissingSensor(t *testing.T) {
	inst, err := New("p2", "test-type")
	require.NoError(t, err)
	defer inst.Close()

	err = inst.Configure(context.Background(), nil, sensors())
	assert.Error(t, err)
	assert.Equal(t, StateFailed, inst.State())
}

func TestStopFromFailedStaysFailed(t *testing.T) {
	inst, err := New("p3", "test-type")
	require.NoError(t, err)
	defer inst.Close()

	_ = inst.Configure(context.Background(), nil, sensors())
	require.Equal(t, StateFailed, inst.State())

	require.NoError(t, inst.Stop(context.Background(), true))
	assert.Equal(t, StateFailed, inst.State())
}

func TestResetReturnsToIdleFromAnyState(t *testing.T) {
	inst, err := New("p4", "test-type")
	require.NoError(t, err)
	defer inst.Close()

	require.NoError(t, inst.Configure(context.Background(), nil, sensors("frequency")))
	require.NoError(t, inst.Start(context.Background(), nil))
	assert.Equal(t, StateRunning, inst.State())

	inst.Reset(context.Background())
	assert.Equal(t, StateIdle, inst.State())
}

func TestStateChangeCallbacksFire(t *testing.T) {
	inst, err := New("p5", "test-type")
	require.NoError(t, err)
	defer inst.Close()

	seen := make(chan State, 8)
	inst.OnStateChange(func(s State) { seen <- s })

	require.NoError(t, inst.Configure(context.Background(), nil, sensors("frequency")))

	var last State
	for i := 0; i < 2; i++ {
		select {
		case last = <-seen:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for state callback")
		}
	}
	assert.Equal(t, StateReady, last)
}

func TestWatchdogTransitionsToFailedOnNonZeroExit(t *testing.T) {
	inst, err := New("p6", "test-type")
	require.NoError(t, err)
	defer inst.Close()

	require.NoError(t, inst.Configure(context.Background(), nil, sensors("frequency")))
	require.NoError(t, inst.Start(context.Background(), nil))

	status, ok := inst.Get("worker")
	require.True(t, ok)

	globalSupervisor.publish(inst.ID, Termination{ChildName: status.Name, ExitCode: 1, Type: "die"})

	require.Eventually(t, func() bool {
		return inst.State() == StateFailed
	}, time.Second, 5*time.Millisecond)
}

func TestWatchdogTransitionsToReadyOnCleanExit(t *testing.T) {
	inst, err := New("p7", "test-type")
	require.NoError(t, err)
	defer inst.Close()

	require.NoError(t, inst.Configure(context.Background(), nil, sensors("frequency")))
	require.NoError(t, inst.Start(context.Background(), nil))

	status, ok := inst.Get("worker")
	require.True(t, ok)

	globalSupervisor.publish(inst.ID, Termination{ChildName: status.Name, ExitCode: 0, Type: "die"})

	require.Eventually(t, func() bool {
		return inst.State() == StateReady
	}, time.Second, 5*time.Millisecond)
}

// TestWatchdogTerminationRoutesToCorrectChild starts a three-child
// pipeline and terminates the last child, not the first. Before each
// child got its own dedicated termination channel, a single shared
// channel meant any of the three watchdog goroutines could pull this
// event off the channel; if it went to "first" or "second"'s
// goroutine instead of "third"'s, the mismatch was silently discarded
// and the pipeline never left StateRunning.
func TestWatchdogTerminationRoutesToCorrectChild(t *testing.T) {
	inst, err := New("p10", "multi-child-type")
	require.NoError(t, err)
	defer inst.Close()

	require.NoError(t, inst.Configure(context.Background(), nil, sensors("frequency")))
	require.NoError(t, inst.Start(context.Background(), nil))
	require.Equal(t, StateRunning, inst.State())

	status, ok := inst.Get("third")
	require.True(t, ok)

	globalSupervisor.publish(inst.ID, Termination{ChildName: status.Name, ExitCode: 1, Type: "die"})

	require.Eventually(t, func() bool {
		return inst.State() == StateFailed
	}, time.Second, 5*time.Millisecond)
}

// TestPersistentChildFailsPipelineOnCleanExit exercises spec.md §8
// scenario S5's third case: a persistent child that exits 0 still
// fails the pipeline, since a persistent child is expected to run for
// the pipeline's entire lifetime — any exit, clean or not, means it
// stopped running.
func TestPersistentChildFailsPipelineOnCleanExit(t *testing.T) {
	inst, err := New("p11", "persistent-type")
	require.NoError(t, err)
	defer inst.Close()

	require.NoError(t, inst.Configure(context.Background(), nil, sensors("frequency")))
	require.NoError(t, inst.Start(context.Background(), nil))

	status, ok := inst.Get("guard")
	require.True(t, ok)

	globalSupervisor.publish(inst.ID, Termination{ChildName: status.Name, ExitCode: 0, Type: "die"})

	require.Eventually(t, func() bool {
		return inst.State() == StateFailed
	}, time.Second, 5*time.Millisecond)
}

func TestSaltedNamesAreUniquePerInstance(t *testing.T) {
	a, err := New("pa", "test-type")
	require.NoError(t, err)
	defer a.Close()
	b, err := New("pb", "test-type")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Configure(context.Background(), nil, sensors("frequency")))
	require.NoError(t, a.Start(context.Background(), nil))
	require.NoError(t, b.Configure(context.Background(), nil, sensors("frequency")))
	require.NoError(t, b.Start(context.Background(), nil))

	nameA, _ := a.GetName("worker")
	nameB, _ := b.GetName("worker")
	assert.NotEqual(t, nameA, nameB)
}
