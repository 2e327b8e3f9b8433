package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllProjections(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	snap := a.GetSnapshot()
	assert.Equal(t, len(Projections()), len(snap))
	assert.Contains(t, snap, "azimuth")
	assert.Contains(t, snap, "observing")
}

func TestProjectAppliesRawRecord(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)

	a.project(RawRecord{
		"azimuth":    180.5,
		"observing":  true,
		"scannum":    float64(7),
		"source_name": "PSR_B0531+21",
	})

	r, err := a.tree.GetValue("azimuth")
	require.NoError(t, err)
	assert.InDelta(t, 180.5, r.Value.Float, 1e-9)

	r, err = a.tree.GetValue("observing")
	require.NoError(t, err)
	assert.True(t, r.Value.Bool)

	r, err = a.tree.GetValue("scannum")
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.Value.Int)
}

func TestSetSensorTypeConverts(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)

	require.NoError(t, a.SetSensor("azimuth", "42.25"))
	r, err := a.tree.GetValue("azimuth")
	require.NoError(t, err)
	assert.InDelta(t, 42.25, r.Value.Float, 1e-9)

	err = a.SetSensor("nonexistent-sensor", "1")
	assert.Error(t, err)
}

func TestTickWithoutDataLogsButDoesNotPanic(t *testing.T) {
	a, err := New(Config{TickInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	a.tickLoop(ctx)
	_, ok := a.takeLatest()
	assert.False(t, ok)
}

func TestDeliverAndTakeLatestCoalesces(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)

	a.deliver(RawRecord{"azimuth": 1.0})
	a.deliver(RawRecord{"azimuth": 2.0})

	raw, ok := a.takeLatest()
	require.True(t, ok)
	assert.Equal(t, 2.0, raw["azimuth"])

	_, ok = a.takeLatest()
	assert.False(t, ok)
}

func TestMarkStaleSetsUnknownStatus(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, a.SetSensor("azimuth", "10"))

	a.markStale()

	r, err := a.tree.GetValue("azimuth")
	require.NoError(t, err)
	assert.Equal(t, 10.0, r.Value.Float)
	assert.Equal(t, "unknown", r.Status.String())
}
