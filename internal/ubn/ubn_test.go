package ubn

import (
	"context"
	"testing"

	"github.com/mpifr-bdr/reynard/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	pipeline.Register(pipeline.Descriptor{
		TypeName: "ubn-test-type",
		NewChildren: func(map[string]any) ([]pipeline.ChildSpec, error) {
			return []pipeline.ChildSpec{{Name: "worker"}}, nil
		},
	})
}

func TestConfigureRejectsWhenActive(t *testing.T) {
	n := New(Config{})
	doc := ConfigureDoc{Pipelines: []PipelineDoc{{Name: "a", Type: "ubn-test-type"}}}

	require.NoError(t, n.Configure(context.Background(), doc, nil))
	err := n.Configure(context.Background(), doc, nil)
	assert.Error(t, err)
}

func TestConfigureDuplicateNameFails(t *testing.T) {
	n := New(Config{})
	doc := ConfigureDoc{Pipelines: []PipelineDoc{
		{Name: "a", Type: "ubn-test-type"},
		{Name: "a", Type: "ubn-test-type"},
	}}
	err := n.Configure(context.Background(), doc, nil)
	assert.Error(t, err)
}

func TestFullLifecycle(t *testing.T) {
	n := New(Config{})
	doc := ConfigureDoc{Pipelines: []PipelineDoc{{Name: "a", Type: "ubn-test-type"}}}

	require.NoError(t, n.Configure(context.Background(), doc, nil))
	r, _ := n.tree.GetValue("active")
	assert.True(t, r.Value.Bool)

	results := n.Start(context.Background(), nil)
	assert.NoError(t, results["a"])

	status := n.Status()
	assert.Equal(t, pipeline.StateRunning, status.Pipelines["a"].State)

	results = n.StopAll(context.Background())
	assert.NoError(t, results["a"])

	require.NoError(t, n.Deconfigure(context.Background()))
	r, _ = n.tree.GetValue("active")
	assert.False(t, r.Value.Bool)
	assert.Empty(t, n.PipelineList())
}

func TestPipelineAvailListsRegisteredTypes(t *testing.T) {
	n := New(Config{})
	assert.Contains(t, n.PipelineAvail(), "ubn-test-type")
}

func TestPipelineCreateListDestroy(t *testing.T) {
	n := New(Config{})
	require.NoError(t, n.PipelineCreate("manual", "ubn-test-type"))
	assert.Contains(t, n.PipelineList(), "manual")

	err := n.PipelineCreate("manual", "ubn-test-type")
	assert.Error(t, err)

	require.NoError(t, n.PipelineDestroy("manual"))
	assert.NotContains(t, n.PipelineList(), "manual")
}

func TestHostSensorsRegistered(t *testing.T) {
	n := New(Config{Volumes: []string{"/tmp"}, NumCPU: 2, NUMANodes: 1})
	snap := n.tree.Snapshot()
	assert.Contains(t, snap, "active")
	assert.Contains(t, snap, "disk./tmp.capacity")
	assert.Contains(t, snap, "cpu.core0.percent")
	assert.Contains(t, snap, "cpu.core1.percent")
	assert.Contains(t, snap, "mem.node0.total")
}

func TestSampleHostDoesNotPanic(t *testing.T) {
	n := New(Config{Volumes: []string{"/tmp"}, NumCPU: 1, NUMANodes: 1})
	n.sampleHost()
	r, err := n.tree.GetValue("disk./tmp.capacity")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Value.Float, 0.0)
}
