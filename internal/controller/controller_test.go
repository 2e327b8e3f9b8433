package controller

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/nodepool"
	"github.com/mpifr-bdr/reynard/internal/sensor"
	"github.com/mpifr-bdr/reynard/internal/ubi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu           sync.Mutex
	calls        []string
	configureErr error
	startErr     error
	stopErr      error
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Configure(_ context.Context, _, _ string) error {
	f.record("configure")
	return f.configureErr
}

func (f *fakeBackend) Start(_ context.Context) map[string]error {
	f.record("start")
	if f.startErr != nil {
		return map[string]error{"n0": f.startErr}
	}
	return map[string]error{"n0": nil}
}

func (f *fakeBackend) Stop(_ context.Context) map[string]error {
	f.record("stop")
	if f.stopErr != nil {
		return map[string]error{"n0": f.stopErr}
	}
	return map[string]error{"n0": nil}
}

func (f *fakeBackend) Deconfigure(_ context.Context) map[string]error {
	f.record("deconfigure")
	return map[string]error{"n0": nil}
}

func (f *fakeBackend) ListNodes() []string              { return []string{"n0"} }
func (f *fakeBackend) Address(name string) (string, bool) { return "127.0.0.1:5000", name == "n0" }
func (f *fakeBackend) DeviceStatus(context.Context) ubi.Health { return ubi.HealthOK }

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeReceiver struct{ nodes []nodepool.Node }

func (r *fakeReceiver) GetCaptureNodes(context.Context) ([]nodepool.Node, error) {
	return r.nodes, nil
}

func setupTree(t *testing.T) *sensor.Tree {
	t.Helper()
	tree := sensor.NewTree(4)
	mustAdd := func(name string, kind sensor.Kind, def sensor.Value) {
		require.NoError(t, tree.AddSensor(sensor.Spec{Name: name, Kind: kind, Default: def}))
	}
	mustAdd("scannum", sensor.KindInt, sensor.Value{})
	mustAdd("subscannum", sensor.KindInt, sensor.Value{})
	mustAdd("nsubscan", sensor.KindInt, sensor.Value{Int: 1})
	mustAdd("observing", sensor.KindBool, sensor.Value{})
	mustAdd("source-name", sensor.KindString, sensor.Value{String: "J1234+5678_cal"})
	mustAdd("receiver", sensor.KindString, sensor.Value{String: "test-rx"})
	mustAdd("project", sensor.KindString, sensor.Value{String: "test-proj"})
	return tree
}

func setupController(t *testing.T, nodes []nodepool.Node) (*Controller, *fakeBackend) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pipelines", "defaults", "test-rx"), 0o755))
	body, err := json.Marshal(map[string][]PipelineSpec{
		"node0": {{Name: "dada", Type: "dummy", Config: map[string]any{}}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "pipelines", "defaults", "test-rx", "default.json"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pipelines", "defaults", "test-rx", "cal.json"), body, 0o644))

	nodepool.Register("controller-test-telescope", "test-rx", func() nodepool.ReceiverClass {
		return &fakeReceiver{nodes: nodes}
	})

	backend := &fakeBackend{}
	tree := setupTree(t)
	ctrl := New(Config{Telescope: "controller-test-telescope", ConfigRoot: root}, tree, backend, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ctrl.Run(ctx)
	t.Cleanup(ctrl.Stop)
	return ctrl, backend
}

func TestParseTag(t *testing.T) {
	assert.Equal(t, "cal", parseTag("J1234+5678_cal"))
	assert.Equal(t, "default", parseTag("J1234+5678"))
}

func TestArmRejectedWhenAlreadyArmed(t *testing.T) {
	ctrl, _ := setupController(t, []nodepool.Node{{Hostname: "node0"}})
	require.NoError(t, ctrl.Arm(context.Background()))
	err := ctrl.Arm(context.Background())
	assert.Error(t, err)
}

func TestArmWithNoScanNumberWaitsForScanChange(t *testing.T) {
	ctrl, backend := setupController(t, []nodepool.Node{{Hostname: "node0"}})
	require.NoError(t, ctrl.Arm(context.Background()))
	assert.Equal(t, StateWaitingForScanNumberChange, ctrl.State())
	assert.Empty(t, backend.Calls())
}

func TestScanObservingCycleIssuesConfigureStartStop(t *testing.T) {
	ctrl, backend := setupController(t, []nodepool.Node{{Hostname: "node0"}})
	require.NoError(t, ctrl.Arm(context.Background()))

	tree := ctrl.tree
	require.NoError(t, tree.SetValue("scannum", sensor.Value{Int: 12}))
	ctrl.waitForIdle(time.Second)
	assert.Contains(t, backend.Calls(), "configure")
	assert.Equal(t, StateWaitingStatusChangeToObserve, ctrl.State())

	require.NoError(t, tree.SetValue("observing", sensor.Value{Bool: true}))
	ctrl.waitForIdle(time.Second)
	assert.Equal(t, StateWaitingStatusChangeFromObserve, ctrl.State())

	require.NoError(t, tree.SetValue("observing", sensor.Value{Bool: false}))
	ctrl.waitForIdle(time.Second)
	assert.Equal(t, StateIdle, ctrl.State())

	calls := backend.Calls()
	assert.Contains(t, calls, "start")
	assert.Contains(t, calls, "stop")
}

func TestDisarmTearsDownAndClearsArmed(t *testing.T) {
	ctrl, backend := setupController(t, []nodepool.Node{{Hostname: "node0"}})
	require.NoError(t, ctrl.Arm(context.Background()))
	require.NoError(t, ctrl.Disarm(context.Background()))

	assert.False(t, ctrl.Armed())
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Contains(t, backend.Calls(), "stop")
	assert.Contains(t, backend.Calls(), "deconfigure")
}

func TestScanHandlerFailureAbortsAndClearsArmed(t *testing.T) {
	ctrl, _ := setupController(t, nil)

	require.NoError(t, ctrl.Arm(context.Background()))
	require.NoError(t, ctrl.tree.SetValue("receiver", sensor.Value{String: "no-such-receiver"}))
	require.NoError(t, ctrl.tree.SetValue("scannum", sensor.Value{Int: 7}))
	ctrl.waitForIdle(time.Second)

	assert.Equal(t, StateIdle, ctrl.State())
	assert.False(t, ctrl.Armed())
}

func TestBackendAddressAndListCommands(t *testing.T) {
	ctrl, _ := setupController(t, []nodepool.Node{{Hostname: "node0"}})
	reply := ctrl.handleBackendAddress(context.Background(), []string{"n0"})
	require.Equal(t, katcp.Ok, reply.Status)
	assert.Equal(t, []string{"127.0.0.1:5000"}, reply.Args)

	reply = ctrl.handleBackendList(context.Background(), nil)
	require.Equal(t, katcp.Ok, reply.Status)
	assert.Equal(t, []string{"1"}, reply.Args)
	assert.Len(t, reply.Informs, 1)
}
