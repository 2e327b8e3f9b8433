package ubi

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode is a minimal standalone katcp server standing in for a
// Backend Node during UBI tests.
type fakeNode struct {
	srv  *katcp.Server
	fail bool
}

func startFakeNode(t *testing.T, fail bool) *fakeNode {
	t.Helper()
	d := katcp.NewDispatcher()
	reply := func(ctx context.Context, args []string) katcp.Reply {
		if fail {
			return katcp.Failf("induced failure")
		}
		return katcp.Okay()
	}
	d.Register("configure", reply)
	d.Register("start", reply)
	d.Register("stop", reply)
	d.Register("deconfigure", reply)
	d.Register("status", reply)

	srv := katcp.NewServer("127.0.0.1:0", d, log.Component("fake-node"))
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return &fakeNode{srv: srv, fail: fail}
}

func (f *fakeNode) hostPort(t *testing.T) (string, int) {
	t.Helper()
	addr := f.srv.Addr()
	require.NotNil(t, addr)
	host, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestAddNodeDialsAndRegisters(t *testing.T) {
	fn := startFakeNode(t, false)
	host, port := fn.hostPort(t)

	u := New()
	require.NoError(t, u.AddNode(context.Background(), "n0", host, port))
	assert.Contains(t, u.ListNodes(), "n0")

	err := u.AddNode(context.Background(), "n0", host, port)
	assert.Error(t, err)
}

func TestRemoveNodeUnknownFails(t *testing.T) {
	u := New()
	assert.Error(t, u.RemoveNode("missing"))
}

func TestConfigureFansOutAndSucceeds(t *testing.T) {
	fn1 := startFakeNode(t, false)
	fn2 := startFakeNode(t, false)
	u := New()
	h1, p1 := fn1.hostPort(t)
	h2, p2 := fn2.hostPort(t)
	require.NoError(t, u.AddNode(context.Background(), "n1", h1, p1))
	require.NoError(t, u.AddNode(context.Background(), "n2", h2, p2))

	err := u.Configure(context.Background(), "cfg", "sensors")
	assert.NoError(t, err)
}

func TestConfigureFailsWhenAnyNodeFails(t *testing.T) {
	good := startFakeNode(t, false)
	bad := startFakeNode(t, true)
	u := New()
	hg, pg := good.hostPort(t)
	hb, pb := bad.hostPort(t)
	require.NoError(t, u.AddNode(context.Background(), "good", hg, pg))
	require.NoError(t, u.AddNode(context.Background(), "bad", hb, pb))

	err := u.Configure(context.Background(), "cfg", "sensors")
	assert.Error(t, err)
}

func TestStartStopDeconfigureBestEffort(t *testing.T) {
	good := startFakeNode(t, false)
	bad := startFakeNode(t, true)
	u := New()
	hg, pg := good.hostPort(t)
	hb, pb := bad.hostPort(t)
	require.NoError(t, u.AddNode(context.Background(), "good", hg, pg))
	require.NoError(t, u.AddNode(context.Background(), "bad", hb, pb))

	results := u.Start(context.Background())
	assert.NoError(t, results["good"])
	assert.Error(t, results["bad"])

	results = u.Stop(context.Background())
	assert.NoError(t, results["good"])
	assert.Error(t, results["bad"])

	results = u.Deconfigure(context.Background())
	assert.NoError(t, results["good"])
	assert.Error(t, results["bad"])
}

func TestDeviceStatusAggregation(t *testing.T) {
	u := New()
	assert.Equal(t, HealthOK, u.DeviceStatus(context.Background()))

	good := startFakeNode(t, false)
	bad1 := startFakeNode(t, true)
	hg, pg := good.hostPort(t)
	hb1, pb1 := bad1.hostPort(t)
	require.NoError(t, u.AddNode(context.Background(), "good", hg, pg))
	require.NoError(t, u.AddNode(context.Background(), "bad1", hb1, pb1))
	assert.Equal(t, HealthDegraded, u.DeviceStatus(context.Background()))

	bad2 := startFakeNode(t, true)
	hb2, pb2 := bad2.hostPort(t)
	require.NoError(t, u.AddNode(context.Background(), "bad2", hb2, pb2))
	assert.Equal(t, HealthFail, u.DeviceStatus(context.Background()))
}

func TestDeviceStatusString(t *testing.T) {
	assert.Equal(t, "ok", HealthOK.String())
	assert.Equal(t, "degraded", HealthDegraded.String())
	assert.Equal(t, "fail", HealthFail.String())
}

func TestAddNodeDialFailureIsReported(t *testing.T) {
	u := New()
	err := u.AddNode(context.Background(), "nope", "127.0.0.1", 1)
	assert.Error(t, err)
	assert.NotContains(t, u.ListNodes(), "nope")
}
