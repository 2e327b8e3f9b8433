package receivers

import (
	"context"
	"testing"

	"github.com/mpifr-bdr/reynard/internal/nodepool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestP200Mode3ResolvesCaptureNode(t *testing.T) {
	Bind(nodepool.New([]nodepool.Node{
		{Hostname: "paf0", Interfaces: []string{p200CaptureInterface}},
	}))
	t.Cleanup(func() { Bind(nil) })

	rc, err := nodepool.Lookup("effelsberg", "p200-3")
	require.NoError(t, err)
	nodes, err := rc.GetCaptureNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "paf0", nodes[0].Hostname)
}

func TestP200Mode3FailsWithoutMatchingInterface(t *testing.T) {
	Bind(nodepool.New([]nodepool.Node{{Hostname: "other", Interfaces: []string{"10.0.0.1"}}}))
	t.Cleanup(func() { Bind(nil) })

	rc, err := nodepool.Lookup("effelsberg", "p200-3")
	require.NoError(t, err)
	_, err = rc.GetCaptureNodes(context.Background())
	assert.Error(t, err)
}

func TestPafReturnsAllNodes(t *testing.T) {
	Bind(nodepool.New([]nodepool.Node{{Hostname: "a"}, {Hostname: "b"}}))
	t.Cleanup(func() { Bind(nil) })

	rc, err := nodepool.Lookup("effelsberg", "paf")
	require.NoError(t, err)
	nodes, err := rc.GetCaptureNodes(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestUnboundPoolFailsGracefully(t *testing.T) {
	Bind(nil)
	rc, err := nodepool.Lookup("effelsberg", "paf")
	require.NoError(t, err)
	_, err = rc.GetCaptureNodes(context.Background())
	assert.Error(t, err)
}
