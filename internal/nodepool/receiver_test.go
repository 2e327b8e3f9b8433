package nodepool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct{ nodes []Node }

func (f *fakeReceiver) GetCaptureNodes(_ context.Context) ([]Node, error) {
	return f.nodes, nil
}

func TestRegisterLookupRoundTrip(t *testing.T) {
	Register("Effelsberg", "TEST-RX", func() ReceiverClass {
		return &fakeReceiver{nodes: []Node{{Hostname: "x"}}}
	})

	rc, err := Lookup("effelsberg", "test-rx")
	require.NoError(t, err)
	nodes, err := rc.GetCaptureNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", nodes[0].Hostname)
}

func TestLookupUnknownReceiverFails(t *testing.T) {
	_, err := Lookup("effelsberg", "does-not-exist")
	assert.Error(t, err)
}

func TestNamesIncludesRegistered(t *testing.T) {
	Register("effelsberg", "names-test", func() ReceiverClass { return &fakeReceiver{} })
	assert.Contains(t, Names(), "effelsberg/names-test")
}
