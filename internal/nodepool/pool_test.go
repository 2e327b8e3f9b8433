package nodepool

import (
	"testing"

	"github.com/mpifr-bdr/reynard/internal/rerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeNodes() []Node {
	return []Node{
		{Hostname: "a", Priority: 0},
		{Hostname: "b", Priority: 1},
		{Hostname: "c", Priority: 0},
	}
}

func TestAllocateReturnsHighestPriorityFirst(t *testing.T) {
	p := New(threeNodes())
	nodes, err := p.Allocate(2)
	require.NoError(t, err)
	hosts := []string{nodes[0].Hostname, nodes[1].Hostname}
	assert.ElementsMatch(t, []string{"a", "c"}, hosts)
}

func TestAllocateFailsAtomicallyWhenInsufficient(t *testing.T) {
	p := New(threeNodes())
	_, err := p.Allocate(2)
	require.NoError(t, err)

	_, err = p.Allocate(2)
	assert.Error(t, err)
	var nu *rerrors.NodeUnavailableError
	assert.ErrorAs(t, err, &nu)

	assert.Len(t, p.Available(), 1)
}

func TestDeallocateReturnsNodesToFree(t *testing.T) {
	p := New(threeNodes())
	nodes, err := p.Allocate(2)
	require.NoError(t, err)

	require.NoError(t, p.Deallocate(nodes))
	assert.Len(t, p.Available(), 3)
	assert.Empty(t, p.Used())
}

func TestDeallocateUnknownNodeFails(t *testing.T) {
	p := New(threeNodes())
	err := p.Deallocate([]Node{{Hostname: "a"}})
	assert.Error(t, err)
}

func TestResetEmptiesAllocated(t *testing.T) {
	p := New(threeNodes())
	_, err := p.Allocate(2)
	require.NoError(t, err)

	p.Reset()
	assert.Len(t, p.Available(), 3)
	assert.Empty(t, p.Used())
}

func TestFreeUnionAllocatedEqualsUniverse(t *testing.T) {
	p := New(threeNodes())
	_, err := p.Allocate(1)
	require.NoError(t, err)

	assert.Equal(t, 3, len(p.Available())+len(p.Used()))
}

func TestFromManifestDefaultsPriority(t *testing.T) {
	data := []byte(`[{"host":"pacifix0","port":5100,"nics":["10.17.0.1"]},{"host":"pacifix1","port":5100,"nics":["10.17.1.1"],"priority":0}]`)
	p, err := FromManifest(data)
	require.NoError(t, err)

	all := p.All()
	byHost := make(map[string]Node, len(all))
	for _, n := range all {
		byHost[n.Hostname] = n
	}
	assert.Equal(t, defaultPriority, byHost["pacifix0"].Priority)
	assert.Equal(t, 0, byHost["pacifix1"].Priority)
}

func TestByInterfaceFindsNode(t *testing.T) {
	p := New([]Node{{Hostname: "a", Interfaces: []string{"10.0.5.100"}}})
	n, ok := p.ByInterface("10.0.5.100")
	require.True(t, ok)
	assert.Equal(t, "a", n.Hostname)

	_, ok = p.ByInterface("10.0.5.200")
	assert.False(t, ok)
}
