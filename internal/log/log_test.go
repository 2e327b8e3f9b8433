package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDefaultLevel(t *testing.T) {
	require.NoError(t, Init(Config{}))
	entry := Get()
	assert.NotNil(t, entry.Logger)
}

func TestComponentAddsField(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug"}))
	entry := Component("aggregator")
	assert.Equal(t, "aggregator", entry.Data["component"])
}

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(Config{Level: "not-a-level"})
	assert.Error(t, err)
}
