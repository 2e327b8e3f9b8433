package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu      sync.Mutex
	started bool
	stopped bool
	reloads int
}

func (f *fakeService) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeService) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func writeTestConfig(t *testing.T) (path, pidFile string) {
	t.Helper()
	dir := t.TempDir()
	pidFile = filepath.Join(dir, "reynard.pid")
	path = filepath.Join(dir, "reynard.yaml")
	body := "reynard:\n  control:\n    pid_file: " + pidFile + "\n  metrics:\n    enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, pidFile
}

func TestStartWritesPIDFileAndStartsService(t *testing.T) {
	path, pidFile := writeTestConfig(t)
	svc := &fakeService{}
	d, err := New(path, svc)
	require.NoError(t, err)

	require.NoError(t, d.Start())
	svc.mu.Lock()
	started := svc.started
	svc.mu.Unlock()
	assert.True(t, started)

	_, err = os.Stat(pidFile)
	assert.NoError(t, err)

	d.Stop()
	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err))
}

func TestTriggerShutdownEndsRun(t *testing.T) {
	path, _ := writeTestConfig(t)
	svc := &fakeService{}
	d, err := New(path, svc)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	time.Sleep(20 * time.Millisecond)
	d.TriggerShutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after TriggerShutdown")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.True(t, svc.stopped)
}
