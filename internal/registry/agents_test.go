package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/orchestrator/internal/agent"
)

func TestAgentRegistry_RegisterAndGet(t *testing.T) {
	r := NewAgentRegistry()
	a := agent.New("echo", "Echo", "builtin", agent.EchoHandler)

	require.NoError(t, r.Register(a, "1.0.0"))
	got, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, agent.StateRunning, got.State)
}

func TestAgentRegistry_ReRegisterSameVersionIsNoOp(t *testing.T) {
	r := NewAgentRegistry()
	a := agent.New("echo", "Echo", "builtin", agent.EchoHandler)
	require.NoError(t, r.Register(a, "1.0.0"))

	err := r.Register(a, "1.0.0")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestAgentRegistry_UnregisterRemovesAgent(t *testing.T) {
	r := NewAgentRegistry()
	a := agent.New("echo", "Echo", "builtin", agent.EchoHandler)
	require.NoError(t, r.Register(a, "1.0.0"))

	r.Unregister("echo")
	_, err := r.Get("echo")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestAgentRegistry_RunningExcludesStopped(t *testing.T) {
	r := NewAgentRegistry()
	running := agent.New("running", "Running", "builtin", agent.EchoHandler)
	require.NoError(t, r.Register(running, "1.0.0"))

	stopped := agent.New("stopped", "Stopped", "builtin", agent.EchoHandler)
	require.NoError(t, r.Register(stopped, "1.0.0"))
	r.Unregister("stopped")

	ids := make([]string, 0)
	for _, a := range r.Running() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"running"}, ids)
}

func TestPluginLoader_LoadAllRegistersFromManifest(t *testing.T) {
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "greeter")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	manifest := `{"name":"greeter","version":"1.0.0","type":"builtin","suitabilityTags":["build"]}`
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.json"), []byte(manifest), 0o644))

	reg := NewAgentRegistry()
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	loader := NewPluginLoader(dir, reg, func(m PluginManifest) (agent.Handler, error) {
		return agent.EchoHandler, nil
	}, log)

	require.NoError(t, loader.LoadAll(context.Background()))

	got, err := reg.Get("plugin:greeter")
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, got.SuitabilityTags)
}

func TestPluginLoader_LoadAllOnMissingDirIsNoOp(t *testing.T) {
	reg := NewAgentRegistry()
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	loader := NewPluginLoader(filepath.Join(t.TempDir(), "missing"), reg, func(PluginManifest) (agent.Handler, error) {
		return agent.EchoHandler, nil
	}, log)

	assert.NoError(t, loader.LoadAll(context.Background()))
}
