package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/taskmesh/orchestrator/internal/agent"
)

// PluginManifest is the expected shape of a `plugin.json` file sitting
// next to a compiled agent plugin's metadata (spec §4.10): the loader
// reads it to decide whether a directory's contents have changed version
// since the last registration.
type PluginManifest struct {
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	Type            string   `json:"type"`
	SuitabilityTags []string `json:"suitabilityTags"`
}

// Builder constructs the runnable agent.Handler for a loaded manifest.
// Built-in agent types (echo, delay, http-request, ...) are registered
// through this hook; the plugin loader itself only resolves metadata and
// dedupes versions, matching the teacher's skills.Loader split between
// file discovery and content interpretation.
type Builder func(PluginManifest) (agent.Handler, error)

// PluginLoader discovers `plugin.json` manifests under a root directory
// and registers one `plugin:<name>` agent per manifest into an
// AgentRegistry, skipping manifests whose version was already registered
// (spec §4.10's idempotent reload contract).
type PluginLoader struct {
	dir      string
	registry *AgentRegistry
	build    Builder
	log      *logrus.Logger
}

// NewPluginLoader constructs a loader reading manifests from dir.
func NewPluginLoader(dir string, registry *AgentRegistry, build Builder, log *logrus.Logger) *PluginLoader {
	return &PluginLoader{dir: dir, registry: registry, build: build, log: log}
}

// LoadAll scans dir for `plugin.json` files and registers each one,
// logging but not failing on a single bad manifest.
func (l *PluginLoader) LoadAll(ctx context.Context) error {
	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return nil
	}

	return filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Base(path) != "plugin.json" {
			return nil
		}
		if loadErr := l.loadFile(path); loadErr != nil {
			l.log.WithError(loadErr).WithField("path", path).Warn("failed to load agent plugin manifest")
		}
		return nil
	})
}

func (l *PluginLoader) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var manifest PluginManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if manifest.Name == "" || manifest.Version == "" {
		return fmt.Errorf("manifest %s missing name/version", path)
	}

	handler, err := l.build(manifest)
	if err != nil {
		return fmt.Errorf("build handler for %s: %w", manifest.Name, err)
	}

	id := "plugin:" + manifest.Name
	a := agent.New(id, manifest.Name, manifest.Type, handler).WithTags(manifest.SuitabilityTags...)
	if err := l.registry.Register(a, manifest.Version); err != nil {
		if err == ErrAlreadyRegistered {
			return nil
		}
		return err
	}
	l.log.WithFields(logrus.Fields{"agent_id": id, "version": manifest.Version}).Info("registered agent plugin")
	return nil
}
