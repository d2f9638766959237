//go:build pluginwatch

package registry

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch starts a filesystem watcher over the loader's plugin directory,
// reloading the named manifest via loadFile on every event whose file is
// `plugin.json`, so a plugin can be updated without restarting the server
// (spec §4.10). Only the directory itself is watched, not its
// subdirectories, so manifests kept in per-plugin subdirectories do not
// trigger a reload. Only
// built when the pluginwatch tag is set — the default build carries no
// fsnotify dependency at runtime, matching the teacher's own config
// hot-reload watcher being opt-in.
func (l *PluginLoader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != "plugin.json" {
					continue
				}
				if err := l.loadFile(event.Name); err != nil {
					l.log.WithError(err).WithField("path", event.Name).Warn("failed to reload agent plugin manifest")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.WithError(err).Warn("plugin watcher error")
			}
		}
	}()

	return nil
}
