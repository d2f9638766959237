// Package store implements the append-only JSONL persistence backend
// selected by StoreConfig.Backend == "jsonl" (spec §6, "Persisted state
// layout"): tasks.jsonl, audit.jsonl and replay.jsonl. It satisfies the
// Sink interfaces exposed by internal/task, internal/audit and
// internal/replay, and provides the startup loader that rehydrates each
// in-memory structure before the server starts accepting traffic.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/taskmesh/orchestrator/internal/audit"
	"github.com/taskmesh/orchestrator/internal/replay"
	"github.com/taskmesh/orchestrator/internal/task"
)

const (
	tasksFile   = "tasks.jsonl"
	auditFile   = "audit.jsonl"
	replayFile  = "replay.jsonl"
	dirFileMode = 0o755
	logFileMode = 0o644
)

// Writer appends every task, audit and replay mutation to its own JSONL
// file under dir. A single Writer implements all three Sink interfaces so
// one value can be wired into task.New, audit.Log.SetSink and
// replay.Store.SetSink.
type Writer struct {
	dir string

	taskMu  sync.Mutex
	auditMu sync.Mutex
	replMu  sync.Mutex
}

// Open ensures dir exists and returns a Writer rooted at it.
func Open(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: directory required")
	}
	if err := os.MkdirAll(dir, dirFileMode); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// AppendTask satisfies task.Sink.
func (w *Writer) AppendTask(rec task.Record) error {
	w.taskMu.Lock()
	defer w.taskMu.Unlock()
	return appendLine(filepath.Join(w.dir, tasksFile), rec)
}

// AppendAudit satisfies audit.Sink.
func (w *Writer) AppendAudit(e audit.Event) error {
	w.auditMu.Lock()
	defer w.auditMu.Unlock()
	return appendLine(filepath.Join(w.dir, auditFile), e)
}

// AppendReplay satisfies replay.Sink.
func (w *Writer) AppendReplay(e replay.Event) error {
	w.replMu.Lock()
	defer w.replMu.Unlock()
	return appendLine(filepath.Join(w.dir, replayFile), e)
}

func appendLine(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("store: append %s: %w", path, err)
	}
	return nil
}

// Load rehydrates taskStore, auditLog and replayStore from dir's JSONL
// files, if present. It is called once during startup, before the Writer
// is attached as each component's Sink, so records written during
// rehydration are not re-appended to the files they were just read from.
func Load(ctx context.Context, dir string, taskStore *task.Store, auditLog *audit.Log, replayStore *replay.Store, log *logrus.Logger) error {
	if err := loadLines(ctx, filepath.Join(dir, tasksFile), func(line []byte) error {
		var rec task.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		taskStore.Restore(rec)
		return nil
	}); err != nil {
		return fmt.Errorf("store: load tasks: %w", err)
	}

	if err := loadLines(ctx, filepath.Join(dir, auditFile), func(line []byte) error {
		var e audit.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		auditLog.Record(e)
		return nil
	}); err != nil {
		return fmt.Errorf("store: load audit log: %w", err)
	}

	if err := loadLines(ctx, filepath.Join(dir, replayFile), func(line []byte) error {
		var e replay.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		replayStore.Append(e)
		return nil
	}); err != nil {
		return fmt.Errorf("store: load replay log: %w", err)
	}

	if log != nil {
		log.WithField("dir", dir).Info("store: rehydrated from jsonl backend")
	}
	return nil
}

// loadLines scans path line by line, invoking fn for each. A missing file
// is not an error: the store has never been written to.
func loadLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := fn(cp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
