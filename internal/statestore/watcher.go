// internal/statestore/watcher.go
package statestore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports out-of-band modifications of the state file. Operators
// sometimes edit the file directly; routing decisions based on a stale
// in-memory view are exactly the divergence this tool exists to prevent,
// so external edits are surfaced rather than silently absorbed.
type Watcher struct {
	path    string
	logger  *zap.Logger
	onEvent func(string)
	fw      *fsnotify.Watcher
}

// NewWatcher creates a watcher for the state file. onEvent receives the
// operation name for every external change.
func NewWatcher(path string, logger *zap.Logger, onEvent func(op string)) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("statestore: create watcher: %w", err)
	}

	// Watch the directory: atomic rename replaces the file inode, so a
	// watch on the file itself would be lost after the first write.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("statestore: watch %s: %w", path, err)
	}

	return &Watcher{path: path, logger: logger, onEvent: onEvent, fw: fw}, nil
}

// Run processes events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fw.Close() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Info("state file changed on disk",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()))
			if w.onEvent != nil {
				w.onEvent(event.Op.String())
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("state watcher error", zap.Error(err))
		}
	}
}
