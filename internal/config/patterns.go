package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// PatternTable hot-reloads the extractor's line-pollution-pattern list
// from a JSON file (a bare array of strings) without requiring a
// process restart: the pattern list is a pure data table, and
// adding or removing a pattern is a config change, not a code change.
type PatternTable struct {
	patterns atomic.Pointer[[]string]
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewPatternTable loads path once and starts watching it for changes.
// If path is empty, the table stays permanently at its fallback value
// and no watcher is started.
func NewPatternTable(path string, fallback []string, logger *slog.Logger) (*PatternTable, error) {
	pt := &PatternTable{logger: logger}
	pt.patterns.Store(&fallback)

	if path == "" {
		return pt, nil
	}

	if err := pt.reload(path); err != nil {
		logger.Warn("failed to load initial pollution pattern file, using fallback", "path", path, "error", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: failed to start pattern file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: failed to watch %s: %w", path, err)
	}
	pt.watcher = watcher

	go pt.watchLoop(path)
	return pt, nil
}

func (pt *PatternTable) watchLoop(path string) {
	for {
		select {
		case event, ok := <-pt.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := pt.reload(path); err != nil {
				pt.logger.Warn("failed to reload pollution pattern file, keeping previous table", "path", path, "error", err)
			} else {
				pt.logger.Info("reloaded pollution pattern table", "path", path)
			}
		case err, ok := <-pt.watcher.Errors:
			if !ok {
				return
			}
			pt.logger.Warn("pattern file watcher error", "error", err)
		}
	}
}

func (pt *PatternTable) reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var patterns []string
	if err := json.Unmarshal(data, &patterns); err != nil {
		return fmt.Errorf("config: malformed pollution pattern file: %w", err)
	}
	pt.patterns.Store(&patterns)
	return nil
}

// Patterns returns the current pattern list.
func (pt *PatternTable) Patterns() []string {
	return *pt.patterns.Load()
}

// Close stops the watcher, if one was started.
func (pt *PatternTable) Close() error {
	if pt.watcher == nil {
		return nil
	}
	return pt.watcher.Close()
}
