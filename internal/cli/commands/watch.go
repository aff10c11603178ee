package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long the watcher waits for a burst of events to end.
const watchDebounce = 500 * time.Millisecond

// runWatch builds once and rebuilds after every relevant change until ctx is
// cancelled or the process is interrupted. Build failures are reported and
// do not stop the watch.
func runWatch(ctx context.Context, cmdCtx *CommandContext, opts *RunOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if err := cfg.ValidateRawDir(); err != nil {
		return err
	}

	build := func(ctx context.Context) error {
		if err := runBuild(ctx, cmdCtx, opts); err != nil {
			r.Error(err.Error())
		}
		// Later builds reuse the identities the first one saved.
		opts.Fresh = false
		return nil
	}
	if err := build(ctx); err != nil {
		return err
	}

	paths := []string{cfg.RawDir}
	if cfg.LookupsFile != "" {
		paths = append(paths, cfg.LookupsFile)
	}
	r.Muted(fmt.Sprintf("Watching %s for changes. Press Ctrl+C to stop.", strings.Join(paths, ", ")))

	return watchSources(ctx, cfg.RawDir, cfg.LookupsFile, watchDebounce, cmdCtx.Logger, build)
}

// watchSources calls rebuild after workbooks in rawDir or the lookups file
// change. Events are debounced; rebuilds never overlap. It returns nil when
// ctx is done.
func watchSources(ctx context.Context, rawDir, lookupsFile string, debounce time.Duration, logger *slog.Logger, rebuild func(context.Context) error) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(rawDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", rawDir, err)
	}
	// Editors replace files on save, so the lookups file is watched through
	// its directory.
	if lookupsFile != "" {
		if dir := filepath.Dir(lookupsFile); dir != filepath.Clean(rawDir) {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
		}
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !relevantChange(event.Name, rawDir, lookupsFile) {
				continue
			}
			logger.Debug("source changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)

		case <-timer.C:
			logger.Info("rebuilding after change")
			if err := rebuild(ctx); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

// relevantChange reports whether a changed path is a workbook in rawDir or
// the lookups file.
func relevantChange(path, rawDir, lookupsFile string) bool {
	if lookupsFile != "" && filepath.Clean(path) == filepath.Clean(lookupsFile) {
		return true
	}
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(rawDir) {
		return false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".xlsx", ".xls", ".csv":
		return true
	}
	return false
}
