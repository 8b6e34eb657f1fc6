package refdata

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
)

const defaultWatchDebounce = 250 * time.Millisecond

// Watch re-imports path whenever it changes until ctx ends. The parent
// directory is watched so editors that replace the file are still seen.
// A failed import is logged and the previous tables stay in place.
func (i *Importer) Watch(ctx context.Context, path string, opts ImportOptions, onImport func(ImportResult, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errs.Wrapf(err, "resolve %s", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create watcher")
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errs.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "refdata.watch"),
		slog.String("path", abs),
	)
	logging.Info(logCtx, "watching catalog")

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	stopTimer := func() {
		if debounce != nil {
			debounce.Stop()
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			stopTimer()
			debounce = time.NewTimer(defaultWatchDebounce)
			fire = debounce.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(logCtx, "catalog watcher error", slog.Any("err", errs.Loggable(err)))
		case <-fire:
			fire = nil
			result, err := i.ImportFile(ctx, abs, opts)
			if err != nil {
				logging.Warn(logCtx, "catalog re-import failed", slog.Any("err", errs.Loggable(err)))
			}
			if onImport != nil {
				onImport(result, err)
			}
		}
	}
}
