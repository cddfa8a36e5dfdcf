package characters

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ashureev/persona-relay/internal/domain"
	"github.com/fsnotify/fsnotify"
)

// CharacterSink persists characters.
type CharacterSink interface {
	UpsertCharacter(ctx context.Context, c *domain.Character) error
}

// Seed writes chars to sink, stamping UpdatedAt.
func Seed(ctx context.Context, sink CharacterSink, chars []domain.Character) error {
	now := time.Now()
	for i := range chars {
		ch := chars[i]
		ch.UpdatedAt = now
		if err := sink.UpsertCharacter(ctx, &ch); err != nil {
			return fmt.Errorf("seed character %q: %w", ch.ID, err)
		}
	}
	return nil
}

const reloadDebounce = 100 * time.Millisecond

// Watch reloads the catalog file at path whenever it changes, replacing the
// catalog contents and re-seeding sink (which may be nil). It blocks until
// ctx is cancelled. A file that fails to parse is logged and ignored so the
// previous catalog stays in effect.
func Watch(ctx context.Context, path string, catalog *Catalog, sink CharacterSink, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Warn("failed to close catalog watcher", "error", closeErr)
		}
	}()

	// Editors often replace files via rename, so watch the directory.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	reload := func() {
		chars, err := LoadFile(path)
		if err != nil {
			logger.Error("character catalog reload failed", "path", path, "error", err)
			return
		}
		catalog.Replace(chars)
		if sink != nil {
			if err := Seed(ctx, sink, chars); err != nil {
				logger.Error("character catalog seed failed", "path", path, "error", err)
				return
			}
		}
		logger.Info("character catalog reloaded", "path", path, "count", len(chars))
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("character catalog watch error", "error", err)
		}
	}
}
