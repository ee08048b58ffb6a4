package content

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultQuiet = 2 * time.Second

// Watcher reports changes to the set of PDFs in the content directory. Bursts
// of events collapse into one callback once the directory has been quiet.
type Watcher struct {
	dir      string
	quiet    time.Duration
	onChange func(ctx context.Context)
}

func NewWatcher(dir string, quiet time.Duration, onChange func(ctx context.Context)) *Watcher {
	if quiet <= 0 {
		quiet = defaultQuiet
	}
	return &Watcher{dir: dir, quiet: quiet, onChange: onChange}
}

// Relevant reports whether ev can change which documents have content.
// Plain writes do not add or remove a file.
func Relevant(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".pdf") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// Run watches until ctx is done. The directory must exist.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	slog.InfoContext(ctx, "watching content directory", "dir", w.dir)
	return w.loop(ctx, fw.Events, fw.Errors)
}

func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	timer := time.NewTimer(w.quiet)
	timer.Stop()
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !Relevant(ev) {
				continue
			}
			slog.DebugContext(ctx, "content changed", "path", ev.Name, "op", ev.Op.String())
			pending = true
			timer.Reset(w.quiet)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "content watcher error", "error", err)
		case <-timer.C:
			if pending {
				pending = false
				w.onChange(ctx)
			}
		}
	}
}
