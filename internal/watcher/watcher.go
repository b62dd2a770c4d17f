// Package watcher re-runs an analysis whenever the source tree changes.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"cdd/internal/files"
)

// ChangeType is the kind of change seen between two polls.
type ChangeType int

const (
	Created ChangeType = iota
	Modified
	Deleted
)

func (c ChangeType) String() string {
	switch c {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one file that differs from the previous poll.
type Change struct {
	Type ChangeType
	Path string
}

// Defaults for Config.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultDebounce     = 500 * time.Millisecond
)

// Config contains watcher configuration
type Config struct {
	Root    string
	Exclude []string
	// Extra are files outside the source set whose changes also trigger a
	// run, such as tsconfig.json or package.json.
	Extra        []string
	PollInterval time.Duration
	Debounce     time.Duration
}

// RunFunc is one analysis pass. ctx is cancelled when a newer change
// supersedes the run. changes is nil for the initial run.
type RunFunc func(ctx context.Context, changes []Change)

type fileState struct {
	size    int64
	modTime time.Time
}

// snapshot maps a path to its size and modification time.
type snapshot map[string]fileState

// Watcher polls a source tree and re-runs a RunFunc on change.
type Watcher struct {
	config Config
	logger *slog.Logger
}

// New creates a watcher, filling unset intervals with the defaults.
func New(config Config, logger *slog.Logger) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	return &Watcher{config: config, logger: logger}
}

// scan records the size and modification time of every source file under
// the root, plus the extra files that exist.
func (w *Watcher) scan() (snapshot, error) {
	sources, err := files.Collect(w.config.Root, w.config.Exclude)
	if err != nil {
		return nil, err
	}

	snap := make(snapshot, len(sources)+len(w.config.Extra))
	for _, p := range append(sources, w.config.Extra...) {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		snap[p] = fileState{size: info.Size(), modTime: info.ModTime()}
	}
	return snap, nil
}

// diff lists the changes from prev to next, ordered by path.
func diff(prev, next snapshot) []Change {
	var changes []Change
	for p, st := range next {
		old, ok := prev[p]
		switch {
		case !ok:
			changes = append(changes, Change{Type: Created, Path: p})
		case old.size != st.size || !old.modTime.Equal(st.modTime):
			changes = append(changes, Change{Type: Modified, Path: p})
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			changes = append(changes, Change{Type: Deleted, Path: p})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// Run calls run once, then again after every debounced batch of changes,
// cancelling the previous call first and waiting for it to return. Run
// blocks until ctx is done and returns nil; only a failing first snapshot
// is an error.
func (w *Watcher) Run(ctx context.Context, run RunFunc) error {
	prev, err := w.scan()
	if err != nil {
		return err
	}

	batches := make(chan []Change)
	debouncer := NewDebouncer(w.config.Debounce, func(changes []Change) {
		select {
		case batches <- changes:
		case <-ctx.Done():
		}
	})
	defer debouncer.Cancel()

	var (
		cancelRun context.CancelFunc
		done      chan struct{}
	)
	start := func(changes []Change) {
		if cancelRun != nil {
			cancelRun()
			<-done
		}
		runCtx, cancel := context.WithCancel(ctx)
		cancelRun, done = cancel, make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			run(runCtx, changes)
		}(done)
	}
	defer func() {
		if cancelRun != nil {
			cancelRun()
			<-done
		}
	}()

	w.logger.Info("Watching for changes", "root", w.config.Root, "interval", w.config.PollInterval)
	start(nil)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, err := w.scan()
			if err != nil {
				w.logger.Warn("Failed to scan source tree", "root", w.config.Root, "error", err)
				continue
			}
			if changes := diff(prev, next); len(changes) > 0 {
				w.logger.Debug("Detected changes", "count", len(changes))
				debouncer.Add(changes...)
			}
			prev = next
		case changes := <-batches:
			w.logger.Info("File change detected, re-running analysis", "changes", len(changes))
			start(changes)
		}
	}
}
