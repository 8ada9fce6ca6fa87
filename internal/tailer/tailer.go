// Package tailer watches a set of root directories for append-only
// line-delimited session logs and emits ordered batches of newly parsed
// entries per file, coalescing rapid filesystem events through a
// per-file debounce.
package tailer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/entry"
	"github.com/fsnotify/fsnotify"
)

type Signal string

const (
	SignalAdd    Signal = "add"
	SignalChange Signal = "change"
	SignalUnlink Signal = "unlink"
)

// Batch is one quiescent-interval delivery for a single file.
type Batch struct {
	Path      string
	Signal    Signal
	Entries   []*entry.RawEntry
	NewOffset int64
	Err       error
}

// Config controls the watch suffix/prefix conventions and debounce
// window. Defaults match §4.1 of the specification.
type Config struct {
	Suffix           string        // e.g. ".jsonl"
	SubSessionPrefix string        // filenames with this prefix mark subagent transcripts; still tailed, but the registry folds their entries into the parent session rather than registering a second one
	Debounce         time.Duration // 200-300ms
	MaxDepth         int           // recursive watch depth, default 2
}

func DefaultConfig() Config {
	return Config{
		Suffix:           ".jsonl",
		SubSessionPrefix: "subagent-",
		Debounce:         250 * time.Millisecond,
		MaxDepth:         2,
	}
}

// Tailer watches roots and emits Batch values on Out(). Offsets are
// tracked per path in-process; Tailer never blocks file I/O while
// holding its internal lock.
type Tailer struct {
	cfg     Config
	watcher *fsnotify.Watcher
	out     chan Batch

	mu      sync.Mutex
	offsets map[string]int64
	timers  map[string]*time.Timer
}

func New(cfg Config) (*Tailer, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Tailer{
		cfg:     cfg,
		watcher: w,
		out:     make(chan Batch, 256),
		offsets: make(map[string]int64),
		timers:  make(map[string]*time.Timer),
	}, nil
}

func (t *Tailer) Out() <-chan Batch { return t.out }

// Offset returns the last known byte offset for path.
func (t *Tailer) Offset(path string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offsets[path]
}

// SeedOffset pre-populates a path's offset without emitting a batch, so
// the next read of path resumes there rather than re-reading from zero.
func (t *Tailer) SeedOffset(path string, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offsets[path] = offset
}

// Watch adds root (and its subdirectories up to cfg.MaxDepth) to the
// watch set and performs an initial scan, emitting an "add" batch for
// every matching file already present.
func (t *Tailer) Watch(root string) error {
	if err := t.addDirs(root, 0); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if t.matches(path) {
			t.scheduleRead(path, SignalAdd)
		}
		return nil
	})
}

func (t *Tailer) addDirs(root string, depth int) error {
	if depth > t.cfg.MaxDepth {
		return nil
	}
	if err := t.watcher.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = t.addDirs(filepath.Join(root, e.Name()), depth+1)
		}
	}
	return nil
}

func (t *Tailer) matches(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, t.cfg.Suffix)
}

// IsSubSession reports whether path names a subagent transcript per the
// configured prefix convention. The registry does not use it: it folds
// a transcript into its parent by the lines' parentToolUseId instead.
func (t *Tailer) IsSubSession(path string) bool {
	if t.cfg.SubSessionPrefix == "" {
		return false
	}
	return strings.HasPrefix(filepath.Base(path), t.cfg.SubSessionPrefix)
}

// Run drains fsnotify events until ctx is cancelled.
func (t *Tailer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			t.watcher.Close()
			close(t.out)
			return
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handleEvent(ev)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[tailer] watch error: %v", err)
		}
	}
}

func (t *Tailer) handleEvent(ev fsnotify.Event) {
	if !t.matches(ev.Name) {
		if ev.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				_ = t.addDirs(ev.Name, 1)
			}
		}
		return
	}

	switch {
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		t.cancelDebounce(ev.Name)
		t.mu.Lock()
		delete(t.offsets, ev.Name)
		t.mu.Unlock()
		t.out <- Batch{Path: ev.Name, Signal: SignalUnlink}
	case ev.Op&fsnotify.Create != 0:
		t.debounce(ev.Name, SignalAdd)
	case ev.Op&fsnotify.Write != 0:
		t.debounce(ev.Name, SignalChange)
	}
}

// debounce restarts the per-file timer; the second event within the
// debounce window discards the prior callback so only one read fires
// per quiescent interval.
func (t *Tailer) debounce(path string, sig Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[path]; ok {
		timer.Stop()
	}
	t.timers[path] = time.AfterFunc(t.cfg.Debounce, func() {
		t.scheduleRead(path, sig)
	})
}

func (t *Tailer) cancelDebounce(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[path]; ok {
		timer.Stop()
		delete(t.timers, path)
	}
}

func (t *Tailer) scheduleRead(path string, sig Signal) {
	t.mu.Lock()
	offset := t.offsets[path]
	t.mu.Unlock()

	entries, newOffset, err := ReadDelta(path, offset, func(perr error) {
		log.Printf("[tailer] malformed line in %s: %v", path, perr)
	})
	if err != nil {
		t.out <- Batch{Path: path, Signal: sig, Err: err}
		return
	}

	t.mu.Lock()
	t.offsets[path] = newOffset
	t.mu.Unlock()

	t.out <- Batch{Path: path, Signal: sig, Entries: entries, NewOffset: newOffset}
}
