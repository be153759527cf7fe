package docset

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long a shard file must be quiet before it is read,
// so partially written files are not submitted.
const watchDebounce = 200 * time.Millisecond

// Watch submits shard files that appear or change under dir until ctx is
// done. Files already present are not submitted; call LoadShards first. A
// rewritten file is submitted again and its entries are added again.
// onSubmit, when non-nil, is called after each file is submitted.
func (s *Set) Watch(ctx context.Context, dir string, onSubmit func(path string, r Report)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, dir); err != nil {
		return err
	}
	slog.Info("watching implementor shards", "dir", dir)

	d := newDebouncer(watchDebounce, func(path string) {
		r := s.SubmitShardFile(path)
		slog.Debug("submitted watched shard", "path", path, "shards", r.Shards, "errors", len(r.Errors))
		if onSubmit != nil {
			onSubmit(path, r)
		}
	})
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := addRecursive(watcher, event.Name); err != nil {
					slog.Warn("failed to watch directory", "dir", event.Name, "error", err)
				}
				continue
			}
			if !IsShardFile(event.Name) {
				continue
			}

			d.trigger(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("shard watcher error", "error", err)
		}
	}
}

// debouncer calls fire for a path once triggers for it have been quiet for
// delay.
type debouncer struct {
	delay time.Duration
	fire  func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration, fire func(path string)) *debouncer {
	return &debouncer{delay: delay, fire: fire, pending: make(map[string]*time.Timer)}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggerLocked(path)
}

func (d *debouncer) triggerLocked(path string) {
	if t, ok := d.pending[path]; ok && t.Stop() {
		t.Reset(d.delay)
		return
	}
	// Either nothing is pending or the timer already fired; a fired timer
	// belongs to its expire call and is never re-armed.
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() { d.expire(path, &t) })
	d.pending[path] = t
}

// expire takes the timer by reference; it is only read under mu, after
// triggerLocked has stored it.
func (d *debouncer) expire(path string, t **time.Timer) {
	defer d.wg.Done()
	d.mu.Lock()
	if d.pending[path] == *t {
		delete(d.pending, path)
	}
	d.mu.Unlock()
	d.fire(path)
}

// stop cancels pending timers and waits for running fire calls.
func (d *debouncer) stop() {
	d.mu.Lock()
	for path, t := range d.pending {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.pending, path)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}
