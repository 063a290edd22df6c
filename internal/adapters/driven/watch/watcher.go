// Package watch nudges the poll loop when the session log tree changes,
// so new lines surface without waiting out the full poll interval. It is an
// accelerator only: the loop still polls on its fixed cadence and misses
// nothing if events are dropped.
package watch

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/chattail-cli/internal/logger"
)

// Watcher coalesces filesystem events under a root directory into a single
// wake channel.
type Watcher struct {
	fsw  *fsnotify.Watcher
	wake chan struct{}
	done chan struct{}
}

// New starts watching root and its current subdirectories. Directories
// created later are added as their create events arrive.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:  fsw,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Wake returns the channel that fires when something under the root
// changed. Events are coalesced; a receive means "at least one change".
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

// addTree registers root and every directory below it, using an explicit
// stack like the connector's traversal.
func (w *Watcher) addTree(root string) error {
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := w.fsw.Add(dir); err != nil {
			if dir == root {
				return err
			}
			logger.Debug("watch: cannot add %s: %v", dir, err)
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				stack = append(stack, filepath.Join(dir, entry.Name()))
			}
		}
	}
	return nil
}

// run forwards events into the coalesced wake channel.
func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				// New directories must be watched too.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						logger.Debug("watch: cannot add %s: %v", event.Name, err)
					}
				}
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				select {
				case w.wake <- struct{}{}:
				default:
					// A wake is already pending.
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Debug("watch: %v", err)
		}
	}
}
