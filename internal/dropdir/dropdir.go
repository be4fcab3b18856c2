// Package dropdir turns a directory into an inbox of stems: audio files
// that appear in it are reported once their writes settle, files that
// disappear are reported as removed.
package dropdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultSettle = 500 * time.Millisecond

type Handler struct {
	Added   func(path string)
	Removed func(path string)
}

type Options struct {
	// Match filters paths; nil accepts every regular file.
	Match func(path string) bool
	// Settle is how long a file must stay unwritten before it is reported.
	Settle time.Duration
	Log    *zap.Logger
}

type Watcher struct {
	dir     string
	opts    Options
	h       Handler
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	done    chan struct{}
}

// Watch reports the matching files already in dir through h.Added and
// then follows the directory until Close.
func Watch(dir string, h Handler, opts Options) (*Watcher, error) {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:     dir,
		opts:    opts,
		h:       h,
		watcher: fw,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}
	w.scan()
	go w.loop()
	opts.Log.Info("watching drop folder", zap.String("dir", dir))
	return w, nil
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.opts.Log.Warn("scan drop folder", zap.Error(err))
		return
	}
	var paths []string
	for _, e := range entries {
		p := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.match(p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		if w.h.Added != nil {
			w.h.Added(p)
		}
	}
}

func (w *Watcher) match(path string) bool {
	return w.opts.Match == nil || w.opts.Match(path)
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.match(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.touch(ev.Name)
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.remove(ev.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.opts.Log.Warn("drop folder watcher error", zap.Error(err))
		}
	}
}

// touch (re)arms the settle timer for path.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, found := w.pending[path]; found {
		t.Reset(w.opts.Settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.opts.Settle, func() { w.settled(path) })
}

func (w *Watcher) settled(path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	w.opts.Log.Debug("drop folder file ready", zap.String("path", path))
	if w.h.Added != nil {
		w.h.Added(path)
	}
}

func (w *Watcher) remove(path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if t, found := w.pending[path]; found {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if w.h.Removed != nil {
		w.h.Removed(path)
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}
