// Package realtime rescans files as soon as they are created or modified.
//
// A Watcher registers an fsnotify subscription on every directory below its
// roots and runs one goroutine that consumes the events. The goroutine waits
// with a bounded tick so it never blocks forever, and stops when the watcher is
// stopped. Delete, rename and chmod events are ignored.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"wib-shield/internal/metrics"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// DefaultPollInterval bounds how long the worker waits for an event before it
// checks for shutdown again.
const DefaultPollInterval = 500 * time.Millisecond

// ErrNoPaths is returned by Start when there is nothing to watch.
var ErrNoPaths = errors.New("realtime: no paths to watch")

// Scanner is the part of the engine the watcher needs.
type Scanner interface {
	Scan(roots []string, opts types.ScanOptions) ([]types.Detection, error)
}

type Option func(*Watcher)

// WithLogger replaces the default logger.
func WithLogger(l logr.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// WithMetrics counts events on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// WithScanOptions overrides the options used for rescans.
func WithScanOptions(opts types.ScanOptions) Option {
	return func(w *Watcher) { w.scanOpts = opts }
}

type Watcher struct {
	fsw      *fsnotify.Watcher
	scanner  Scanner
	sink     chan<- types.Detection
	poll     time.Duration
	scanOpts types.ScanOptions
	log      logr.Logger
	metrics  *metrics.Metrics

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

/**
 * @Description: 启动实时监控。为每个根路径下的所有目录注册订阅，然后启动后台 goroutine
 * @param scanner Scanner: 扫描器
 * @param opts types.RealtimeOptions: 监控选项
 * @param sink chan<- types.Detection: 检测结果输出
 * @return *Watcher: 监控句柄，调用 Stop 停止
 * @return error: 订阅失败时返回，不会留下 goroutine
 */
func Start(scanner Scanner, opts types.RealtimeOptions, sink chan<- types.Detection, options ...Option) (*Watcher, error) {
	if len(opts.Paths) == 0 {
		return nil, ErrNoPaths
	}
	if scanner == nil || sink == nil {
		return nil, errors.New("realtime: scanner and sink are required")
	}

	w := &Watcher{
		scanner:  scanner,
		sink:     sink,
		poll:     opts.PollInterval,
		scanOpts: types.DefaultScanOptions(),
		log:      logging.Logr().WithName("realtime"),
		done:     make(chan struct{}),
	}
	for _, o := range options {
		o(w)
	}
	if w.poll <= 0 {
		w.poll = DefaultPollInterval
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("realtime: create watcher: %w", err)
	}
	w.fsw = fsw
	for _, root := range opts.Paths {
		if err := w.addRoot(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)

	w.log.Info("watching", "paths", opts.Paths, "watches", len(fsw.WatchList()))
	return w, nil
}

// Stop ends the subscription and waits for the worker to exit. A detection
// being sent when Stop is called may be dropped. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		<-w.done
		if err := w.fsw.Close(); err != nil {
			w.log.Error(err, "closing fsnotify watcher")
		}
		w.log.Info("stopped")
	})
}

// addRoot registers root and every directory below it. Failing to watch the
// root itself is fatal; subdirectories that cannot be watched are logged.
func (w *Watcher) addRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("realtime: watch %s: %w", root, err)
	}
	if err := w.fsw.Add(root); err != nil {
		return fmt.Errorf("realtime: watch %s: %w", root, err)
	}
	if info.IsDir() {
		w.addTree(root)
	}
	return nil
}

// addTree watches every directory strictly below dir. Symlinked directories
// are not followed.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.V(1).Info("skipping", "path", path, "error", err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == dir {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.V(1).Info("cannot watch directory", "path", path, "error", err.Error())
			return filepath.SkipDir
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	tick := time.NewTicker(w.poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "watch error")
		case <-tick.C:
		}
	}
}

// handle scans the paths touched by ev and by every event already queued
// behind it, then forwards the detections.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	pending := make(map[string]struct{})
	w.collect(ev, pending)

drain:
	for {
		select {
		case next, ok := <-w.fsw.Events:
			if !ok {
				break drain
			}
			w.collect(next, pending)
		default:
			break drain
		}
	}
	if len(pending) == 0 || ctx.Err() != nil {
		return
	}

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	detections, err := w.scanner.Scan(paths, w.scanOpts)
	if err != nil {
		w.log.Error(err, "rescan failed", "paths", paths)
		return
	}
	w.log.V(1).Info("rescanned", "paths", len(paths), "detections", len(detections))
	for _, d := range detections {
		select {
		case w.sink <- d:
		case <-ctx.Done():
			return
		}
	}
}

// collect adds the path of a create or write event to pending. A newly
// created directory is put under watch and scanned as a whole, since files may
// land in it before its watch is registered.
func (w *Watcher) collect(ev fsnotify.Event, pending map[string]struct{}) {
	w.metrics.WatcherEvent(opLabel(ev.Op))
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.log.V(1).Info("cannot watch new directory", "path", ev.Name, "error", err.Error())
			}
			w.addTree(ev.Name)
		}
	}
	pending[ev.Name] = struct{}{}
}

func opLabel(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "other"
	}
}
