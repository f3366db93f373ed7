package folderledger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/booklet-evaluation/utils/fileutil"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher feeds filesystem changes under the ledger root into the Ledger.
// It watches the root and each first-level folder; deeper changes are
// ignored.
type Watcher struct {
	ledger   *Ledger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	due     chan string
}

func NewWatcher(ledger *Ledger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		ledger:   ledger,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		due:      make(chan string, 64),
	}
}

// Run watches until ctx is done. It rescans once after the watches are in
// place so changes made while the service was down are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	root := filepath.Clean(w.ledger.Root())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.watchDir(fw, filepath.Join(root, entry.Name()))
		}
	}

	if _, err := w.ledger.Rescan(ctx); err != nil {
		log.Errorf("[WATCHER] initial rescan failed: %v", err)
	}
	log.Infof("[WATCHER] watching %s", root)

	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			log.Info("[WATCHER] stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, root, ev)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Errorf("[WATCHER] %v", err)

		case name := <-w.due:
			if _, err := w.ledger.Sync(ctx, name); err != nil {
				log.Errorf("[WATCHER] failed to sync %s: %v", name, err)
			}
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, root string, ev fsnotify.Event) {
	parent := filepath.Dir(ev.Name)

	switch {
	case parent == root:
		// A subject folder itself.
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				w.watchDir(fw, ev.Name)
			} else {
				return
			}
		}
		if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.schedule(filepath.Base(ev.Name))
		}

	case filepath.Dir(parent) == root:
		// A file inside a subject folder.
		if !fileutil.IsPDF(ev.Name) {
			return
		}
		if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Write) {
			w.schedule(filepath.Base(parent))
		}
	}
}

func (w *Watcher) watchDir(fw *fsnotify.Watcher, dir string) {
	if err := fw.Add(dir); err != nil {
		log.Warnf("[WATCHER] failed to watch %s: %v", dir, err)
	}
}

// schedule coalesces bursts of events for one folder into a single sync.
func (w *Watcher) schedule(folderName string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[folderName]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[folderName] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, folderName)
		w.mu.Unlock()
		select {
		case w.due <- folderName:
		default:
			log.Warnf("[WATCHER] dropped sync of %s; the next rescan will pick it up", folderName)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
}
