package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Ingester ingests one upload for a user.
type Ingester interface {
	Ingest(ctx context.Context, userID string, up Upload) (*domain.Document, error)
}

// Watcher ingests PDFs dropped into <inbox>/<userID>/. Ingested files move to
// processed/ and rejected ones to failed/ inside the user's inbox.
type Watcher struct {
	logger   *observability.Logger
	ingester Ingester
	inboxDir string
	settle   time.Duration

	// OnResult, when set, is called after every attempted ingestion.
	OnResult func(userID string, res Result)

	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
}

// NewWatcher creates an inbox watcher. settle is how long a file must stay
// unchanged before it is ingested.
func NewWatcher(logger *observability.Logger, ingester Ingester, inboxDir string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Watcher{
		logger:   logger,
		ingester: ingester,
		inboxDir: inboxDir,
		settle:   settle,
		timers:   make(map[string]*time.Timer),
	}
}

// Run watches the inbox until ctx is cancelled. It may be called again after
// it returns, but not concurrently.
func (w *Watcher) Run(ctx context.Context) error {
	done := make(chan struct{})
	w.mu.Lock()
	w.done = done
	w.mu.Unlock()
	defer func() {
		w.stopTimers()
		close(done)
	}()

	if err := os.MkdirAll(w.inboxDir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.inboxDir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}

	ready := make(chan string, 100)

	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		userDir := filepath.Join(w.inboxDir, e.Name())
		if err := fsw.Add(userDir); err != nil {
			w.logger.Warn().Err(err).Str("dir", userDir).Msg("Failed to watch user inbox")
			continue
		}
		w.queueExisting(userDir, ready)
	}

	w.logger.Info().Str("inbox", w.inboxDir).Msg("Watching inbox for PDFs")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event, ready)

		case path := <-ready:
			w.process(ctx, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event, ready chan<- string) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	// A new directory directly under the inbox is a new user's inbox. It may
	// arrive already holding PDFs (mv, cp -r) that produce no events of their own.
	if filepath.Dir(event.Name) == filepath.Clean(w.inboxDir) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fsw.Add(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch user inbox")
				return
			}
			w.queueExisting(event.Name, ready)
		}
		return
	}

	if _, ok := w.userFor(event.Name); !ok {
		return
	}
	w.schedule(event.Name, ready)
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	done := w.done
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-done:
		}
	})
}

func (w *Watcher) queueExisting(userDir string, ready chan<- string) {
	entries, err := os.ReadDir(userDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		path := filepath.Join(userDir, e.Name())
		if _, ok := w.userFor(path); ok && !e.IsDir() {
			w.schedule(path, ready)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	userID, ok := w.userFor(path)
	if !ok {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Already moved or deleted.
		return
	}

	name := filepath.Base(path)
	doc, err := w.ingester.Ingest(ctx, userID, Upload{Name: name, Data: data})
	res := Result{Name: name, Document: doc, Err: err}

	dest := processedDir
	if err != nil {
		dest = failedDir
		w.logger.WithUser(userID).Warn().Err(err).Str("file", name).Msg("Inbox ingestion failed")
	} else {
		w.logger.WithUser(userID).Info().Str("file", name).Str("doc_id", doc.ID).Msg("Inbox file ingested")
	}

	if err := moveInto(path, filepath.Join(filepath.Dir(path), dest)); err != nil {
		w.logger.Warn().Err(err).Str("file", path).Msg("Failed to move inbox file")
	}

	if w.OnResult != nil {
		w.OnResult(userID, res)
	}
}

// userFor returns the owning user for a PDF directly inside a user inbox.
func (w *Watcher) userFor(path string) (string, bool) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", false
	}
	rel, err := filepath.Rel(w.inboxDir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || parts[0] == ".." {
		return "", false
	}
	return parts[0], true
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func moveInto(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
