package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/lumetube/lume/internal/client"
	"github.com/lumetube/lume/internal/utils"
)

// submitRetryInterval paces re-submission attempts while the controller is
// busy with another upload.
const submitRetryInterval = 2 * time.Second

// maxSubmitAttempts bounds how long a watched file waits for its turn.
const maxSubmitAttempts = 150

// Submitter accepts upload submissions. Satisfied by *Controller.
type Submitter interface {
	Submit(sub Submission) error
}

// WatcherConfig configures watch-folder auto-upload.
type WatcherConfig struct {
	Directories []string
	Visibility  string
	// SettleDelay is how long a file must stay quiet before it is
	// considered fully written.
	SettleDelay time.Duration
}

// Watcher watches directories for dropped media files and submits them as
// uploads. Titles come from embedded metadata when the file carries any,
// otherwise from the file name. Writes are debounced per file so a file is
// only picked up after it settles.
type Watcher struct {
	config    WatcherConfig
	submitter Submitter
	pool      *utils.WorkerPool
	governor  *LoadGovernor
	logger    hclog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	closed  bool
}

// NewWatcher creates a watch-folder watcher. The governor is optional; when
// present it sizes the processing pool.
func NewWatcher(config WatcherConfig, submitter Submitter, governor *LoadGovernor, logger hclog.Logger) *Watcher {
	if config.SettleDelay <= 0 {
		config.SettleDelay = 2 * time.Second
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Watcher{
		config:    config,
		submitter: submitter,
		governor:  governor,
		logger:    logger.Named("watcher"),
		pending:   make(map[string]*time.Timer),
	}
}

// Start begins watching the configured directories. Missing directories are
// skipped with a warning.
func (w *Watcher) Start() error {
	if len(w.config.Directories) == 0 {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	watched := 0
	for _, dir := range w.config.Directories {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory", "dir", dir, "error", err)
			continue
		}
		watched++
		w.logger.Info("watching directory", "dir", dir)
	}
	if watched == 0 {
		fsw.Close()
		return fmt.Errorf("no watchable directories configured")
	}

	workers := 1
	if w.governor != nil {
		workers = w.governor.Recommend()
	}
	w.pool = utils.NewWorkerPool(workers)
	w.pool.Start()

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	go w.loop(fsw)
	return nil
}

// Stop halts watching and the processing pool. Idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	fsw := w.fsw
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if fsw != nil {
		fsw.Close()
	}
	if w.pool != nil {
		w.pool.Stop()
	}
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !utils.IsMediaFile(event.Name) {
				continue
			}
			w.debounce(event.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// debounce (re)arms the settle timer for a path.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.config.SettleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(w.config.SettleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		if !w.pool.Submit(func() { w.process(path) }) {
			w.logger.Warn("processing queue full, dropping file", "path", path)
		}
	})
}

func (w *Watcher) process(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	meta := client.Metadata{
		Title:      w.probeTitle(path),
		Visibility: w.config.Visibility,
	}

	for attempt := 0; attempt < maxSubmitAttempts; attempt++ {
		file, err := os.Open(path)
		if err != nil {
			w.logger.Warn("cannot open watched file", "path", path, "error", err)
			return
		}

		err = w.submitter.Submit(Submission{
			Files: []client.FileInput{{
				Name:   filepath.Base(path),
				Size:   info.Size(),
				Reader: file,
			}},
			Metadata: meta,
		})
		if err == nil {
			w.logger.Info("submitted watched file", "path", path, "title", meta.Title)
			return
		}
		file.Close()

		// The controller is single-flight; wait for the current upload.
		w.logger.Debug("submission deferred", "path", path, "error", err)
		time.Sleep(submitRetryInterval)
	}
	w.logger.Warn("giving up on watched file", "path", path)
}

// probeTitle reads embedded metadata for a title, preferring tags over the
// file name. Audio files with artist tags get "Artist - Title".
func (w *Watcher) probeTitle(path string) string {
	fallback := utils.TitleFromFilename(filepath.Base(path))

	file, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil || meta.Title() == "" {
		return fallback
	}
	if utils.IsAudioFile(path) && meta.Artist() != "" {
		return meta.Artist() + " - " + meta.Title()
	}
	return meta.Title()
}
