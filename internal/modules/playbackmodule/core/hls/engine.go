package hls

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// maxRefreshFailures is how many consecutive live-refresh failures are
// tolerated before the engine declares a fatal error.
const maxRefreshFailures = 3

// defaultRefreshInterval is used when a live playlist carries no target
// duration.
const defaultRefreshInterval = 6 * time.Second

// Fetcher retrieves playlist text. Satisfied by the transport client.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Callbacks are the engine's signals to its session. OnManifestParsed fires
// once after the first successful parse; OnFatalError at most once after it.
type Callbacks struct {
	OnManifestParsed func(manifest *Manifest)
	OnFatalError     func(err error)
}

// Engine drives one manifest URL: it fetches and parses the playlist,
// follows a master playlist to its best variant, and keeps live playlists
// refreshed. Non-fatal refresh errors are logged and tolerated until they
// run consecutive.
type Engine struct {
	fetcher   Fetcher
	logger    hclog.Logger
	callbacks Callbacks

	mu        sync.Mutex
	mediaURL  string
	manifest  *Manifest
	cancel    context.CancelFunc
	destroyed bool
	fatal     bool
}

// NewEngine creates an engine for one attach.
func NewEngine(fetcher Fetcher, callbacks Callbacks, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{
		fetcher:   fetcher,
		callbacks: callbacks,
		logger:    logger.Named("hls"),
	}
}

// Attach loads the manifest at manifestURL. It blocks until the first parse
// completes (or fails), then keeps live playlists refreshed in the
// background. The first parse failing is fatal to the attach.
func (e *Engine) Attach(ctx context.Context, manifestURL string) error {
	playlist, err := e.fetcher.FetchText(ctx, manifestURL)
	if err != nil {
		return fmt.Errorf("failed to fetch manifest: %w", err)
	}

	mediaURL := manifestURL
	if IsMasterPlaylist(playlist) {
		variants, err := ParseMasterPlaylist(playlist)
		if err != nil {
			return fmt.Errorf("failed to parse master playlist: %w", err)
		}
		best := SelectVariant(variants)
		e.logger.Debug("selected variant", "bandwidth", best.Bandwidth, "resolution", best.Resolution)

		mediaURL, err = ResolveURI(manifestURL, best.URI)
		if err != nil {
			return err
		}
		playlist, err = e.fetcher.FetchText(ctx, mediaURL)
		if err != nil {
			return fmt.Errorf("failed to fetch variant playlist: %w", err)
		}
	}

	manifest, err := ParseMediaPlaylist(playlist)
	if err != nil {
		return fmt.Errorf("failed to parse media playlist: %w", err)
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return fmt.Errorf("engine destroyed during attach")
	}
	e.mediaURL = mediaURL
	e.manifest = manifest

	var refreshCtx context.Context
	if !manifest.IsVOD {
		refreshCtx, e.cancel = context.WithCancel(context.Background())
	}
	e.mu.Unlock()

	e.logger.Info("manifest parsed",
		"url", mediaURL,
		"vod", manifest.IsVOD,
		"segments", manifest.SegmentCount,
		"duration", manifest.TotalDuration)

	if e.callbacks.OnManifestParsed != nil {
		e.callbacks.OnManifestParsed(manifest)
	}

	if refreshCtx != nil {
		go e.refreshLoop(refreshCtx)
	}
	return nil
}

func (e *Engine) refreshLoop(ctx context.Context) {
	interval := defaultRefreshInterval
	e.mu.Lock()
	if e.manifest != nil && e.manifest.TargetDuration > 0 {
		interval = e.manifest.TargetDuration
	}
	url := e.mediaURL
	e.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		playlist, err := e.fetcher.FetchText(ctx, url)
		var manifest *Manifest
		if err == nil {
			manifest, err = ParseMediaPlaylist(playlist)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			e.logger.Warn("playlist refresh failed", "url", url, "attempt", failures, "error", err)
			if failures >= maxRefreshFailures {
				e.fail(fmt.Errorf("playlist refresh failed %d times in a row: %w", failures, err))
				return
			}
			continue
		}
		failures = 0

		e.mu.Lock()
		e.manifest = manifest
		e.mu.Unlock()

		if manifest.IsVOD {
			// The stream ended; nothing further to refresh.
			e.logger.Info("live playlist reached end of stream", "url", url)
			return
		}
	}
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.fatal || e.destroyed {
		e.mu.Unlock()
		return
	}
	e.fatal = true
	e.mu.Unlock()

	e.logger.Error("fatal streaming error", "error", err)
	if e.callbacks.OnFatalError != nil {
		e.callbacks.OnFatalError(err)
	}
}

// Manifest returns the most recent parsed manifest, nil before attach.
func (e *Engine) Manifest() *Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manifest
}

// Destroy stops the refresh loop. Returns an error on double destroy so the
// caller's swallow-and-log path is exercised honestly.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return fmt.Errorf("engine already destroyed")
	}
	e.destroyed = true
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}
