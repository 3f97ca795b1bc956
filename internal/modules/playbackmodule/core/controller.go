package core

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lumetube/lume/internal/modules/playbackmodule/core/hls"
)

// progressRecordInterval throttles history progress writes.
const progressRecordInterval = 5 * time.Second

// HistoryRecorder persists session lifecycle for the history API. All
// methods are best-effort; failures never surface to playback.
type HistoryRecorder interface {
	RecordStart(snap Snapshot)
	RecordProgress(snap Snapshot)
	RecordEnd(snap Snapshot, reason EndReason)
}

// DurationProber resolves the duration of a directly-assigned source.
type DurationProber func(ctx context.Context, sourceURL string) (float64, error)

// ControllerOptions wires a Controller's collaborators.
type ControllerOptions struct {
	Environment Environment
	Fetcher     hls.Fetcher
	Surface     ControlSurface
	History     HistoryRecorder
	Prober      DurationProber
	Logger      hclog.Logger
}

// Controller owns mount points. Each mount holds at most one session; any
// option change re-establishes the session from scratch, tearing the old
// one down first. A per-mount generation counter invalidates in-flight
// initializations: every continuation after a suspension point re-checks it
// and abandons its side effects when stale.
type Controller struct {
	env     Environment
	fetcher hls.Fetcher
	surface ControlSurface
	history HistoryRecorder
	prober  DurationProber
	logger  hclog.Logger

	mu     sync.Mutex
	mounts map[string]*mountState
}

type mountState struct {
	generation uint64
	session    *PlaybackSession
}

// NewController creates a playback controller.
func NewController(opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	surface := opts.Surface
	if surface == nil {
		surface = NewDefaultSurface()
	}
	return &Controller{
		env:     opts.Environment,
		fetcher: opts.Fetcher,
		surface: surface,
		history: opts.History,
		prober:  opts.Prober,
		logger:  logger.Named("playback"),
		mounts:  make(map[string]*mountState),
	}
}

// Load establishes a session on a mount point, replacing whatever was
// there. It returns once the session is constructed; readiness arrives
// through the state machine (manifest-parsed for segmented streams, the
// surface's ready signal for direct playback).
func (c *Controller) Load(ctx context.Context, mount string, opts SourceOptions, listeners ElementListeners) (*PlaybackSession, error) {
	c.mu.Lock()
	ms, ok := c.mounts[mount]
	if !ok {
		ms = &mountState{}
		c.mounts[mount] = ms
	}
	ms.generation++
	generation := ms.generation
	previous := ms.session

	session := newSession(mount, opts, generation, c.logger)
	session.Pipeline = ClassifyPipeline(opts.SourceURL, c.env)
	ms.session = session
	c.mu.Unlock()

	if previous != nil {
		c.endSession(previous, EndReplaced)
	}

	element := NewElement(opts.MediaKind, opts.SourceURL, opts.PosterURL, c.env.TickInterval)
	element.SetListeners(c.wrapListeners(session, listeners))

	session.mu.Lock()
	session.element = element
	session.mu.Unlock()

	c.logger.Info("establishing session",
		"mount", mount,
		"session_id", session.ID,
		"pipeline", session.Pipeline,
		"kind", opts.MediaKind)

	switch session.Pipeline {
	case PipelineHLS:
		if err := c.attachEngine(ctx, session, element, generation); err != nil {
			session.fail("Unable to load stream")
			c.logger.Error("stream engine attach failed", "mount", mount, "error", err)
			return session, nil
		}
	default:
		// Direct assignment; probe duration in the background when a
		// prober is available.
		if c.prober != nil {
			go c.probeDuration(ctx, session, element, generation)
		}
	}

	if !c.alive(mount, generation) {
		session.teardown(EndReplaced)
		return session, nil
	}

	c.mountSurface(session, element, generation, opts)

	if c.history != nil {
		c.history.RecordStart(session.Snapshot())
	}
	return session, nil
}

// attachEngine builds and attaches the streaming engine. Attach blocks on
// the first manifest fetch, so the continuation re-checks liveness before
// touching anything.
func (c *Controller) attachEngine(ctx context.Context, session *PlaybackSession, element *Element, generation uint64) error {
	engine := hls.NewEngine(c.fetcher, hls.Callbacks{
		OnManifestParsed: func(manifest *hls.Manifest) {
			if !c.alive(session.Mount, generation) {
				return
			}
			element.SetDuration(manifest.TotalDuration.Seconds())
			session.markReady()
		},
		OnFatalError: func(err error) {
			if !c.alive(session.Mount, generation) {
				return
			}
			c.logger.Error("fatal streaming error", "mount", session.Mount, "error", err)
			session.fail("Playback failed: the stream could not be loaded")
		},
	}, c.logger)

	session.mu.Lock()
	session.engine = engine
	session.mu.Unlock()

	if err := engine.Attach(ctx, session.Options.SourceURL); err != nil {
		return err
	}
	if !c.alive(session.Mount, generation) {
		// A newer Load won the mount while the manifest was in flight.
		session.teardown(EndReplaced)
	}
	return nil
}

func (c *Controller) probeDuration(ctx context.Context, session *PlaybackSession, element *Element, generation uint64) {
	duration, err := c.prober(ctx, session.Options.SourceURL)
	if err != nil {
		c.logger.Debug("duration probe failed", "mount", session.Mount, "error", err)
		return
	}
	if !c.alive(session.Mount, generation) {
		return
	}
	element.SetDuration(duration)
}

func (c *Controller) mountSurface(session *PlaybackSession, element *Element, generation uint64, opts SourceOptions) {
	handle, err := c.surface.Mount(element, SurfaceOptions{
		PosterURL: opts.PosterURL,
		Autoplay:  opts.Autoplay,
		OnReady: func() {
			if !c.alive(session.Mount, generation) {
				return
			}
			if session.Pipeline == PipelineDirect {
				session.markReady()
			}
		},
		OnError: func(err error) {
			if !c.alive(session.Mount, generation) {
				return
			}
			c.logger.Error("control surface error", "mount", session.Mount, "error", err)
			session.fail("Player failed to initialize")
		},
	})
	if err != nil {
		c.logger.Error("control surface mount failed", "mount", session.Mount, "error", err)
		session.fail("Player failed to initialize")
		return
	}

	session.mu.Lock()
	session.surface = handle
	session.mu.Unlock()
}

// wrapListeners layers the session's state bookkeeping under the caller's
// callbacks. Listeners live on the element; the surface never sees them.
func (c *Controller) wrapListeners(session *PlaybackSession, caller ElementListeners) ElementListeners {
	var lastProgress time.Time
	return ElementListeners{
		OnTimeUpdate: func(position float64) {
			if c.history != nil && time.Since(lastProgress) >= progressRecordInterval {
				lastProgress = time.Now()
				c.history.RecordProgress(session.Snapshot())
			}
			if caller.OnTimeUpdate != nil {
				caller.OnTimeUpdate(position)
			}
		},
		OnPlay: func() {
			session.markPlaying()
			if caller.OnPlay != nil {
				caller.OnPlay()
			}
		},
		OnPause: func() {
			session.markPaused()
			if caller.OnPause != nil {
				caller.OnPause()
			}
		},
		OnEnded: func() {
			if caller.OnEnded != nil {
				caller.OnEnded()
			}
		},
	}
}

// alive reports whether generation is still the mount's current session.
func (c *Controller) alive(mount string, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms, ok := c.mounts[mount]
	return ok && ms.generation == generation
}

func (c *Controller) endSession(session *PlaybackSession, reason EndReason) {
	snap := session.Snapshot()
	session.teardown(reason)
	if c.history != nil {
		c.history.RecordEnd(snap, reason)
	}
}

// Unload tears down the session on a mount, if any. Idempotent.
func (c *Controller) Unload(mount string) {
	c.mu.Lock()
	ms, ok := c.mounts[mount]
	var session *PlaybackSession
	if ok {
		ms.generation++
		session = ms.session
		ms.session = nil
	}
	c.mu.Unlock()

	if session != nil {
		c.endSession(session, EndClosed)
	}
}

// Session returns the current session for a mount, nil when empty.
func (c *Controller) Session(mount string) *PlaybackSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms, ok := c.mounts[mount]; ok {
		return ms.session
	}
	return nil
}

// Sessions returns snapshots of every live session.
func (c *Controller) Sessions() []Snapshot {
	c.mu.Lock()
	sessions := make([]*PlaybackSession, 0, len(c.mounts))
	for _, ms := range c.mounts {
		if ms.session != nil {
			sessions = append(sessions, ms.session)
		}
	}
	c.mu.Unlock()

	snaps := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}

// Shutdown tears down every mount.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	var sessions []*PlaybackSession
	for _, ms := range c.mounts {
		ms.generation++
		if ms.session != nil {
			sessions = append(sessions, ms.session)
			ms.session = nil
		}
	}
	c.mu.Unlock()

	for _, s := range sessions {
		c.endSession(s, EndClosed)
	}
}

// Play starts playback on a mount. No-op when nothing is mounted.
func (c *Controller) Play(mount string) {
	if el := c.element(mount); el != nil {
		el.Play()
	}
}

// Pause pauses playback on a mount. No-op when nothing is mounted.
func (c *Controller) Pause(mount string) {
	if el := c.element(mount); el != nil {
		el.Pause()
	}
}

// SeekTo moves the playhead; the element clamps. No-op when unmounted.
func (c *Controller) SeekTo(mount string, seconds float64) {
	if el := c.element(mount); el != nil {
		el.SeekTo(seconds)
	}
}

// SetVolume hard-clamps v to [0,1] before the element ever sees it.
func (c *Controller) SetVolume(mount string, v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if el := c.element(mount); el != nil {
		el.SetVolume(v)
	}
}

// SetRate applies a playback rate from the surface's speed menu. Rates off
// the menu are refused.
func (c *Controller) SetRate(mount string, rate float64) bool {
	allowed := false
	for _, r := range PlaybackRates {
		if r == rate {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if el := c.element(mount); el != nil {
		el.SetRate(rate)
		return true
	}
	return false
}

// CurrentTime returns the playhead position, 0 when unmounted.
func (c *Controller) CurrentTime(mount string) float64 {
	if el := c.element(mount); el != nil {
		return el.CurrentTime()
	}
	return 0
}

// Duration returns the media duration, 0 when unmounted or unknown.
func (c *Controller) Duration(mount string) float64 {
	if el := c.element(mount); el != nil {
		return el.Duration()
	}
	return 0
}

func (c *Controller) element(mount string) *Element {
	session := c.Session(mount)
	if session == nil {
		return nil
	}
	return session.Element()
}
