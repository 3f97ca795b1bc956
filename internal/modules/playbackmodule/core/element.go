package core

import (
	"sync"
	"time"
)

// ElementListeners are the callbacks a session registers on its element.
// They fire from the playhead goroutine, never under the element lock.
type ElementListeners struct {
	OnTimeUpdate func(position float64)
	OnPlay       func()
	OnPause      func()
	OnEnded      func()
}

// Element is a virtual media element: it models the playback surface the
// controller drives. Position advances on a ticker while playing, scaled by
// the playback rate, and clamps to the duration supplied by the pipeline.
type Element struct {
	kind      MediaKind
	sourceURL string
	posterURL string

	mu        sync.Mutex
	position  float64
	duration  float64
	volume    float64
	rate      float64
	playing   bool
	closed    bool
	listeners ElementListeners

	tick     time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewElement creates an element of the requested kind. The playhead
// goroutine starts immediately but stays idle until Play.
func NewElement(kind MediaKind, sourceURL, posterURL string, tick time.Duration) *Element {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	e := &Element{
		kind:      kind,
		sourceURL: sourceURL,
		posterURL: posterURL,
		volume:    1,
		rate:      1,
		tick:      tick,
		stopCh:    make(chan struct{}),
	}
	go e.playhead()
	return e
}

func (e *Element) playhead() {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.advance()
		}
	}
}

func (e *Element) advance() {
	e.mu.Lock()
	if !e.playing || e.closed {
		e.mu.Unlock()
		return
	}

	e.position += e.tick.Seconds() * e.rate
	ended := false
	if e.duration > 0 && e.position >= e.duration {
		e.position = e.duration
		e.playing = false
		ended = true
	}
	position := e.position
	listeners := e.listeners
	e.mu.Unlock()

	if listeners.OnTimeUpdate != nil {
		listeners.OnTimeUpdate(position)
	}
	if ended {
		if listeners.OnPause != nil {
			listeners.OnPause()
		}
		if listeners.OnEnded != nil {
			listeners.OnEnded()
		}
	}
}

// SetListeners registers the session's callbacks.
func (e *Element) SetListeners(l ElementListeners) {
	e.mu.Lock()
	e.listeners = l
	e.mu.Unlock()
}

// RemoveListeners detaches all callbacks.
func (e *Element) RemoveListeners() {
	e.mu.Lock()
	e.listeners = ElementListeners{}
	e.mu.Unlock()
}

// SetDuration is called by the pipeline once the media length is known.
func (e *Element) SetDuration(seconds float64) {
	e.mu.Lock()
	e.duration = seconds
	e.mu.Unlock()
}

// Play starts playback. No-op when already playing or closed.
func (e *Element) Play() {
	e.mu.Lock()
	if e.playing || e.closed {
		e.mu.Unlock()
		return
	}
	e.playing = true
	listeners := e.listeners
	e.mu.Unlock()

	if listeners.OnPlay != nil {
		listeners.OnPlay()
	}
}

// Pause halts playback. No-op when already paused or closed.
func (e *Element) Pause() {
	e.mu.Lock()
	if !e.playing || e.closed {
		e.mu.Unlock()
		return
	}
	e.playing = false
	listeners := e.listeners
	e.mu.Unlock()

	if listeners.OnPause != nil {
		listeners.OnPause()
	}
}

// SeekTo moves the playhead, clamped to [0, duration]. A zero duration
// means unknown and only the lower bound applies.
func (e *Element) SeekTo(seconds float64) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if e.duration > 0 && seconds > e.duration {
		seconds = e.duration
	}
	e.position = seconds
	position := e.position
	listeners := e.listeners
	e.mu.Unlock()

	if listeners.OnTimeUpdate != nil {
		listeners.OnTimeUpdate(position)
	}
}

// SetVolume stores the playback volume. Callers clamp; the element trusts
// its input the way a real media element would reject out-of-range values,
// so the controller's clamp is the contract.
func (e *Element) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
}

// SetRate changes the playback rate used by the playhead.
func (e *Element) SetRate(rate float64) {
	e.mu.Lock()
	if rate > 0 {
		e.rate = rate
	}
	e.mu.Unlock()
}

// CurrentTime returns the playhead position in seconds.
func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Duration returns the media length in seconds, 0 when unknown.
func (e *Element) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// Volume returns the stored volume.
func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Rate returns the playback rate.
func (e *Element) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// Playing reports whether the playhead is advancing.
func (e *Element) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Kind returns the element's media kind.
func (e *Element) Kind() MediaKind {
	return e.kind
}

// SourceURL returns the assigned source.
func (e *Element) SourceURL() string {
	return e.sourceURL
}

// Close stops the playhead goroutine. Idempotent.
func (e *Element) Close() {
	e.mu.Lock()
	e.closed = true
	e.playing = false
	e.mu.Unlock()
	e.stopOnce.Do(func() { close(e.stopCh) })
}
