package core

import (
	"fmt"
	"sync"
)

// SurfaceOptions configures a control surface mount.
type SurfaceOptions struct {
	PosterURL string
	Autoplay  bool
	// OnReady fires once the surface is usable; OnError fires on a fatal
	// surface failure. Either may be nil.
	OnReady func()
	OnError func(err error)
}

// SurfaceHandle is a mounted control surface. Destroy must be safe to call
// exactly once per mount; the session guards against double destroy.
type SurfaceHandle interface {
	Destroy() error
	Controls() []string
}

// ControlSurface mounts playback controls over an element.
type ControlSurface interface {
	Mount(el *Element, opts SurfaceOptions) (SurfaceHandle, error)
}

// baseControls is the fixed control set every surface mount gets.
var baseControls = []string{
	"play-large",
	"play",
	"progress",
	"current-time",
	"mute",
	"volume",
	"settings",
}

// DefaultSurface is the built-in control surface. Fullscreen is offered for
// video elements only; audio gets the base set.
type DefaultSurface struct{}

func NewDefaultSurface() *DefaultSurface {
	return &DefaultSurface{}
}

func (s *DefaultSurface) Mount(el *Element, opts SurfaceOptions) (SurfaceHandle, error) {
	if el == nil {
		return nil, fmt.Errorf("cannot mount surface without an element")
	}

	controls := append([]string(nil), baseControls...)
	if el.Kind() == MediaVideo {
		controls = append(controls, "fullscreen")
	}

	handle := &defaultHandle{
		controls: controls,
		rates:    append([]float64(nil), PlaybackRates...),
	}

	if opts.OnReady != nil {
		opts.OnReady()
	}
	if opts.Autoplay {
		el.Play()
	}
	return handle, nil
}

type defaultHandle struct {
	mu        sync.Mutex
	destroyed bool
	controls  []string
	rates     []float64
}

func (h *defaultHandle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return fmt.Errorf("surface handle already destroyed")
	}
	h.destroyed = true
	return nil
}

func (h *defaultHandle) Controls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.controls...)
}

// Rates returns the speed menu offered by the surface.
func (h *defaultHandle) Rates() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.rates...)
}
