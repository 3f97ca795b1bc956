// Package core provides the playback controller, its session state machine,
// and the virtual media element they drive.
package core

import "time"

// SessionState is the lifecycle state of a playback session.
type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateReady        SessionState = "ready"
	StatePlaying      SessionState = "playing"
	StatePaused       SessionState = "paused"
	// StateErrored is terminal; only a fresh Load leaves it.
	StateErrored SessionState = "errored"
)

// MediaKind selects the element type for a session.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// PipelineKind is how the media bytes reach the element.
type PipelineKind string

const (
	// PipelineHLS routes through the segmented-streaming engine.
	PipelineHLS PipelineKind = "hls"
	// PipelineDirect assigns the source URL straight to the element.
	PipelineDirect PipelineKind = "direct"
)

// PlaybackRates is the fixed speed menu exposed by the control surface.
var PlaybackRates = []float64{0.5, 0.75, 1, 1.25, 1.5, 1.75, 2}

// DefaultTickInterval drives the virtual playhead's timeupdate cadence.
const DefaultTickInterval = 250 * time.Millisecond

// SourceOptions describes what a mount point should play. Any change to
// these re-establishes the session from scratch.
type SourceOptions struct {
	SourceURL string    `json:"sourceUrl"`
	MediaKind MediaKind `json:"mediaKind"`
	PosterURL string    `json:"posterUrl,omitempty"`
	Autoplay  bool      `json:"autoplay,omitempty"`
}

// Environment captures capabilities of the playback host.
type Environment struct {
	// AdaptiveSupport gates the segmented-streaming pipeline.
	AdaptiveSupport bool
	// TickInterval overrides the playhead cadence; zero means default.
	TickInterval time.Duration
}

// EndReason records why a session ended, for history.
type EndReason string

const (
	EndReplaced EndReason = "replaced"
	EndClosed   EndReason = "closed"
	EndErrored  EndReason = "errored"
	EndFinished EndReason = "finished"
)
