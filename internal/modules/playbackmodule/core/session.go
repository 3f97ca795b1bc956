package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lumetube/lume/internal/modules/playbackmodule/core/hls"
	"github.com/lumetube/lume/internal/utils"
)

// PlaybackSession is one established playback attempt on a mount point. Its
// state machine is initializing → ready → {playing ⇄ paused}, with errored
// terminal from anywhere until a fresh Load replaces the session.
type PlaybackSession struct {
	ID       string
	Mount    string
	Options  SourceOptions
	Pipeline PipelineKind

	// generation is the controller's liveness stamp for this session.
	// Async continuations compare it against the mount's counter and
	// abandon their side effects when stale.
	generation uint64

	logger hclog.Logger

	mu           sync.Mutex
	state        SessionState
	errMessage   string
	element      *Element
	engine       *hls.Engine
	surface      SurfaceHandle
	torndown     bool
	startTime    time.Time
	endTime      time.Time
	endReason    EndReason
	lastActivity time.Time
}

func newSession(mount string, opts SourceOptions, generation uint64, logger hclog.Logger) *PlaybackSession {
	now := time.Now()
	return &PlaybackSession{
		ID:           utils.GenerateUUID(),
		Mount:        mount,
		Options:      opts,
		generation:   generation,
		logger:       logger,
		state:        StateInitializing,
		startTime:    now,
		lastActivity: now,
	}
}

// State returns the current lifecycle state.
func (s *PlaybackSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ErrorMessage returns the user-facing message for an errored session.
func (s *PlaybackSession) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMessage
}

// markReady moves initializing → ready. Any other state is left alone: a
// late ready signal must not resurrect an errored session or regress a
// playing one.
func (s *PlaybackSession) markReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return false
	}
	s.state = StateReady
	s.lastActivity = time.Now()
	return true
}

// markPlaying and markPaused follow the element's play/pause events.
func (s *PlaybackSession) markPlaying() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady || s.state == StatePaused {
		s.state = StatePlaying
		s.lastActivity = time.Now()
	}
}

func (s *PlaybackSession) markPaused() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		s.state = StatePaused
		s.lastActivity = time.Now()
	}
}

// fail moves the session to the terminal errored state with a user-facing
// message. Later failures keep the first message.
func (s *PlaybackSession) fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateErrored {
		return
	}
	s.state = StateErrored
	s.errMessage = message
	s.lastActivity = time.Now()
}

// teardown releases everything the session holds: engine first, then
// surface, each failure swallowed and logged on its own; listeners removed
// from the element; element closed and nilled. Safe to call repeatedly.
func (s *PlaybackSession) teardown(reason EndReason) {
	s.mu.Lock()
	if s.torndown {
		s.mu.Unlock()
		return
	}
	s.torndown = true
	engine := s.engine
	surface := s.surface
	element := s.element
	s.engine = nil
	s.surface = nil
	s.element = nil
	s.endTime = time.Now()
	s.endReason = reason
	s.mu.Unlock()

	if engine != nil {
		if err := engine.Destroy(); err != nil {
			s.logger.Warn("streaming engine destroy failed", "session_id", s.ID, "error", err)
		}
	}
	if surface != nil {
		if err := surface.Destroy(); err != nil {
			s.logger.Warn("control surface destroy failed", "session_id", s.ID, "error", err)
		}
	}
	if element != nil {
		element.RemoveListeners()
		element.Close()
	}
}

// Element returns the session's element, nil after teardown.
func (s *PlaybackSession) Element() *Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.element
}

// Snapshot is the externally visible view of a session.
type Snapshot struct {
	ID        string       `json:"id"`
	Mount     string       `json:"mount"`
	SourceURL string       `json:"sourceUrl"`
	MediaKind MediaKind    `json:"mediaKind"`
	Pipeline  PipelineKind `json:"pipeline"`
	State     SessionState `json:"state"`
	Error     string       `json:"error,omitempty"`
	Position  float64      `json:"position"`
	Duration  float64      `json:"duration"`
	Volume    float64      `json:"volume"`
	Rate      float64      `json:"rate"`
	StartTime time.Time    `json:"startTime"`
}

// Snapshot captures the session's current state for the API layer.
func (s *PlaybackSession) Snapshot() Snapshot {
	s.mu.Lock()
	element := s.element
	snap := Snapshot{
		ID:        s.ID,
		Mount:     s.Mount,
		SourceURL: s.Options.SourceURL,
		MediaKind: s.Options.MediaKind,
		Pipeline:  s.Pipeline,
		State:     s.state,
		Error:     s.errMessage,
		Volume:    1,
		Rate:      1,
		StartTime: s.startTime,
	}
	s.mu.Unlock()

	if element != nil {
		snap.Position = element.CurrentTime()
		snap.Duration = element.Duration()
		snap.Volume = element.Volume()
		snap.Rate = element.Rate()
	}
	return snap
}

func (s *PlaybackSession) String() string {
	return fmt.Sprintf("session %s on %s (%s, %s)", s.ID, s.Mount, s.Pipeline, s.State())
}
