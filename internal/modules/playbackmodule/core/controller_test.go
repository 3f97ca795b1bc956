package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVODPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXT-X-PLAYLIST-TYPE:VOD
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXT-X-ENDLIST
`

// blockingFetcher serves a playlist but can hold requests until released,
// to simulate a slow manifest fetch.
type blockingFetcher struct {
	mu      sync.Mutex
	playist string
	gate    chan struct{}
	err     error
}

func newBlockingFetcher(playlist string) *blockingFetcher {
	return &blockingFetcher{playist: playlist}
}

func (f *blockingFetcher) FetchText(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	gate := f.gate
	err := f.err
	playlist := f.playist
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return playlist, nil
}

func (f *blockingFetcher) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func newTestController(fetcher *blockingFetcher, adaptive bool) *Controller {
	return NewController(ControllerOptions{
		Environment: Environment{
			AdaptiveSupport: adaptive,
			TickInterval:    10 * time.Millisecond,
		},
		Fetcher: fetcher,
		Logger:  hclog.NewNullLogger(),
	})
}

func TestClassifyPipeline(t *testing.T) {
	adaptive := Environment{AdaptiveSupport: true}
	noAdaptive := Environment{AdaptiveSupport: false}

	tests := []struct {
		name string
		url  string
		env  Environment
		want PipelineKind
	}{
		{"manifest with adaptive support", "https://cdn.example.com/v/index.m3u8", adaptive, PipelineHLS},
		{"manifest without adaptive support", "https://cdn.example.com/v/index.m3u8", noAdaptive, PipelineDirect},
		{"manifest with query string", "https://cdn.example.com/v/index.m3u8?token=abc", adaptive, PipelineHLS},
		{"uppercase extension", "https://cdn.example.com/v/INDEX.M3U8", adaptive, PipelineHLS},
		{"plain mp4", "https://cdn.example.com/v/clip.mp4", adaptive, PipelineDirect},
		{"extension in query only", "https://cdn.example.com/play?file=index.m3u8", adaptive, PipelineDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPipeline(tt.url, tt.env))
		})
	}
}

func TestLoad_DirectPipelineReachesReady(t *testing.T) {
	c := newTestController(newBlockingFetcher(""), false)
	defer c.Shutdown()

	session, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/v/clip.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)

	assert.Equal(t, PipelineDirect, session.Pipeline)
	assert.Equal(t, StateReady, session.State())
}

func TestLoad_HLSReadyGatedOnManifestParse(t *testing.T) {
	fetcher := newBlockingFetcher(testVODPlaylist)
	gate := fetcher.hold()
	c := newTestController(fetcher, true)
	defer c.Shutdown()

	type result struct{ session *PlaybackSession }
	done := make(chan result, 1)
	go func() {
		s, _ := c.Load(context.Background(), "main", SourceOptions{
			SourceURL: "https://cdn.example.com/v/index.m3u8",
			MediaKind: MediaVideo,
		}, ElementListeners{})
		done <- result{s}
	}()

	// While the manifest fetch is held, the session (already registered on
	// the mount) must still be initializing.
	require.Eventually(t, func() bool {
		return c.Session("main") != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateInitializing, c.Session("main").State())

	close(gate)
	res := <-done

	require.Equal(t, PipelineHLS, res.session.Pipeline)
	require.Eventually(t, func() bool {
		return res.session.State() == StateReady
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 20.0, c.Duration("main"))
}

func TestLoad_HLSFetchFailureErrorsSession(t *testing.T) {
	fetcher := newBlockingFetcher("")
	fetcher.err = fmt.Errorf("connection refused")
	c := newTestController(fetcher, true)
	defer c.Shutdown()

	session, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/v/index.m3u8",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)

	assert.Equal(t, StateErrored, session.State())
	assert.NotEmpty(t, session.ErrorMessage())
}

func TestLoad_ReplacesPreviousSession(t *testing.T) {
	c := newTestController(newBlockingFetcher(""), false)
	defer c.Shutdown()

	first, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/a.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)

	second, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/b.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)

	assert.Nil(t, first.Element(), "replaced session must release its element")
	assert.Same(t, second, c.Session("main"))
}

func TestLoad_StaleInitializationAbandoned(t *testing.T) {
	fetcher := newBlockingFetcher(testVODPlaylist)
	gate := fetcher.hold()
	c := newTestController(fetcher, true)
	defer c.Shutdown()

	done := make(chan *PlaybackSession, 1)
	go func() {
		s, _ := c.Load(context.Background(), "main", SourceOptions{
			SourceURL: "https://cdn.example.com/v/index.m3u8",
			MediaKind: MediaVideo,
		}, ElementListeners{})
		done <- s
	}()

	require.Eventually(t, func() bool {
		return c.Session("main") != nil
	}, 2*time.Second, 5*time.Millisecond)
	stale := c.Session("main")

	// Supersede the mount while the first manifest fetch is in flight.
	fresh, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/v/clip.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)

	close(gate)
	<-done

	// The stale continuation must not have touched the mount: the fresh
	// session still owns it and the stale one released its element.
	assert.Same(t, fresh, c.Session("main"))
	require.Eventually(t, func() bool {
		return stale.Element() == nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, StateReady, stale.State())
}

func TestTeardown_Idempotent(t *testing.T) {
	c := newTestController(newBlockingFetcher(""), false)

	session, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/a.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		c.Unload("main")
		c.Unload("main")
	})
	assert.Nil(t, c.Session("main"))
	assert.Nil(t, session.Element())

	// Direct double teardown on the session itself must also hold.
	require.NotPanics(t, func() {
		session.teardown(EndClosed)
		session.teardown(EndClosed)
	})
}

func TestSetVolume_HardClamp(t *testing.T) {
	c := newTestController(newBlockingFetcher(""), false)
	defer c.Shutdown()

	session, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/a.mp4",
		MediaKind: MediaAudio,
	}, ElementListeners{})
	require.NoError(t, err)
	element := session.Element()
	require.NotNil(t, element)

	tests := []struct {
		input float64
		want  float64
	}{
		{0.5, 0.5},
		{0, 0},
		{1, 1},
		{-3.7, 0},
		{42, 1},
		{1.0000001, 1},
	}
	for _, tt := range tests {
		c.SetVolume("main", tt.input)
		assert.Equal(t, tt.want, element.Volume(), "input %v", tt.input)
	}
}

func TestSetRate_MenuOnly(t *testing.T) {
	c := newTestController(newBlockingFetcher(""), false)
	defer c.Shutdown()

	_, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/a.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)

	assert.True(t, c.SetRate("main", 1.5))
	assert.False(t, c.SetRate("main", 3.0))
	assert.False(t, c.SetRate("main", 0.9))
}

func TestImperativeHandle_NoOpsWhenUnmounted(t *testing.T) {
	c := newTestController(newBlockingFetcher(""), false)

	require.NotPanics(t, func() {
		c.Play("empty")
		c.Pause("empty")
		c.SeekTo("empty", 30)
		c.SetVolume("empty", 0.5)
	})
	assert.Equal(t, 0.0, c.CurrentTime("empty"))
	assert.Equal(t, 0.0, c.Duration("empty"))
}

func TestFullscreenControl_VideoOnly(t *testing.T) {
	surface := NewDefaultSurface()

	video := NewElement(MediaVideo, "https://cdn.example.com/a.mp4", "", time.Minute)
	defer video.Close()
	videoHandle, err := surface.Mount(video, SurfaceOptions{})
	require.NoError(t, err)
	assert.Contains(t, videoHandle.Controls(), "fullscreen")

	audio := NewElement(MediaAudio, "https://cdn.example.com/a.mp3", "", time.Minute)
	defer audio.Close()
	audioHandle, err := surface.Mount(audio, SurfaceOptions{})
	require.NoError(t, err)
	assert.NotContains(t, audioHandle.Controls(), "fullscreen")
}

func TestStateMachine_ErroredIsTerminal(t *testing.T) {
	c := newTestController(newBlockingFetcher(""), false)
	defer c.Shutdown()

	session, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/a.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)

	session.fail("boom")
	assert.Equal(t, StateErrored, session.State())

	// Late lifecycle signals must not resurrect the session.
	assert.False(t, session.markReady())
	session.markPlaying()
	assert.Equal(t, StateErrored, session.State())

	// A fresh Load is the only way out.
	replacement, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/b.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{})
	require.NoError(t, err)
	assert.Equal(t, StateReady, replacement.State())
}

func TestPlayPause_TransitionsAndListeners(t *testing.T) {
	c := newTestController(newBlockingFetcher(""), false)
	defer c.Shutdown()

	var mu sync.Mutex
	var events []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			events = append(events, name)
			mu.Unlock()
		}
	}

	session, err := c.Load(context.Background(), "main", SourceOptions{
		SourceURL: "https://cdn.example.com/a.mp4",
		MediaKind: MediaVideo,
	}, ElementListeners{
		OnPlay:  record("play"),
		OnPause: record("pause"),
	})
	require.NoError(t, err)

	c.Play("main")
	assert.Equal(t, StatePlaying, session.State())
	c.Pause("main")
	assert.Equal(t, StatePaused, session.State())
	c.Play("main")
	assert.Equal(t, StatePlaying, session.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"play", "pause", "play"}, events)
}
