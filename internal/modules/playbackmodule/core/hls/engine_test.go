package hls

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

const vodPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXT-X-PLAYLIST-TYPE:VOD
#EXTINF:9.009,
seg0.ts
#EXTINF:9.009,
seg1.ts
#EXTINF:3.003,
seg2.ts
#EXT-X-ENDLIST
`

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2400000,RESOLUTION=1280x720,CODECS="avc1.4d401f,mp4a.40.2"
high/index.m3u8
`

const livePlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:100
#EXTINF:2.0,
seg100.ts
#EXTINF:2.0,
seg101.ts
`

// fakeFetcher serves canned playlists keyed by URL and can be told to fail.
type fakeFetcher struct {
	mu        sync.Mutex
	playlists map[string]string
	failing   bool
	fetches   int
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.failing {
		return "", fmt.Errorf("connection refused")
	}
	playlist, ok := f.playlists[url]
	if !ok {
		return "", fmt.Errorf("no playlist at %s", url)
	}
	return playlist, nil
}

func (f *fakeFetcher) setFailing(failing bool) {
	f.mu.Lock()
	f.failing = failing
	f.mu.Unlock()
}

func TestParseMediaPlaylist_VOD(t *testing.T) {
	manifest, err := ParseMediaPlaylist(vodPlaylist)
	require.NoError(t, err)
	assert.True(t, manifest.IsVOD)
	assert.Equal(t, 3, manifest.SegmentCount)
	assert.InDelta(t, 21.021, manifest.TotalDuration.Seconds(), 0.001)
	assert.Equal(t, 10*time.Second, manifest.TargetDuration)
}

func TestParseMediaPlaylist_RejectsNonM3U(t *testing.T) {
	_, err := ParseMediaPlaylist("<html>not a playlist</html>")
	require.Error(t, err)
}

func TestParseMasterPlaylist_VariantSelection(t *testing.T) {
	variants, err := ParseMasterPlaylist(masterPlaylist)
	require.NoError(t, err)
	require.Len(t, variants, 2)

	best := SelectVariant(variants)
	assert.Equal(t, int64(2400000), best.Bandwidth)
	assert.Equal(t, "high/index.m3u8", best.URI)
	assert.Equal(t, "1280x720", best.Resolution)
}

func TestResolveURI(t *testing.T) {
	resolved, err := ResolveURI("https://cdn.example.com/v/master.m3u8", "high/index.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v/high/index.m3u8", resolved)

	absolute, err := ResolveURI("https://cdn.example.com/v/master.m3u8", "https://other.example.com/x.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/x.m3u8", absolute)
}

func TestEngine_AttachVOD_FiresManifestParsed(t *testing.T) {
	fetcher := &fakeFetcher{playlists: map[string]string{
		"https://cdn.example.com/v/index.m3u8": vodPlaylist,
	}}

	parsed := make(chan *Manifest, 1)
	engine := NewEngine(fetcher, Callbacks{
		OnManifestParsed: func(m *Manifest) { parsed <- m },
	}, hclog.NewNullLogger())
	defer engine.Destroy()

	require.NoError(t, engine.Attach(context.Background(), "https://cdn.example.com/v/index.m3u8"))

	select {
	case m := <-parsed:
		assert.True(t, m.IsVOD)
		assert.InDelta(t, 21.021, m.TotalDuration.Seconds(), 0.001)
	default:
		t.Fatal("manifest-parsed callback did not fire before Attach returned")
	}
}

func TestEngine_AttachMaster_FollowsBestVariant(t *testing.T) {
	fetcher := &fakeFetcher{playlists: map[string]string{
		"https://cdn.example.com/v/master.m3u8":     masterPlaylist,
		"https://cdn.example.com/v/high/index.m3u8": vodPlaylist,
	}}

	engine := NewEngine(fetcher, Callbacks{}, hclog.NewNullLogger())
	defer engine.Destroy()

	require.NoError(t, engine.Attach(context.Background(), "https://cdn.example.com/v/master.m3u8"))
	require.NotNil(t, engine.Manifest())
	assert.Equal(t, 3, engine.Manifest().SegmentCount)
}

func TestEngine_AttachFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{playlists: map[string]string{}}
	engine := NewEngine(fetcher, Callbacks{}, hclog.NewNullLogger())
	defer engine.Destroy()

	err := engine.Attach(context.Background(), "https://cdn.example.com/missing.m3u8")
	require.Error(t, err)
}

func TestEngine_LiveRefreshFatalAfterConsecutiveFailures(t *testing.T) {
	fetcher := &fakeFetcher{playlists: map[string]string{
		"https://cdn.example.com/live.m3u8": livePlaylist,
	}}

	fatal := make(chan error, 1)
	engine := NewEngine(fetcher, Callbacks{
		OnFatalError: func(err error) { fatal <- err },
	}, hclog.NewNullLogger())
	defer engine.Destroy()

	require.NoError(t, engine.Attach(context.Background(), "https://cdn.example.com/live.m3u8"))

	// All refreshes now fail; after the tolerance runs out the engine
	// reports fatal. Target duration is 2s, so three failed refreshes
	// arrive within ~6s.
	fetcher.setFailing(true)

	select {
	case err := <-fatal:
		assert.Contains(t, err.Error(), "3 times in a row")
	case <-time.After(15 * time.Second):
		t.Fatal("engine never declared a fatal error")
	}
}

func TestEngine_DestroyStopsRefreshAndErrorsOnSecondCall(t *testing.T) {
	fetcher := &fakeFetcher{playlists: map[string]string{
		"https://cdn.example.com/live.m3u8": livePlaylist,
	}}
	engine := NewEngine(fetcher, Callbacks{}, hclog.NewNullLogger())

	require.NoError(t, engine.Attach(context.Background(), "https://cdn.example.com/live.m3u8"))
	require.NoError(t, engine.Destroy())
	assert.Error(t, engine.Destroy())
}
