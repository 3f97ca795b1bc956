package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElement_PlayheadAdvancesWhilePlaying(t *testing.T) {
	el := NewElement(MediaVideo, "https://cdn.example.com/a.mp4", "", 5*time.Millisecond)
	defer el.Close()
	el.SetDuration(600)

	el.Play()
	require.Eventually(t, func() bool {
		return el.CurrentTime() > 0
	}, 2*time.Second, 5*time.Millisecond)

	el.Pause()
	at := el.CurrentTime()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, at, el.CurrentTime(), "playhead must not move while paused")
}

func TestElement_RateScalesAdvance(t *testing.T) {
	el := NewElement(MediaVideo, "https://cdn.example.com/a.mp4", "", 5*time.Millisecond)
	defer el.Close()
	el.SetDuration(600)
	el.SetRate(2)

	el.Play()
	require.Eventually(t, func() bool {
		return el.CurrentTime() >= 0.02
	}, 2*time.Second, time.Millisecond)
}

func TestElement_EndsAtDuration(t *testing.T) {
	el := NewElement(MediaAudio, "https://cdn.example.com/a.mp3", "", time.Millisecond)
	defer el.Close()
	el.SetDuration(0.01)

	var mu sync.Mutex
	ended := false
	el.SetListeners(ElementListeners{
		OnEnded: func() {
			mu.Lock()
			ended = true
			mu.Unlock()
		},
	})

	el.Play()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ended
	}, 2*time.Second, time.Millisecond)

	assert.False(t, el.Playing())
	assert.Equal(t, 0.01, el.CurrentTime(), "playhead clamps to duration")
}

func TestElement_SeekClamps(t *testing.T) {
	el := NewElement(MediaVideo, "https://cdn.example.com/a.mp4", "", time.Minute)
	defer el.Close()
	el.SetDuration(120)

	el.SeekTo(-5)
	assert.Equal(t, 0.0, el.CurrentTime())

	el.SeekTo(500)
	assert.Equal(t, 120.0, el.CurrentTime())

	el.SeekTo(60)
	assert.Equal(t, 60.0, el.CurrentTime())
}

func TestElement_SeekWithUnknownDurationOnlyClampsLow(t *testing.T) {
	el := NewElement(MediaVideo, "https://cdn.example.com/live.m3u8", "", time.Minute)
	defer el.Close()

	el.SeekTo(9999)
	assert.Equal(t, 9999.0, el.CurrentTime())
}

func TestElement_CloseStopsEverything(t *testing.T) {
	el := NewElement(MediaVideo, "https://cdn.example.com/a.mp4", "", time.Millisecond)
	el.SetDuration(600)
	el.Play()

	el.Close()
	el.Close() // idempotent

	at := el.CurrentTime()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, at, el.CurrentTime())
	el.Play()
	assert.False(t, el.Playing())
}
