package captions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSegments() []Segment {
	return []Segment{
		{ID: "a", StartTime: 0, Text: "first"},
		{ID: "b", StartTime: 4, Text: "second"},
		{ID: "c", StartTime: 10, Text: "third"},
	}
}

func TestActiveSegment_SelectsByInterval(t *testing.T) {
	segments := testSegments()

	tests := []struct {
		name string
		time float64
		want int
	}{
		{"before first segment", -0.5, -1},
		{"at first start", 0, 0},
		{"inside first", 2.5, 0},
		{"boundary is exclusive on the left segment", 4, 1},
		{"inside second", 9.99, 1},
		{"at last start", 10, 2},
		{"inside last segment tail", 14.9, 2},
		{"past last segment tail", 15, -1},
		{"far past end", 100, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ActiveSegment(tt.time, segments))
		})
	}
}

func TestActiveSegment_EmptyTrack(t *testing.T) {
	assert.Equal(t, -1, ActiveSegment(3, nil))
}

func TestActiveSegment_ExactlyOneMatch(t *testing.T) {
	segments := testSegments()
	// Sweep the timeline and confirm exclusivity: at most one segment
	// interval contains any given time.
	for tick := 0.0; tick < 20; tick += 0.1 {
		matches := 0
		for i := range segments {
			if tick >= segments[i].StartTime && tick < EffectiveEnd(segments, i) {
				matches++
			}
		}
		assert.LessOrEqual(t, matches, 1, "time %.1f matched %d segments", tick, matches)
		if matches == 1 {
			assert.NotEqual(t, -1, ActiveSegment(tick, segments))
		}
	}
}

func TestEffectiveEnd_LastSegmentGetsFixedTail(t *testing.T) {
	segments := testSegments()
	assert.Equal(t, 4.0, EffectiveEnd(segments, 0))
	assert.Equal(t, 10.0, EffectiveEnd(segments, 1))
	assert.Equal(t, 15.0, EffectiveEnd(segments, 2))
}

func TestProximityWeight_ActiveIsFull(t *testing.T) {
	segments := testSegments()
	assert.Equal(t, weightActive, ProximityWeight(5, segments, 1))
}

func TestProximityWeight_MonotonicWithDistance(t *testing.T) {
	segments := testSegments()

	// Walking away from the first segment, weights never increase.
	prev := ProximityWeight(4, segments, 0)
	for tick := 4.5; tick < 20; tick += 0.5 {
		w := ProximityWeight(tick, segments, 0)
		assert.LessOrEqual(t, w, prev, "weight rose at time %.1f", tick)
		prev = w
	}
}

func TestProximityWeight_FloorBeyondWindow(t *testing.T) {
	segments := testSegments()
	assert.Equal(t, weightMinimal, ProximityWeight(50, segments, 0))
	assert.Equal(t, weightMinimal, ProximityWeight(-20, segments, 2))
}

func TestTrackValidate(t *testing.T) {
	t.Run("sorted track passes", func(t *testing.T) {
		track := Track{Segments: testSegments()}
		require.NoError(t, track.Validate())
	})

	t.Run("out of order fails", func(t *testing.T) {
		track := Track{Segments: []Segment{{StartTime: 5}, {StartTime: 1}}}
		require.Error(t, track.Validate())
	})

	t.Run("duplicate start fails", func(t *testing.T) {
		track := Track{Segments: []Segment{{StartTime: 2}, {StartTime: 2}}}
		require.Error(t, track.Validate())
	})

	t.Run("sort repairs ordering", func(t *testing.T) {
		track := Track{Segments: []Segment{{StartTime: 5}, {StartTime: 1}}}
		track.Sort()
		require.NoError(t, track.Validate())
	})
}
