package captions

import (
	"context"
	"fmt"
	"sort"

	"github.com/lumetube/lume/internal/client"
)

// Segment is one time-coded caption line. StartTime is in seconds from the
// beginning of the media. Segments carry no explicit end; a segment ends
// where the next one starts.
type Segment struct {
	ID         string
	StartTime  float64
	Text       string
	Confidence *float64
}

// Track is an ordered set of segments in one language.
type Track struct {
	Language string
	Segments []Segment
}

// Validate checks that segments are sorted by start time with no duplicate
// starts. Synchronizer lookups assume this ordering.
func (t *Track) Validate() error {
	for i := 1; i < len(t.Segments); i++ {
		prev, cur := t.Segments[i-1], t.Segments[i]
		if cur.StartTime < prev.StartTime {
			return fmt.Errorf("segment %d starts at %.3f before previous segment at %.3f", i, cur.StartTime, prev.StartTime)
		}
		if cur.StartTime == prev.StartTime {
			return fmt.Errorf("segments %d and %d share start time %.3f", i-1, i, cur.StartTime)
		}
	}
	return nil
}

// Sort orders segments by start time in place.
func (t *Track) Sort() {
	sort.Slice(t.Segments, func(i, j int) bool {
		return t.Segments[i].StartTime < t.Segments[j].StartTime
	})
}

// Fetcher loads caption tracks from the backend.
type Fetcher struct {
	client *client.Client
}

func NewFetcher(c *client.Client) *Fetcher {
	return &Fetcher{client: c}
}

// Fetch retrieves and validates all caption tracks for a media id. Tracks
// arriving unsorted are sorted rather than rejected; only true overlaps
// (duplicate starts) fail.
func (f *Fetcher) Fetch(ctx context.Context, mediaID string) ([]Track, error) {
	payloads, err := f.client.GetCaptions(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions for media %s: %w", mediaID, err)
	}

	tracks := make([]Track, 0, len(payloads))
	for _, p := range payloads {
		track := Track{Language: p.Language, Segments: make([]Segment, 0, len(p.Segments))}
		for _, s := range p.Segments {
			track.Segments = append(track.Segments, Segment{
				ID:         s.ID,
				StartTime:  s.StartTime,
				Text:       s.Text,
				Confidence: s.Confidence,
			})
		}
		track.Sort()
		if err := track.Validate(); err != nil {
			return nil, fmt.Errorf("invalid caption track %q: %w", p.Language, err)
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}
