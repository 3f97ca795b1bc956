package captions

// lastSegmentDuration is how long the final segment of a track stays active,
// since nothing after it supplies an end time.
const lastSegmentDuration = 5.0

// proximityWindow is the fade window around a segment's interval, in seconds.
const proximityWindow = 10.0

// Proximity weight bounds for presentation fade.
const (
	weightActive  = 1.0
	weightMinimal = 0.15
)

// EffectiveEnd returns the exclusive end time of segment i: the next
// segment's start, or a fixed tail duration for the last segment.
func EffectiveEnd(segments []Segment, i int) float64 {
	if i < len(segments)-1 {
		return segments[i+1].StartTime
	}
	return segments[i].StartTime + lastSegmentDuration
}

// ActiveSegment returns the index of the segment whose [startTime,
// effectiveEnd) interval contains t, or -1 when t precedes the first segment
// or falls past the last segment's tail. Segments must be sorted; the scan
// is linear, which is fine for the track sizes involved.
func ActiveSegment(t float64, segments []Segment) int {
	for i := range segments {
		if t >= segments[i].StartTime && t < EffectiveEnd(segments, i) {
			return i
		}
	}
	return -1
}

// ProximityWeight maps a segment's time-distance from t to a presentation
// weight. Active segments get full weight; segments within the fade window
// before or after their interval get a weight falling linearly with
// distance; everything further gets the minimal weight. Deterministic and
// monotonically non-increasing in distance.
func ProximityWeight(t float64, segments []Segment, i int) float64 {
	start := segments[i].StartTime
	end := EffectiveEnd(segments, i)

	if t >= start && t < end {
		return weightActive
	}

	var distance float64
	if t < start {
		distance = start - t
	} else {
		distance = t - end
	}

	if distance >= proximityWindow {
		return weightMinimal
	}

	// Linear fade from full to minimal across the window.
	fraction := distance / proximityWindow
	return weightActive - fraction*(weightActive-weightMinimal)
}
