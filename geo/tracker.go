package geo

import (
	"math"
	"time"
)

const (
	// MetersPerDegreeLat is the flat-earth meters-per-degree approximation
	// used for all local displacement math. Longitude shrinks by cos(lat).
	MetersPerDegreeLat = 111320.0

	// Predicted positions report inflated accuracy.
	predictionAccuracyFactor = 1.5
)

// TrackerParams holds the tunable knobs of a Tracker. Zero fields fall back
// to the defaults.
type TrackerParams struct {
	// BufferSize is the ring buffer capacity for filtered samples.
	BufferSize int
	// FreshWindow trusts a fix younger than this directly, no prediction.
	FreshWindow time.Duration
	// MinMovingSpeed is the speed (m/s) above which dead-reckoning kicks in.
	MinMovingSpeed float64
	// MaxExtrapolation caps prediction age; older fixes are returned stale.
	MaxExtrapolation time.Duration
}

// DefaultTrackerParams returns the production defaults.
func DefaultTrackerParams() TrackerParams {
	return TrackerParams{
		BufferSize:       10,
		FreshWindow:      2000 * time.Millisecond,
		MinMovingSpeed:   0.5,
		MaxExtrapolation: 3000 * time.Millisecond,
	}
}

// Sample is one GPS fix. Speed (m/s) and Heading (degrees, 0 = north,
// clockwise) are nil when the geolocation source did not report them.
type Sample struct {
	Lat       float64
	Lon       float64
	Accuracy  float64
	Speed     *float64
	Heading   *float64
	Timestamp time.Time
}

// Tracker maintains a filtered, extrapolatable position estimate from noisy,
// intermittent GPS fixes. One instance per app session; reset together with
// the detection session.
type Tracker struct {
	params    TrackerParams
	samples   []Sample
	latFilter *kalman1D
	lonFilter *kalman1D
}

// NewTracker creates an empty GPS tracker with default parameters.
func NewTracker() *Tracker {
	return NewTrackerWithParams(DefaultTrackerParams())
}

// NewTrackerWithParams creates an empty GPS tracker with explicit parameters.
func NewTrackerWithParams(params TrackerParams) *Tracker {
	defaults := DefaultTrackerParams()
	if params.BufferSize <= 0 {
		params.BufferSize = defaults.BufferSize
	}
	if params.FreshWindow <= 0 {
		params.FreshWindow = defaults.FreshWindow
	}
	if params.MinMovingSpeed <= 0 {
		params.MinMovingSpeed = defaults.MinMovingSpeed
	}
	if params.MaxExtrapolation <= 0 {
		params.MaxExtrapolation = defaults.MaxExtrapolation
	}
	return &Tracker{
		params:    params,
		samples:   make([]Sample, 0, params.BufferSize),
		latFilter: newKalman1D(),
		lonFilter: newKalman1D(),
	}
}

// AddPoint filters a raw fix through the per-axis Kalman smoothers and stores
// the filtered sample in the ring buffer, evicting the oldest on overflow.
func (t *Tracker) AddPoint(sample Sample) {
	sample.Lat = t.latFilter.update(sample.Lat)
	sample.Lon = t.lonFilter.update(sample.Lon)
	t.samples = append(t.samples, sample)
	if len(t.samples) > t.params.BufferSize {
		t.samples = t.samples[1:]
	}
}

// CurrentPosition returns the best position estimate for now. Recent fixes are
// returned unmodified; stale fixes from a moving vehicle with known heading
// are dead-reckoned forward, capped at the extrapolation limit. Returns nil
// when no fix has been seen.
func (t *Tracker) CurrentPosition(now time.Time) *Sample {
	if len(t.samples) == 0 {
		return nil
	}
	latest := t.samples[len(t.samples)-1]
	if len(t.samples) == 1 {
		return &latest
	}
	elapsed := now.Sub(latest.Timestamp)
	if elapsed < t.params.FreshWindow {
		return &latest
	}
	if latest.Speed == nil || *latest.Speed <= t.params.MinMovingSpeed || latest.Heading == nil {
		return &latest
	}
	if elapsed > t.params.MaxExtrapolation {
		// Too stale to predict; a stale truth beats a projected guess.
		return &latest
	}
	projected := projectForward(latest, elapsed)
	projected.Timestamp = now
	return &projected
}

// PositionAt returns the position estimate for a specific timestamp, e.g. to
// align a coordinate to a detection captured slightly earlier. Timestamps past
// the newest sample fall through to CurrentPosition semantics; timestamps
// before all samples return the oldest. Returns nil when no fix has been seen.
func (t *Tracker) PositionAt(timestamp time.Time) *Sample {
	if len(t.samples) == 0 {
		return nil
	}
	oldest := t.samples[0]
	newest := t.samples[len(t.samples)-1]
	if !timestamp.Before(newest.Timestamp) {
		return t.CurrentPosition(timestamp)
	}
	if !timestamp.After(oldest.Timestamp) {
		return &oldest
	}

	for i := 1; i < len(t.samples); i++ {
		before := t.samples[i-1]
		after := t.samples[i]
		if timestamp.Before(before.Timestamp) || timestamp.After(after.Timestamp) {
			continue
		}
		span := after.Timestamp.Sub(before.Timestamp)
		if span <= 0 {
			// Degenerate bracket of identical timestamps.
			return &before
		}
		ratio := float64(timestamp.Sub(before.Timestamp)) / float64(span)
		interpolated := Sample{
			Lat:       lerp(before.Lat, after.Lat, ratio),
			Lon:       lerp(before.Lon, after.Lon, ratio),
			Accuracy:  lerp(before.Accuracy, after.Accuracy, ratio),
			Speed:     lerpOptional(before.Speed, after.Speed, ratio),
			Heading:   lerpHeading(before.Heading, after.Heading, ratio),
			Timestamp: timestamp,
		}
		return &interpolated
	}
	return &newest
}

// Reset clears the sample buffer and both filter states.
func (t *Tracker) Reset() {
	t.samples = t.samples[:0]
	t.latFilter.reset()
	t.lonFilter.reset()
}

// SampleCount returns the number of buffered samples.
func (t *Tracker) SampleCount() int {
	return len(t.samples)
}

// projectForward dead-reckons a fix along its heading for the elapsed time
// using the flat-earth approximation, inflating accuracy to reflect
// prediction uncertainty.
func projectForward(s Sample, elapsed time.Duration) Sample {
	distance := *s.Speed * elapsed.Seconds()
	headingRad := *s.Heading * math.Pi / 180.0
	north := distance * math.Cos(headingRad)
	east := distance * math.Sin(headingRad)

	projected := s
	projected.Lat = s.Lat + north/MetersPerDegreeLat
	projected.Lon = s.Lon + east/(MetersPerDegreeLat*math.Cos(s.Lat*math.Pi/180.0))
	projected.Accuracy = s.Accuracy * predictionAccuracyFactor
	return projected
}

func lerp(a, b, ratio float64) float64 {
	return a + (b-a)*ratio
}

func lerpOptional(a, b *float64, ratio float64) *float64 {
	if a == nil || b == nil {
		return a
	}
	v := lerp(*a, *b, ratio)
	return &v
}

// lerpHeading interpolates along the shortest angular path, normalized to
// [0,360).
func lerpHeading(a, b *float64, ratio float64) *float64 {
	if a == nil || b == nil {
		return a
	}
	diff := math.Mod(*b-*a+540.0, 360.0) - 180.0
	v := math.Mod(*a+diff*ratio+360.0, 360.0)
	return &v
}
