package pothole

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// SmootherParams holds the tunable knobs of a DetectionSmoother. Zero fields
// fall back to the defaults.
type SmootherParams struct {
	// WindowSize is the number of recent detections averaged per track.
	WindowSize int
	// MinVotes is how many observations confirm a track.
	MinVotes int
	// TrackTTL evicts tracks not refreshed within this window.
	TrackTTL time.Duration
	// MatchDistance is the max normalized center distance for a detection
	// to join a track.
	MatchDistance float64
	// ConfidenceFloor is the smoothed confidence a track must clear before
	// it is confirmed.
	ConfidenceFloor float64
}

// DefaultSmootherParams returns the production defaults.
func DefaultSmootherParams() SmootherParams {
	return SmootherParams{
		WindowSize:      3,
		MinVotes:        2,
		TrackTTL:        1000 * time.Millisecond,
		MatchDistance:   0.1,
		ConfidenceFloor: 0.6,
	}
}

// smootherTrack is a short-lived hypothesis that consecutive per-frame
// detections refer to the same object. It keeps a bounded window of recent
// detections plus their timestamps.
type smootherTrack struct {
	window      []Detection
	stamps      []time.Time
	votes       int
	avgConf     float64
	lastCenter  Point
	lastUpdated time.Time
}

// DetectionSmoother suppresses single-frame false positives by requiring an
// object to reappear across a short sliding window of frames before it is
// confirmed. It operates purely in frame space and is reset per camera session.
type DetectionSmoother struct {
	// Kept in insertion order: matching is first-track-within-distance,
	// not best match, so iteration order must be deterministic.
	tracks          []*smootherTrack
	windowSize      int
	minVotes        int
	trackTTL        time.Duration
	matchDistance   float64
	confidenceFloor float64
}

// NewDetectionSmoother creates a smoother with the default window of 3 frames
// and 2 votes to confirm.
func NewDetectionSmoother() *DetectionSmoother {
	return NewDetectionSmootherWithParams(DefaultSmootherParams())
}

// NewDetectionSmootherWithParams creates a smoother with explicit parameters.
func NewDetectionSmootherWithParams(params SmootherParams) *DetectionSmoother {
	defaults := DefaultSmootherParams()
	if params.WindowSize <= 0 {
		params.WindowSize = defaults.WindowSize
	}
	if params.MinVotes <= 0 {
		params.MinVotes = defaults.MinVotes
	}
	if params.TrackTTL <= 0 {
		params.TrackTTL = defaults.TrackTTL
	}
	if params.MatchDistance <= 0 {
		params.MatchDistance = defaults.MatchDistance
	}
	if params.ConfidenceFloor <= 0 {
		params.ConfidenceFloor = defaults.ConfidenceFloor
	}
	return &DetectionSmoother{
		windowSize:      params.WindowSize,
		minVotes:        params.MinVotes,
		trackTTL:        params.TrackTTL,
		matchDistance:   params.MatchDistance,
		confidenceFloor: params.ConfidenceFloor,
	}
}

// SetFrameRate re-derives window size and vote threshold from a
// frames-per-second estimate. Low frame rates accept more readily since fewer
// samples are available per unit time.
func (s *DetectionSmoother) SetFrameRate(fps float64) {
	switch {
	case fps > 15:
		s.windowSize, s.minVotes = 3, 2
	case fps > 8:
		s.windowSize, s.minVotes = 2, 2
	default:
		s.windowSize, s.minVotes = 2, 1
	}
}

// ProcessFrame ingests one frame's detections and returns the confirmed
// (window-averaged) detections. fps <= 0 leaves the current window/vote
// parameters unchanged. Calls must be made in non-decreasing timestamp order.
func (s *DetectionSmoother) ProcessFrame(detections []Detection, frameWidth, frameHeight float64, now time.Time, fps float64) []Detection {
	if fps > 0 {
		s.SetFrameRate(fps)
	}
	s.evictStale(now)

	confirmed := make([]Detection, 0, len(detections))
	for _, det := range detections {
		if frameWidth <= 0 || frameHeight <= 0 {
			continue
		}
		center := det.BBox.NormalizedCenter(frameWidth, frameHeight)

		track := s.findTrack(center)
		if track == nil {
			s.tracks = append(s.tracks, &smootherTrack{
				window:      []Detection{det},
				stamps:      []time.Time{now},
				votes:       1,
				avgConf:     det.Confidence,
				lastCenter:  center,
				lastUpdated: now,
			})
			continue
		}

		track.window = append(track.window, det)
		track.stamps = append(track.stamps, now)
		if len(track.window) > s.windowSize {
			track.window = track.window[1:]
			track.stamps = track.stamps[1:]
		}
		track.votes++
		track.avgConf = stat.Mean(confidences(track.window), nil)
		track.lastCenter = center
		track.lastUpdated = now

		if track.votes >= s.minVotes && track.avgConf >= s.confidenceFloor {
			confirmed = append(confirmed, track.averaged())
		}
	}
	return confirmed
}

// Reset drops all track state. Called on session end.
func (s *DetectionSmoother) Reset() {
	s.tracks = nil
}

// TrackCount returns the number of live track hypotheses.
func (s *DetectionSmoother) TrackCount() int {
	return len(s.tracks)
}

// findTrack returns the first track whose last center lies within the match
// distance. First match wins; no global optimal assignment is attempted.
func (s *DetectionSmoother) findTrack(center Point) *smootherTrack {
	for _, track := range s.tracks {
		if euclideanDistance(track.lastCenter, center) < s.matchDistance {
			return track
		}
	}
	return nil
}

func (s *DetectionSmoother) evictStale(now time.Time) {
	kept := s.tracks[:0]
	for _, track := range s.tracks {
		if now.Sub(track.lastUpdated) <= s.trackTTL {
			kept = append(kept, track)
		}
	}
	s.tracks = kept
}

// averaged returns a synthetic detection whose box is the arithmetic mean of
// the window's boxes and whose confidence is the window average. The class is
// taken from the oldest detection in the window.
func (t *smootherTrack) averaged() Detection {
	var sum Rectangle
	for _, det := range t.window {
		sum.X += det.BBox.X
		sum.Y += det.BBox.Y
		sum.Width += det.BBox.Width
		sum.Height += det.BBox.Height
	}
	n := float64(len(t.window))
	return Detection{
		BBox: Rectangle{
			X:      sum.X / n,
			Y:      sum.Y / n,
			Width:  sum.Width / n,
			Height: sum.Height / n,
		},
		Confidence: t.avgConf,
		Class:      t.window[0].Class,
	}
}

func confidences(dets []Detection) []float64 {
	vals := make([]float64, len(dets))
	for i, det := range dets {
		vals[i] = det.Confidence
	}
	return vals
}
