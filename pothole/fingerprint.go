package pothole

import (
	"time"

	"github.com/google/uuid"
)

const (
	// Similarity weights: position dominates, then relative size, then shape.
	weightCenter = 0.60
	weightSize   = 0.25
	weightAspect = 0.15
)

// FingerprintParams holds the tunable knobs of a FingerprintTracker. Zero
// fields fall back to the defaults.
type FingerprintParams struct {
	// MaxDissimilarity is the largest dissimilarity at which a detection
	// still merges into an existing fingerprint.
	MaxDissimilarity float64
	// TTL forgets fingerprints idle beyond this window.
	TTL time.Duration
	// ConfidenceFloor excludes weaker detections from matching entirely.
	ConfidenceFloor float64
	// Smoothing is the exponential factor for center/size updates on a match.
	Smoothing float64
}

// DefaultFingerprintParams returns the production defaults.
func DefaultFingerprintParams() FingerprintParams {
	return FingerprintParams{
		MaxDissimilarity: 0.10,
		TTL:              8000 * time.Millisecond,
		ConfidenceFloor:  0.40,
		Smoothing:        0.3,
	}
}

// Fingerprint is the session-scoped identity record for one physical pothole:
// its approximate normalized position, shape and size, plus observation
// bookkeeping. A fingerprint is counted exactly once, at creation.
type Fingerprint struct {
	ID        uuid.UUID
	Center    Point
	Aspect    float64
	RelSize   float64
	FirstSeen time.Time
	LastSeen  time.Time
	SeenCount int
	Counted   bool
}

// NewPothole pairs a first-sight detection with the fingerprint it spawned.
type NewPothole struct {
	Detection   Detection
	Fingerprint *Fingerprint
}

// FrameResult is the outcome of processing one frame's detections.
// AllDetections always carries the full unfiltered input (display path);
// NewPotholes carries only never-before-seen detections eligible for counting.
type FrameResult struct {
	AllDetections []Detection
	NewPotholes   []NewPothole
}

// FingerprintTracker performs session-scoped novelty detection: it decides,
// per detection, whether this is a new physical pothole or a re-observation of
// a tracked one. Counting happens at first sight; the smoother upstream has
// already absorbed single-frame noise.
type FingerprintTracker struct {
	params       FingerprintParams
	fingerprints map[uuid.UUID]*Fingerprint
	counted      map[uuid.UUID]struct{}
}

// NewFingerprintTracker creates an empty tracker with default parameters.
func NewFingerprintTracker() *FingerprintTracker {
	return NewFingerprintTrackerWithParams(DefaultFingerprintParams())
}

// NewFingerprintTrackerWithParams creates an empty tracker with explicit
// parameters.
func NewFingerprintTrackerWithParams(params FingerprintParams) *FingerprintTracker {
	defaults := DefaultFingerprintParams()
	if params.MaxDissimilarity <= 0 {
		params.MaxDissimilarity = defaults.MaxDissimilarity
	}
	if params.TTL <= 0 {
		params.TTL = defaults.TTL
	}
	if params.ConfidenceFloor <= 0 {
		params.ConfidenceFloor = defaults.ConfidenceFloor
	}
	if params.Smoothing <= 0 {
		params.Smoothing = defaults.Smoothing
	}
	return &FingerprintTracker{
		params:       params,
		fingerprints: make(map[uuid.UUID]*Fingerprint),
		counted:      make(map[uuid.UUID]struct{}),
	}
}

// ProcessDetections matches one frame's detections against known fingerprints.
// Detections below the confidence floor, and degenerate boxes, are skipped for
// matching but still appear in AllDetections. Calls must be made in
// non-decreasing timestamp order.
func (ft *FingerprintTracker) ProcessDetections(detections []Detection, frameWidth, frameHeight float64, now time.Time) FrameResult {
	ft.evictStale(now)

	result := FrameResult{AllDetections: detections}
	for _, det := range detections {
		if det.Confidence < ft.params.ConfidenceFloor {
			continue
		}
		desc, ok := makeDescriptor(det, frameWidth, frameHeight)
		if !ok {
			continue
		}

		if match := ft.bestMatch(desc); match != nil {
			match.LastSeen = now
			match.SeenCount++
			match.Center.X += ft.params.Smoothing * (desc.center.X - match.Center.X)
			match.Center.Y += ft.params.Smoothing * (desc.center.Y - match.Center.Y)
			match.RelSize += ft.params.Smoothing * (desc.relSize - match.RelSize)
			continue
		}

		fp := &Fingerprint{
			ID:        uuid.New(),
			Center:    desc.center,
			Aspect:    desc.aspect,
			RelSize:   desc.relSize,
			FirstSeen: now,
			LastSeen:  now,
			SeenCount: 1,
			Counted:   true,
		}
		ft.fingerprints[fp.ID] = fp
		ft.counted[fp.ID] = struct{}{}
		result.NewPotholes = append(result.NewPotholes, NewPothole{
			Detection:   det,
			Fingerprint: fp,
		})
	}
	return result
}

// Reset clears all identity state. Called on session end.
func (ft *FingerprintTracker) Reset() {
	ft.fingerprints = make(map[uuid.UUID]*Fingerprint)
	ft.counted = make(map[uuid.UUID]struct{})
}

// CountedTotal returns how many distinct potholes were counted this session.
// The tally is cumulative: a fingerprint whose TTL expires drops out of
// matching but stays counted, so the total never decreases within a session.
// Only Reset clears it.
func (ft *FingerprintTracker) CountedTotal() int {
	return len(ft.counted)
}

// ActiveFingerprints returns the number of live (not yet expired) fingerprints.
func (ft *FingerprintTracker) ActiveFingerprints() int {
	return len(ft.fingerprints)
}

// bestMatch returns the fingerprint with the highest similarity among those
// within the merge threshold, or nil. Best match, not first match: ties break
// toward the highest similarity.
func (ft *FingerprintTracker) bestMatch(desc descriptor) *Fingerprint {
	var best *Fingerprint
	bestSimilarity := 0.0
	for _, fp := range ft.fingerprints {
		sim := similarity(desc, fp)
		if 1.0-sim > ft.params.MaxDissimilarity {
			continue
		}
		if sim > bestSimilarity {
			bestSimilarity = sim
			best = fp
		}
	}
	return best
}

// similarity scores a detection descriptor against a fingerprint as a weighted
// sum of center proximity, relative-size agreement and aspect agreement, each
// clamped to [0,1].
func similarity(desc descriptor, fp *Fingerprint) float64 {
	centerScore := clamp01(1.0 - euclideanDistance(desc.center, fp.Center))
	sizeScore := clamp01(1.0 - relativeDiff(desc.relSize, fp.RelSize))
	aspectScore := clamp01(1.0 - relativeDiff(desc.aspect, fp.Aspect))
	return weightCenter*centerScore + weightSize*sizeScore + weightAspect*aspectScore
}

func relativeDiff(a, b float64) float64 {
	max := a
	if b > max {
		max = b
	}
	if max <= 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / max
}

func (ft *FingerprintTracker) evictStale(now time.Time) {
	// Expired fingerprints stay in the counted set: the session tally is
	// cumulative, forgetting identity must not un-count a pothole.
	for id, fp := range ft.fingerprints {
		if now.Sub(fp.LastSeen) > ft.params.TTL {
			delete(ft.fingerprints, id)
		}
	}
}
