package pothole

import (
	"math"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/arthurkushman/go-hungarian"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MatchingAlgorithm selects how display detections are assigned to tracks.
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmGreedy assigns best pairs first via a priority queue.
	MatchingAlgorithmGreedy MatchingAlgorithm = iota
	// MatchingAlgorithmHungarian uses Kuhn-Munkres for optimal assignment.
	MatchingAlgorithmHungarian
)

// displayTrack is one on-screen object with an 8-D Kalman bounding-box state:
// [cx, cy, w, h, vx, vy, vw, vh].
type displayTrack struct {
	id            uuid.UUID
	currentBBox   Rectangle
	predictedBBox Rectangle
	misses        int
	filter        *kalman_filter.KalmanBBox
}

func newDisplayTrack(bbox Rectangle) *displayTrack {
	center := bbox.Center()

	// Kalman filter props
	dt := 1.0
	uCx, uCy := 1.0, 1.0
	uW, uH := 0.0, 0.0
	stdDevA := 2.0
	stdDevMCx, stdDevMCy := 0.1, 0.1
	stdDevMW, stdDevMH := 0.1, 0.1
	kf := kalman_filter.NewKalmanBBox(
		dt, uCx, uCy, uW, uH,
		stdDevA, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
		kalman_filter.WithStateBBox(center.X, center.Y, bbox.Width, bbox.Height),
	)
	return &displayTrack{
		id:            uuid.New(),
		currentBBox:   bbox,
		predictedBBox: bbox,
		filter:        kf,
	}
}

func (t *displayTrack) predict() {
	t.filter.Predict()
	cx, cy, w, h := t.filter.GetState()
	t.predictedBBox = Rectangle{
		X:      cx - w/2.0,
		Y:      cy - h/2.0,
		Width:  w,
		Height: h,
	}
}

func (t *displayTrack) update(bbox Rectangle) error {
	center := bbox.Center()
	if err := t.filter.Update(center.X, center.Y, bbox.Width, bbox.Height); err != nil {
		return errors.Wrap(err, "Can't update display track")
	}
	cx, cy, w, h := t.filter.GetState()
	t.currentBBox = Rectangle{
		X:      cx - w/2.0,
		Y:      cy - h/2.0,
		Width:  w,
		Height: h,
	}
	t.misses = 0
	return nil
}

// Stabilizer smooths the on-screen bounding boxes of the display detection
// stream across frames. Matching is confidence-banded: high-confidence
// detections are associated first, low-confidence ones may still refresh a
// track that would otherwise coast. The stabilizer feeds the overlay only; it
// has no influence on novelty detection or counting.
type Stabilizer struct {
	maxMisses  int
	minIoU     float64
	highThresh float64
	lowThresh  float64
	algorithm  MatchingAlgorithm
	tracks     map[uuid.UUID]*displayTrack
}

// NewStabilizer creates a stabilizer with defaults suited to handheld phone
// footage: short disappearance budget, loose IoU gate, greedy assignment.
func NewStabilizer() *Stabilizer {
	return &Stabilizer{
		maxMisses:  5,
		minIoU:     0.3,
		highThresh: 0.5,
		lowThresh:  0.3,
		algorithm:  MatchingAlgorithmGreedy,
		tracks:     make(map[uuid.UUID]*displayTrack),
	}
}

// NewStabilizerWithParams creates a stabilizer with explicit parameters.
func NewStabilizerWithParams(maxMisses int, minIoU, highThresh, lowThresh float64, algorithm MatchingAlgorithm) *Stabilizer {
	return &Stabilizer{
		maxMisses:  maxMisses,
		minIoU:     minIoU,
		highThresh: highThresh,
		lowThresh:  lowThresh,
		algorithm:  algorithm,
		tracks:     make(map[uuid.UUID]*displayTrack),
	}
}

// Stabilize matches one frame's display detections to live tracks and returns
// a slice of the same length where matched detections carry Kalman-smoothed
// boxes. Unmatched detections pass through unchanged.
func (st *Stabilizer) Stabilize(detections []Detection) ([]Detection, error) {
	for _, track := range st.tracks {
		track.predict()
	}

	out := make([]Detection, len(detections))
	copy(out, detections)

	matchedTracks := make(map[uuid.UUID]struct{})
	matchedDets := make(map[int]struct{})

	// Stage 1: high-confidence detections against all live tracks.
	high := st.bandIndices(detections, matchedDets, st.highThresh, math.Inf(1))
	if err := st.associate(detections, out, high, matchedTracks, matchedDets); err != nil {
		return nil, err
	}

	// Stage 2: low-confidence detections against the leftover tracks.
	low := st.bandIndices(detections, matchedDets, st.lowThresh, st.highThresh)
	if err := st.associate(detections, out, low, matchedTracks, matchedDets); err != nil {
		return nil, err
	}

	// Coast unmatched tracks and drop the ones gone too long.
	for id, track := range st.tracks {
		if _, found := matchedTracks[id]; !found {
			track.misses++
		}
		if track.misses >= st.maxMisses {
			delete(st.tracks, id)
		}
	}

	// Unmatched high-confidence detections spawn new tracks.
	for _, idx := range high {
		if _, found := matchedDets[idx]; found {
			continue
		}
		track := newDisplayTrack(detections[idx].BBox)
		st.tracks[track.id] = track
	}
	return out, nil
}

// Reset drops all display tracks. Called on session end.
func (st *Stabilizer) Reset() {
	st.tracks = make(map[uuid.UUID]*displayTrack)
}

// TrackCount returns the number of live display tracks.
func (st *Stabilizer) TrackCount() int {
	return len(st.tracks)
}

// bandIndices returns indices of still-unmatched detections whose confidence
// lies in [lower, upper).
func (st *Stabilizer) bandIndices(detections []Detection, matchedDets map[int]struct{}, lower, upper float64) []int {
	indices := make([]int, 0, len(detections))
	for i, det := range detections {
		if _, found := matchedDets[i]; found {
			continue
		}
		if det.Confidence >= lower && det.Confidence < upper {
			indices = append(indices, i)
		}
	}
	return indices
}

// associate runs one matching stage over the given detection indices and the
// not-yet-matched tracks, updating matched tracks and writing their smoothed
// boxes into out.
func (st *Stabilizer) associate(detections, out []Detection, detIndices []int, matchedTracks map[uuid.UUID]struct{}, matchedDets map[int]struct{}) error {
	if len(detIndices) == 0 || len(st.tracks) == len(matchedTracks) {
		return nil
	}

	trackIDs := make([]uuid.UUID, 0, len(st.tracks))
	for id := range st.tracks {
		if _, found := matchedTracks[id]; !found {
			trackIDs = append(trackIDs, id)
		}
	}
	if len(trackIDs) == 0 {
		return nil
	}

	var pairs []*candidateMatch
	switch st.algorithm {
	case MatchingAlgorithmHungarian:
		pairs = st.matchHungarian(detections, detIndices, trackIDs)
	default:
		pairs = st.matchGreedy(detections, detIndices, trackIDs)
	}

	for _, pair := range pairs {
		track := st.tracks[pair.trackID]
		if err := track.update(detections[pair.detIndex].BBox); err != nil {
			return err
		}
		matchedTracks[pair.trackID] = struct{}{}
		matchedDets[pair.detIndex] = struct{}{}
		out[pair.detIndex].BBox = track.currentBBox
	}
	return nil
}

// matchGreedy pushes every pairing above the IoU gate into a max-heap and
// accepts best-first, skipping tracks and detections already taken.
func (st *Stabilizer) matchGreedy(detections []Detection, detIndices []int, trackIDs []uuid.UUID) []*candidateMatch {
	pq := make(scoreHeap, 0, len(detIndices)*len(trackIDs))
	for _, id := range trackIDs {
		track := st.tracks[id]
		for _, idx := range detIndices {
			iou := IoU(track.predictedBBox, detections[idx].BBox)
			if iou >= st.minIoU {
				pq.Push(&candidateMatch{score: iou, trackID: id, detIndex: idx})
			}
		}
	}

	usedTracks := make(map[uuid.UUID]struct{})
	usedDets := make(map[int]struct{})
	accepted := make([]*candidateMatch, 0, len(trackIDs))
	for pq.Len() > 0 {
		pair := pq.Pop()
		if _, found := usedTracks[pair.trackID]; found {
			continue
		}
		if _, found := usedDets[pair.detIndex]; found {
			continue
		}
		usedTracks[pair.trackID] = struct{}{}
		usedDets[pair.detIndex] = struct{}{}
		accepted = append(accepted, pair)
	}
	return accepted
}

// matchHungarian builds a (padded) square IoU matrix and solves the optimal
// assignment, keeping only pairings above the IoU gate.
func (st *Stabilizer) matchHungarian(detections []Detection, detIndices []int, trackIDs []uuid.UUID) []*candidateMatch {
	size := len(trackIDs)
	if len(detIndices) > size {
		size = len(detIndices)
	}
	matrix := make([][]float64, size)
	for i := range matrix {
		matrix[i] = make([]float64, size)
	}
	for i, id := range trackIDs {
		track := st.tracks[id]
		for j, idx := range detIndices {
			matrix[i][j] = IoU(track.predictedBBox, detections[idx].BBox)
		}
	}

	assignments := hungarian.SolveMax(matrix)
	accepted := make([]*candidateMatch, 0, len(trackIDs))
	for trackIdx, row := range assignments {
		if trackIdx >= len(trackIDs) {
			continue
		}
		for detIdx, iou := range row {
			if detIdx >= len(detIndices) || iou < st.minIoU {
				continue
			}
			accepted = append(accepted, &candidateMatch{
				score:    iou,
				trackID:  trackIDs[trackIdx],
				detIndex: detIndices[detIdx],
			})
		}
	}
	return accepted
}
