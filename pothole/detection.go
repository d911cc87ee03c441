package pothole

// ClassPothole is the single object class produced by the inference collaborator.
const ClassPothole = "pothole"

// Detection is one raw model output for one frame. It is ephemeral: produced
// once per frame, consumed immediately, never persisted.
type Detection struct {
	BBox       Rectangle
	Confidence float64
	Class      string
}

// descriptor is the frame-space footprint of a detection used for identity
// matching: where it is, how big it is relative to the frame and its shape.
type descriptor struct {
	center  Point
	aspect  float64
	relSize float64
}

// makeDescriptor computes a detection's descriptor. It reports false for
// degenerate boxes (non-positive width/height) and frames, which are excluded
// from matching entirely.
func makeDescriptor(d Detection, frameWidth, frameHeight float64) (descriptor, bool) {
	if d.BBox.Width <= 0 || d.BBox.Height <= 0 || frameWidth <= 0 || frameHeight <= 0 {
		return descriptor{}, false
	}
	return descriptor{
		center:  d.BBox.NormalizedCenter(frameWidth, frameHeight),
		aspect:  d.BBox.Width / d.BBox.Height,
		relSize: d.BBox.Area() / (frameWidth * frameHeight),
	}, true
}
