// Package dedup is the final gate deciding whether a newly-seen detection
// becomes a persisted, counted report: candidate geolocations are quantized
// into fixed-size grid cells and repeats of the same cell are suppressed
// within short- and session-scoped TTL windows.
package dedup

import (
	"fmt"
	"math"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/geo"
)

// minLonScale keeps the longitude step finite near the poles.
const minLonScale = 1e-6

// CellKey derives a deterministic grid-cell key from a coordinate and a cell
// size in meters. Two points map to the same key iff they fall in the same
// quantized cell at that resolution. Longitude shrinkage is corrected by
// cos(latitude).
func CellKey(lat, lon, cellSizeMeters float64) string {
	latStep := cellSizeMeters / geo.MetersPerDegreeLat
	lonScale := math.Abs(math.Cos(lat * math.Pi / 180.0))
	if lonScale < minLonScale {
		lonScale = minLonScale
	}
	lonStep := cellSizeMeters / (geo.MetersPerDegreeLat * lonScale)

	latIdx := int64(math.Floor(lat / latStep))
	lonIdx := int64(math.Floor(lon / lonStep))
	return fmt.Sprintf("%d:%d:%g", latIdx, lonIdx, cellSizeMeters)
}
