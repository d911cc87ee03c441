package dedup

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/geo"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/pothole"
)

const (
	// Assumed distance in meters between the camera and a detected pothole,
	// scaled by the detection's normalized offset from frame center to place
	// the report slightly left/right/ahead of the GPS position.
	cameraRangeMeters = 5.0

	// Speed bounds for the adaptive short TTL.
	highwaySpeed    = 10.0 // m/s
	stationarySpeed = 1.0  // m/s
)

// Params holds the tunable knobs of a Deduplicator.
type Params struct {
	// ShortTTL suppresses re-reports of a cell over a short horizon.
	ShortTTL time.Duration
	// SessionTTL suppresses re-reports of a cell for (most of) a session.
	SessionTTL time.Duration
	// CellSizeMeters is the grid resolution.
	CellSizeMeters float64
	// CenterGate restricts counting to detections near the frame center,
	// approximating "the object is roughly ahead of the vehicle".
	CenterGate    bool
	CenterGateMin float64
	CenterGateMax float64
	// ConfidenceFloor rejects weak detections before any spatial work.
	ConfidenceFloor float64
	// MaxCacheEntries caps each TTL cache; past it the cache is truncated to
	// its most recent half.
	MaxCacheEntries int
	// AcceptAll bypasses every gate and both TTL caches so each detection is
	// accepted unconditionally. Caches are still stamped. Testing/debug only.
	AcceptAll bool
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		ShortTTL:        30000 * time.Millisecond,
		SessionTTL:      900000 * time.Millisecond,
		CellSizeMeters:  12.0,
		CenterGate:      true,
		CenterGateMin:   0.35,
		CenterGateMax:   0.65,
		ConfidenceFloor: 0.25,
		MaxCacheEntries: 2048,
	}
}

// Report is an accepted, deduplicated pothole event. Never mutated after
// creation; the identity is deterministic given (cell key, timestamp).
type Report struct {
	ID        uuid.UUID `json:"id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// Deduplicator owns the two TTL caches and the session report history. One
// instance per camera session; cleared on session end.
type Deduplicator struct {
	params       Params
	shortCache   map[string]time.Time
	sessionCache map[string]time.Time
	history      []Report
}

// NewDeduplicator creates a deduplicator with default parameters.
func NewDeduplicator() *Deduplicator {
	return NewDeduplicatorWithParams(DefaultParams())
}

// NewDeduplicatorWithParams creates a deduplicator with explicit parameters.
func NewDeduplicatorWithParams(params Params) *Deduplicator {
	return &Deduplicator{
		params:       params,
		shortCache:   make(map[string]time.Time),
		sessionCache: make(map[string]time.Time),
	}
}

// RegisterDetections converts newly-seen detections into geolocated reports,
// suppressing repeats of the same grid cell within the active TTL windows.
// Within one call at most one report is produced per cell. userSpeed (m/s,
// nil when unknown) adapts the short TTL to travel speed.
func (d *Deduplicator) RegisterDetections(detections []pothole.Detection, frameWidth, frameHeight float64, userLat, userLon float64, userSpeed *float64, now time.Time) []Report {
	shortTTL := d.effectiveShortTTL(userSpeed)
	d.prune(now, shortTTL)

	countedCells := make(map[string]struct{})
	var accepted []Report
	for _, det := range detections {
		if !d.params.AcceptAll {
			if det.BBox.Width <= 0 || det.BBox.Height <= 0 || frameWidth <= 0 || frameHeight <= 0 {
				continue
			}
			center := det.BBox.NormalizedCenter(frameWidth, frameHeight)
			if d.params.CenterGate && !d.insideGate(center) {
				continue
			}
			if det.Confidence < d.params.ConfidenceFloor {
				continue
			}
		}

		lat, lon := d.worldCoordinate(det, frameWidth, frameHeight, userLat, userLon)
		key := CellKey(lat, lon, d.params.CellSizeMeters)

		if !d.params.AcceptAll {
			if _, found := countedCells[key]; found {
				continue
			}
			if stamp, found := d.shortCache[key]; found && now.Sub(stamp) <= shortTTL {
				continue
			}
			if stamp, found := d.sessionCache[key]; found && now.Sub(stamp) <= d.params.SessionTTL {
				continue
			}
		}

		d.shortCache[key] = now
		d.sessionCache[key] = now
		countedCells[key] = struct{}{}

		report := Report{
			ID:        reportID(key, now),
			Lat:       lat,
			Lon:       lon,
			Timestamp: now,
		}
		d.history = append(d.history, report)
		accepted = append(accepted, report)
	}
	return accepted
}

// History returns a copy of the session's accepted reports.
func (d *Deduplicator) History() []Report {
	out := make([]Report, len(d.history))
	copy(out, d.history)
	return out
}

// Count returns the number of accepted reports this session.
func (d *Deduplicator) Count() int {
	return len(d.history)
}

// Reset clears both caches and the session history. Called on session end.
func (d *Deduplicator) Reset() {
	d.shortCache = make(map[string]time.Time)
	d.sessionCache = make(map[string]time.Time)
	d.history = nil
}

// effectiveShortTTL adapts the short window to travel speed: at highway speed
// the same pothole is passed only once, so count more frequently; while
// stationary, position drift must not re-count the same spot.
func (d *Deduplicator) effectiveShortTTL(speed *float64) time.Duration {
	base := d.params.ShortTTL
	if speed == nil {
		return base
	}
	switch {
	case *speed > highwaySpeed:
		shortened := time.Duration(0.67 * float64(base))
		floor := 20000 * time.Millisecond
		if shortened < floor {
			return floor
		}
		return shortened
	case *speed < stationarySpeed:
		lengthened := 60000 * time.Millisecond
		if base > lengthened {
			return base
		}
		return lengthened
	default:
		return base
	}
}

func (d *Deduplicator) insideGate(center pothole.Point) bool {
	return center.X >= d.params.CenterGateMin && center.X <= d.params.CenterGateMax &&
		center.Y >= d.params.CenterGateMin && center.Y <= d.params.CenterGateMax
}

// worldCoordinate offsets the user position by a small angular delta
// proportional to the detection's normalized offset from frame center,
// correcting longitude by cos(latitude).
func (d *Deduplicator) worldCoordinate(det pothole.Detection, frameWidth, frameHeight, userLat, userLon float64) (float64, float64) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return userLat, userLon
	}
	center := det.BBox.NormalizedCenter(frameWidth, frameHeight)
	north := (0.5 - center.Y) * cameraRangeMeters
	east := (center.X - 0.5) * cameraRangeMeters

	lonScale := math.Abs(math.Cos(userLat * math.Pi / 180.0))
	if lonScale < minLonScale {
		lonScale = minLonScale
	}
	lat := userLat + north/geo.MetersPerDegreeLat
	lon := userLon + east/(geo.MetersPerDegreeLat*lonScale)
	return lat, lon
}

// prune drops expired entries from both caches and, past the hard cap,
// truncates each cache to its most recent half to bound memory. The short
// cache is pruned with the speed-adjusted TTL so a lengthened window keeps
// its stamps alive.
func (d *Deduplicator) prune(now time.Time, shortTTL time.Duration) {
	pruneCache(d.shortCache, now, shortTTL, d.params.MaxCacheEntries)
	pruneCache(d.sessionCache, now, d.params.SessionTTL, d.params.MaxCacheEntries)
}

func pruneCache(cache map[string]time.Time, now time.Time, ttl time.Duration, maxEntries int) {
	for key, stamp := range cache {
		if now.Sub(stamp) > ttl {
			delete(cache, key)
		}
	}
	if maxEntries <= 0 || len(cache) <= maxEntries {
		return
	}
	type entry struct {
		key   string
		stamp time.Time
	}
	entries := make([]entry, 0, len(cache))
	for key, stamp := range cache {
		entries = append(entries, entry{key, stamp})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].stamp.After(entries[j].stamp)
	})
	for _, e := range entries[maxEntries/2:] {
		delete(cache, e.key)
	}
}

// reportID derives a stable identifier from the cell key and timestamp so the
// same accepted event always maps to the same id.
func reportID(key string, timestamp time.Time) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%d", key, timestamp.UnixMilli())))
}
