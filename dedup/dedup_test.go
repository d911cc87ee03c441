package dedup

import (
	"math"
	"testing"
	"time"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/pothole"
)

func f64(v float64) *float64 { return &v }

func centeredDetection() pothole.Detection {
	return pothole.Detection{
		BBox:       pothole.NewRect(300, 300, 40, 40),
		Confidence: 0.9,
		Class:      pothole.ClassPothole,
	}
}

func TestDedupAcceptsFirstReport(t *testing.T) {
	d := NewDeduplicator()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	reports := d.RegisterDetections([]pothole.Detection{centeredDetection()}, 640, 640, 10, 20, nil, t0)
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.Lat != 10 || r.Lon != 20 {
		t.Errorf("Expected centered detection at user position, got (%f, %f)", r.Lat, r.Lon)
	}
	if !r.Timestamp.Equal(t0) {
		t.Errorf("Expected report timestamp %v, got %v", t0, r.Timestamp)
	}
	if d.Count() != 1 {
		t.Errorf("Expected history count 1, got %d", d.Count())
	}
}

func TestDedupTTLTimeline(t *testing.T) {
	d := NewDeduplicator()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	det := []pothole.Detection{centeredDetection()}

	if got := len(d.RegisterDetections(det, 640, 640, 10, 20, nil, t0)); got != 1 {
		t.Fatalf("t=0: expected 1 report, got %d", got)
	}
	// Inside the short window
	if got := len(d.RegisterDetections(det, 640, 640, 10, 20, nil, t0.Add(10*time.Second))); got != 0 {
		t.Errorf("t=10s: expected suppression by short cache, got %d", got)
	}
	// Short window expired, session window still holds
	if got := len(d.RegisterDetections(det, 640, 640, 10, 20, nil, t0.Add(40*time.Second))); got != 0 {
		t.Errorf("t=40s: expected suppression by session cache, got %d", got)
	}
	// Both windows expired
	if got := len(d.RegisterDetections(det, 640, 640, 10, 20, nil, t0.Add(901*time.Second))); got != 1 {
		t.Errorf("t=901s: expected re-acceptance, got %d", got)
	}
	if d.Count() != 2 {
		t.Errorf("Expected 2 accepted reports total, got %d", d.Count())
	}
}

func TestDedupOneReportPerCellPerCall(t *testing.T) {
	d := NewDeduplicator()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Two detections in the same frame mapping to the same cell
	dets := []pothole.Detection{centeredDetection(), centeredDetection()}
	reports := d.RegisterDetections(dets, 640, 640, 10, 20, nil, t0)
	if len(reports) != 1 {
		t.Errorf("Expected 1 report per cell per call, got %d", len(reports))
	}
}

func TestDedupHighwaySpeedShortensTTL(t *testing.T) {
	params := DefaultParams()
	params.SessionTTL = time.Millisecond
	d := NewDeduplicatorWithParams(params)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	det := []pothole.Detection{centeredDetection()}

	d.RegisterDetections(det, 640, 640, 10, 20, f64(15), t0)

	// 0.67 * 30s ≈ 20.1s: still suppressed at 10s, free again at 21s
	if got := len(d.RegisterDetections(det, 640, 640, 10, 20, f64(15), t0.Add(10*time.Second))); got != 0 {
		t.Errorf("t=10s: expected suppression at highway speed, got %d", got)
	}
	if got := len(d.RegisterDetections(det, 640, 640, 10, 20, f64(15), t0.Add(21*time.Second))); got != 1 {
		t.Errorf("t=21s: expected shortened TTL to expire, got %d", got)
	}
}

func TestDedupStationaryLengthensTTL(t *testing.T) {
	params := DefaultParams()
	params.SessionTTL = time.Millisecond
	d := NewDeduplicatorWithParams(params)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	det := []pothole.Detection{centeredDetection()}

	d.RegisterDetections(det, 640, 640, 10, 20, f64(0.3), t0)

	// While stationary the base 30s window stretches to 60s
	if got := len(d.RegisterDetections(det, 640, 640, 10, 20, f64(0.3), t0.Add(40*time.Second))); got != 0 {
		t.Errorf("t=40s: expected suppression while stationary, got %d", got)
	}
	if got := len(d.RegisterDetections(det, 640, 640, 10, 20, f64(0.3), t0.Add(61*time.Second))); got != 1 {
		t.Errorf("t=61s: expected lengthened TTL to expire, got %d", got)
	}
}

func TestDedupCenterGate(t *testing.T) {
	d := NewDeduplicator()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Normalized center (0.195, 0.195) sits outside the [0.35, 0.65] gate
	corner := pothole.Detection{BBox: pothole.NewRect(100, 100, 50, 50), Confidence: 0.9, Class: pothole.ClassPothole}
	if got := len(d.RegisterDetections([]pothole.Detection{corner}, 640, 640, 10, 20, nil, t0)); got != 0 {
		t.Errorf("Expected off-center detection rejected, got %d reports", got)
	}

	params := DefaultParams()
	params.CenterGate = false
	open := NewDeduplicatorWithParams(params)
	if got := len(open.RegisterDetections([]pothole.Detection{corner}, 640, 640, 10, 20, nil, t0)); got != 1 {
		t.Errorf("Expected off-center detection accepted with gate disabled, got %d", got)
	}
}

func TestDedupConfidenceFloor(t *testing.T) {
	d := NewDeduplicator()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	weak := centeredDetection()
	weak.Confidence = 0.2
	if got := len(d.RegisterDetections([]pothole.Detection{weak}, 640, 640, 10, 20, nil, t0)); got != 0 {
		t.Errorf("Expected weak detection rejected, got %d reports", got)
	}
}

func TestDedupAcceptAllBypassesCaches(t *testing.T) {
	params := DefaultParams()
	params.AcceptAll = true
	d := NewDeduplicatorWithParams(params)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Off-center and weak detections pass, and the same cell is accepted
	// again well inside both TTL windows
	corner := pothole.Detection{BBox: pothole.NewRect(100, 100, 50, 50), Confidence: 0.1, Class: pothole.ClassPothole}
	if got := len(d.RegisterDetections([]pothole.Detection{corner}, 640, 640, 10, 20, nil, t0)); got != 1 {
		t.Fatalf("Expected gated detection accepted with AcceptAll, got %d", got)
	}
	if got := len(d.RegisterDetections([]pothole.Detection{corner}, 640, 640, 10, 20, nil, t0.Add(time.Second))); got != 1 {
		t.Fatalf("Expected repeat cell accepted with AcceptAll, got %d", got)
	}
	if d.Count() != 2 {
		t.Errorf("Expected 2 reports in history, got %d", d.Count())
	}
}

func TestDedupOffsetDetectionsLandInDistinctCells(t *testing.T) {
	// Left-edge and right-edge detections project a few meters apart;
	// with a small cell they resolve to different cells
	params := DefaultParams()
	params.CenterGate = false
	params.CellSizeMeters = 1.0
	d := NewDeduplicatorWithParams(params)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	left := pothole.Detection{BBox: pothole.NewRect(0, 300, 40, 40), Confidence: 0.9, Class: pothole.ClassPothole}
	right := pothole.Detection{BBox: pothole.NewRect(600, 300, 40, 40), Confidence: 0.9, Class: pothole.ClassPothole}
	reports := d.RegisterDetections([]pothole.Detection{left, right}, 640, 640, 10, 20, nil, t0)
	if len(reports) != 2 {
		t.Errorf("Expected 2 reports in distinct 1m cells, got %d", len(reports))
	}
}

func TestDedupProjectsOffsetReport(t *testing.T) {
	params := DefaultParams()
	params.CenterGate = false
	d := NewDeduplicatorWithParams(params)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Center (0.1953, 0.1953): up-left of frame center, so the report lands
	// north-west of the user position by the camera-range projection
	det := pothole.Detection{BBox: pothole.NewRect(100, 100, 50, 50), Confidence: 0.9, Class: pothole.ClassPothole}
	reports := d.RegisterDetections([]pothole.Detection{det}, 640, 640, 10, 20, nil, t0)
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}

	offset := (0.5 - 125.0/640.0) * 5.0
	wantLat := 10.0 + offset/111320.0
	wantLon := 20.0 - offset/(111320.0*math.Cos(10.0*math.Pi/180.0))
	if math.Abs(reports[0].Lat-wantLat) > 1e-12 {
		t.Errorf("Expected lat %.12f, got %.12f", wantLat, reports[0].Lat)
	}
	if math.Abs(reports[0].Lon-wantLon) > 1e-12 {
		t.Errorf("Expected lon %.12f, got %.12f", wantLon, reports[0].Lon)
	}
	if d.Count() != 1 {
		t.Errorf("Expected 1 entry in session history, got %d", d.Count())
	}
}

func TestDedupDeterministicReportID(t *testing.T) {
	d := NewDeduplicator()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := d.RegisterDetections([]pothole.Detection{centeredDetection()}, 640, 640, 10, 20, nil, t0)
	d.Reset()
	second := d.RegisterDetections([]pothole.Detection{centeredDetection()}, 640, 640, 10, 20, nil, t0)
	if first[0].ID != second[0].ID {
		t.Errorf("Expected deterministic report ID, got %s and %s", first[0].ID, second[0].ID)
	}
}

func TestDedupCacheTruncation(t *testing.T) {
	cache := make(map[string]time.Time)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	keys := []string{"a", "b", "c", "d", "e", "f"}
	for i, key := range keys {
		cache[key] = t0.Add(time.Duration(i) * time.Second)
	}

	pruneCache(cache, t0.Add(10*time.Second), time.Hour, 4)
	if len(cache) != 2 {
		t.Fatalf("Expected cache truncated to 2 entries, got %d", len(cache))
	}
	for _, key := range []string{"e", "f"} {
		if _, found := cache[key]; !found {
			t.Errorf("Expected most recent entry %q to survive truncation", key)
		}
	}
}

func TestDedupReset(t *testing.T) {
	d := NewDeduplicator()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	d.RegisterDetections([]pothole.Detection{centeredDetection()}, 640, 640, 10, 20, nil, t0)
	d.Reset()
	if d.Count() != 0 {
		t.Errorf("Expected empty history after reset, got %d", d.Count())
	}
	if got := len(d.RegisterDetections([]pothole.Detection{centeredDetection()}, 640, 640, 10, 20, nil, t0)); got != 1 {
		t.Errorf("Expected acceptance after reset, got %d", got)
	}
}
