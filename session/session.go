// Package session wires the detection pipeline together for a single
// recording session: smoothing, per-session novelty, display stabilization,
// GPS tracking and cross-session spatial deduplication. A Session is not
// safe for concurrent use; feed it through a Loop when events arrive from
// multiple goroutines.
package session

import (
	"context"
	"time"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/dedup"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/geo"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/internal/config"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/internal/logger"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/internal/metrics"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/pothole"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/sink"
	"github.com/pkg/errors"
)

// Frame is one batch of detector output with the camera geometry and
// capture time it was produced under.
type Frame struct {
	Detections  []pothole.Detection
	FrameWidth  float64
	FrameHeight float64
	Timestamp   time.Time
	FPS         float64
}

// FrameOutput is everything one frame produced after the full pipeline.
type FrameOutput struct {
	// Display is the stabilized detection set for rendering.
	Display []pothole.Detection
	// NewPotholes are detections counted as first sightings this session.
	NewPotholes []pothole.NewPothole
	// Reports are the spatially deduplicated reports accepted this frame.
	Reports []dedup.Report
}

// Session owns one pipeline instance end to end.
type Session struct {
	smoother     *pothole.DetectionSmoother
	fingerprints *pothole.FingerprintTracker
	stabilizer   *pothole.Stabilizer
	gps          *geo.Tracker
	dedup        *dedup.Deduplicator

	reports sink.ReportSink
	log     *logger.Logger
	metrics *metrics.Metrics

	queueSize int
}

// New creates a Session from the given configuration. A nil cfg uses
// defaults; a nil reports sink disables publishing.
func New(cfg *config.Config, reports sink.ReportSink, log *logger.Logger, m *metrics.Metrics) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.New(logger.SILENT, nil)
	}
	if m == nil {
		m = metrics.New()
	}
	return &Session{
		smoother:     pothole.NewDetectionSmootherWithParams(smootherParams(cfg.Smoother)),
		fingerprints: pothole.NewFingerprintTrackerWithParams(fingerprintParams(cfg.Fingerprint)),
		stabilizer:   pothole.NewStabilizer(),
		gps:          geo.NewTrackerWithParams(trackerParams(cfg.GPS)),
		dedup:        dedup.NewDeduplicatorWithParams(dedupParams(cfg.Dedup)),
		reports:      reports,
		log:          log,
		metrics:      m,
		queueSize:    cfg.Queue.Size,
	}
}

func smootherParams(cfg config.SmootherConfig) pothole.SmootherParams {
	return pothole.SmootherParams{
		WindowSize:      cfg.WindowSize,
		MinVotes:        cfg.MinVotes,
		TrackTTL:        time.Duration(cfg.TrackTTLMS) * time.Millisecond,
		MatchDistance:   cfg.MatchDistance,
		ConfidenceFloor: cfg.ConfidenceFloor,
	}
}

func fingerprintParams(cfg config.FingerprintConfig) pothole.FingerprintParams {
	return pothole.FingerprintParams{
		MaxDissimilarity: cfg.MaxDissimilarity,
		TTL:              time.Duration(cfg.TTLMS) * time.Millisecond,
		ConfidenceFloor:  cfg.ConfidenceFloor,
		Smoothing:        cfg.Smoothing,
	}
}

func trackerParams(cfg config.GPSConfig) geo.TrackerParams {
	return geo.TrackerParams{
		BufferSize:       cfg.BufferSize,
		FreshWindow:      time.Duration(cfg.FreshWindowMS) * time.Millisecond,
		MinMovingSpeed:   cfg.MinMovingSpeed,
		MaxExtrapolation: time.Duration(cfg.MaxExtrapolationMS) * time.Millisecond,
	}
}

func dedupParams(cfg config.DedupConfig) dedup.Params {
	params := dedup.DefaultParams()
	params.ShortTTL = cfg.ShortTTL()
	params.SessionTTL = cfg.SessionTTL()
	params.CellSizeMeters = cfg.CellSizeMeters
	params.CenterGate = cfg.CenterGate
	params.CenterGateMin = cfg.CenterGateMin
	params.CenterGateMax = cfg.CenterGateMax
	params.ConfidenceFloor = cfg.ConfidenceFloor
	params.MaxCacheEntries = cfg.MaxCacheEntries
	return params
}

// HandleGPS feeds one position fix into the session's GPS tracker.
func (s *Session) HandleGPS(sample geo.Sample) {
	s.gps.AddPoint(sample)
	s.metrics.GPSSamples.Add(1)
}

// HandleFrame runs one detector frame through the full pipeline and returns
// what it produced. Reports are also published to the configured sink.
func (s *Session) HandleFrame(ctx context.Context, frame Frame) (FrameOutput, error) {
	s.metrics.FramesProcessed.Add(1)
	s.metrics.DetectionsSeen.Add(uint64(len(frame.Detections)))

	confirmed := s.smoother.ProcessFrame(frame.Detections, frame.FrameWidth, frame.FrameHeight, frame.Timestamp, frame.FPS)
	s.metrics.DetectionsConfirmed.Add(uint64(len(confirmed)))

	result := s.fingerprints.ProcessDetections(confirmed, frame.FrameWidth, frame.FrameHeight, frame.Timestamp)
	s.metrics.NewPotholes.Add(uint64(len(result.NewPotholes)))

	display, err := s.stabilizer.Stabilize(result.AllDetections)
	if err != nil {
		return FrameOutput{}, errors.Wrap(err, "can't stabilize detections")
	}

	out := FrameOutput{
		Display:     display,
		NewPotholes: result.NewPotholes,
	}
	if len(result.NewPotholes) == 0 {
		return out, nil
	}

	position := s.gps.PositionAt(frame.Timestamp)
	if position == nil {
		s.log.Warn("session", "no GPS fix, dropping %d candidate reports", len(result.NewPotholes))
		return out, nil
	}

	candidates := make([]pothole.Detection, 0, len(result.NewPotholes))
	for _, np := range result.NewPotholes {
		candidates = append(candidates, np.Detection)
	}
	reports := s.dedup.RegisterDetections(candidates, frame.FrameWidth, frame.FrameHeight,
		position.Lat, position.Lon, position.Speed, frame.Timestamp)
	out.Reports = reports

	s.metrics.ReportsAccepted.Add(uint64(len(reports)))
	s.metrics.ReportsSuppressed.Add(uint64(len(candidates) - len(reports)))

	if s.reports != nil {
		for _, report := range reports {
			if err := s.reports.Publish(ctx, report); err != nil {
				s.metrics.PublishErrors.Add(1)
				s.log.Error("session", "can't publish report %s: %v", report.ID, err)
			}
		}
	}
	return out, nil
}

// Reset restores every pipeline stage to its initial state.
func (s *Session) Reset() {
	s.smoother.Reset()
	s.fingerprints.Reset()
	s.stabilizer.Reset()
	s.gps.Reset()
	s.dedup.Reset()
}

// Count returns the number of potholes counted this session.
func (s *Session) Count() int {
	return s.fingerprints.CountedTotal()
}

// Reports returns every report accepted by the deduplicator so far.
func (s *Session) Reports() []dedup.Report {
	return s.dedup.History()
}
