// Command replay feeds a recorded event log (JSON lines) through the full
// detection pipeline and prints a session summary. With -sink kafka the
// accepted reports are also published to the configured topic.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/geo"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/internal/config"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/internal/logger"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/internal/metrics"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/pothole"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/session"
	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/sink"
	"github.com/joho/godotenv"
)

type replayDetection struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}

type replayEvent struct {
	Type        string            `json:"type"`
	TimestampMS int64             `json:"ts_ms"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	Accuracy    float64           `json:"accuracy"`
	Speed       *float64          `json:"speed"`
	Heading     *float64          `json:"heading"`
	FrameWidth  float64           `json:"width"`
	FrameHeight float64           `json:"height"`
	FPS         float64           `json:"fps"`
	Detections  []replayDetection `json:"detections"`
}

func main() {
	_ = godotenv.Load()

	eventsPath := flag.String("events", "events.jsonl", "Path to JSON lines event log")
	configPath := flag.String("config", "", "Path to YAML config (defaults when empty)")
	sinkKind := flag.String("sink", "memory", "Report sink: memory or kafka")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address (empty disables)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	lg := logger.New(level, os.Stderr)

	m := metrics.New()
	if *metricsAddr != "" {
		go func() {
			if err := m.StartServer(*metricsAddr); err != nil {
				lg.Error("replay", "metrics server: %v", err)
			}
		}()
	}

	var reports sink.ReportSink
	switch *sinkKind {
	case "memory":
		reports = sink.NewMemorySink()
	case "kafka":
		ks, err := sink.NewKafkaSink(sink.NewKafkaConfigFromEnv())
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		reports = ks
	default:
		log.Fatalf("unknown sink %q", *sinkKind)
	}
	defer func() {
		if err := reports.Close(); err != nil {
			lg.Error("replay", "sink close: %v", err)
		}
	}()

	file, err := os.Open(*eventsPath)
	if err != nil {
		log.Fatalf("events: %v", err)
	}
	defer file.Close()

	sess := session.New(cfg, reports, lg, m)
	ctx := context.Background()

	frames, fixes := 0, 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev replayEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			lg.Warn("replay", "skipping malformed event: %v", err)
			continue
		}
		ts := time.UnixMilli(ev.TimestampMS)
		switch ev.Type {
		case "gps":
			sess.HandleGPS(geo.Sample{
				Lat:       ev.Lat,
				Lon:       ev.Lon,
				Accuracy:  ev.Accuracy,
				Speed:     ev.Speed,
				Heading:   ev.Heading,
				Timestamp: ts,
			})
			fixes++
		case "frame":
			detections := make([]pothole.Detection, 0, len(ev.Detections))
			for _, d := range ev.Detections {
				class := d.Class
				if class == "" {
					class = pothole.ClassPothole
				}
				detections = append(detections, pothole.Detection{
					BBox:       pothole.NewRect(d.X, d.Y, d.Width, d.Height),
					Confidence: d.Confidence,
					Class:      class,
				})
			}
			out, err := sess.HandleFrame(ctx, session.Frame{
				Detections:  detections,
				FrameWidth:  ev.FrameWidth,
				FrameHeight: ev.FrameHeight,
				Timestamp:   ts,
				FPS:         ev.FPS,
			})
			if err != nil {
				lg.Error("replay", "frame at %s: %v", ts.Format(time.RFC3339Nano), err)
				continue
			}
			frames++
			for _, report := range out.Reports {
				lg.Info("replay", "report %s at %.6f,%.6f", report.ID, report.Lat, report.Lon)
			}
		default:
			lg.Warn("replay", "unknown event type %q", ev.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("events: %v", err)
	}

	fmt.Printf("frames: %d\n", frames)
	fmt.Printf("gps fixes: %d\n", fixes)
	fmt.Printf("potholes counted: %d\n", sess.Count())
	fmt.Printf("reports accepted: %d\n", len(sess.Reports()))
	if ms, ok := reports.(*sink.MemorySink); ok {
		for _, report := range ms.Reports() {
			fmt.Printf("  %s %.6f %.6f %s\n", report.ID, report.Lat, report.Lon,
				report.Timestamp.Format(time.RFC3339))
		}
	}
}
