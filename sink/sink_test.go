package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/dedup"
	"github.com/google/uuid"
)

func TestMemorySinkCollects(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	report := dedup.Report{ID: uuid.New(), Lat: 10, Lon: 20, Timestamp: time.Now()}
	if err := s.Publish(ctx, report); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := s.Reports()
	if len(got) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(got))
	}
	if got[0].ID != report.ID {
		t.Errorf("Expected report %s, got %s", report.ID, got[0].ID)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestMemorySinkReturnsCopy(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	s.Publish(ctx, dedup.Report{ID: uuid.New(), Lat: 10, Lon: 20})
	got := s.Reports()
	got[0].Lat = 99

	if s.Reports()[0].Lat != 10 {
		t.Error("Expected Reports to return a copy, internal state was mutated")
	}
}

func TestMemorySinkConcurrentPublish(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Publish(ctx, dedup.Report{ID: uuid.New()})
		}()
	}
	wg.Wait()

	if got := len(s.Reports()); got != 20 {
		t.Errorf("Expected 20 reports, got %d", got)
	}
}

func TestKafkaConfigFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker:9092")
	t.Setenv("KAFKA_TOPIC", "test-topic")
	t.Setenv("KAFKA_LINGER_MS", "25")

	cfg := NewKafkaConfigFromEnv()
	if cfg.BootstrapServers != "broker:9092" {
		t.Errorf("Expected broker:9092, got %q", cfg.BootstrapServers)
	}
	if cfg.Topic != "test-topic" {
		t.Errorf("Expected test-topic, got %q", cfg.Topic)
	}
	if cfg.LingerMS != 25 {
		t.Errorf("Expected linger 25, got %d", cfg.LingerMS)
	}
	if cfg.Acks != "all" {
		t.Errorf("Expected default acks all, got %q", cfg.Acks)
	}
}
