// Package sink delivers accepted pothole reports to downstream consumers.
package sink

import (
	"context"
	"sync"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/dedup"
)

// ReportSink receives every report accepted by the deduplicator.
type ReportSink interface {
	Publish(ctx context.Context, report dedup.Report) error
	Close() error
}

// MemorySink collects reports in memory. Useful for tests and replay runs.
type MemorySink struct {
	mu      sync.Mutex
	reports []dedup.Report
}

// NewMemorySink creates ready to use MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{reports: make([]dedup.Report, 0, 8)}
}

// Publish appends the report to the in-memory buffer
func (s *MemorySink) Publish(_ context.Context, report dedup.Report) error {
	s.mu.Lock()
	s.reports = append(s.reports, report)
	s.mu.Unlock()
	return nil
}

// Reports returns a copy of everything published so far
func (s *MemorySink) Reports() []dedup.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dedup.Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// Close is a no-op for the in-memory sink
func (s *MemorySink) Close() error {
	return nil
}
