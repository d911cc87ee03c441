package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsScrape(t *testing.T) {
	m := New()
	m.FramesProcessed.Add(3)
	m.ReportsAccepted.Add(1)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "pothole_frames_processed_total 3") {
		t.Errorf("Expected frames counter in scrape, got:\n%s", body)
	}
	if !strings.Contains(body, "pothole_reports_accepted_total 1") {
		t.Errorf("Expected reports counter in scrape, got:\n%s", body)
	}
	if !strings.Contains(body, "pothole_reports_suppressed_total 0") {
		t.Errorf("Expected zeroed suppressed counter in scrape, got:\n%s", body)
	}
}
