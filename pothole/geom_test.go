package pothole

import (
	"math"
	"testing"
)

func TestRectangleCenter(t *testing.T) {
	r := NewRect(10, 20, 30, 40)
	c := r.Center()
	if c.X != 25 || c.Y != 40 {
		t.Errorf("Expected center (25, 40), got (%f, %f)", c.X, c.Y)
	}
}

func TestNormalizedCenter(t *testing.T) {
	r := NewRect(300, 300, 40, 40)
	c := r.NormalizedCenter(640, 640)
	if math.Abs(c.X-0.5) > 1e-9 || math.Abs(c.Y-0.5) > 1e-9 {
		t.Errorf("Expected normalized center (0.5, 0.5), got (%f, %f)", c.X, c.Y)
	}
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		r1, r2   Rectangle
		expected float64
	}{
		{"identical", NewRect(0, 0, 10, 10), NewRect(0, 0, 10, 10), 1.0},
		{"disjoint", NewRect(0, 0, 10, 10), NewRect(20, 20, 10, 10), 0.0},
		{"half overlap", NewRect(0, 0, 10, 10), NewRect(5, 0, 10, 10), 1.0 / 3.0},
		{"touching edges", NewRect(0, 0, 10, 10), NewRect(10, 0, 10, 10), 0.0},
	}
	for _, tt := range tests {
		got := IoU(tt.r1, tt.r2)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("%s: expected IoU %f, got %f", tt.name, tt.expected, got)
		}
	}
}

func TestMakeDescriptor(t *testing.T) {
	det := Detection{BBox: NewRect(300, 300, 40, 20), Confidence: 0.9, Class: ClassPothole}
	desc, ok := makeDescriptor(det, 640, 640)
	if !ok {
		t.Fatal("Expected valid descriptor")
	}
	if math.Abs(desc.aspect-2.0) > 1e-9 {
		t.Errorf("Expected aspect 2.0, got %f", desc.aspect)
	}
	wantSize := (40.0 * 20.0) / (640.0 * 640.0)
	if math.Abs(desc.relSize-wantSize) > 1e-12 {
		t.Errorf("Expected relative size %g, got %g", wantSize, desc.relSize)
	}

	if _, ok := makeDescriptor(Detection{BBox: NewRect(0, 0, 0, 10)}, 640, 640); ok {
		t.Error("Expected degenerate box to be rejected")
	}
	if _, ok := makeDescriptor(det, 0, 640); ok {
		t.Error("Expected degenerate frame to be rejected")
	}
}
