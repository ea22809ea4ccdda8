package similarity

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"identical vectors", []float64{1, 0}, []float64{1, 0}, 1},
		{"orthogonal vectors", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite vectors", []float64{1, 0}, []float64{-1, 0}, -1},
		{"scaled vectors", []float64{1, 2}, []float64{2, 4}, 1},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
		{"mismatched lengths", []float64{1, 0}, []float64{1, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Cosine(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float64{1, 0}, []float64{1, 0}); math.Abs(d) > 1e-9 {
		t.Errorf("distance between identical vectors = %f, want 0", d)
	}
	if d := CosineDistance([]float64{1, 0}, []float64{0, 1}); math.Abs(d-1) > 1e-9 {
		t.Errorf("distance between orthogonal vectors = %f, want 1", d)
	}
	if d := CosineDistance([]float64{0, 0}, []float64{1, 0}); math.Abs(d-1) > 1e-9 {
		t.Errorf("distance for zero vector = %f, want 1", d)
	}
}

func TestMean(t *testing.T) {
	mean := Mean([][]float64{{1, 0}, {3, 2}})
	want := []float64{2, 1}
	for i := range want {
		if math.Abs(mean[i]-want[i]) > 1e-9 {
			t.Errorf("Mean[%d] = %f, want %f", i, mean[i], want[i])
		}
	}
}

func TestMeanSkipsInvalidVectors(t *testing.T) {
	mean := Mean([][]float64{{1, 1}, nil, {3, 3}, {1, 2, 3}})
	want := []float64{2, 2}
	if len(mean) != 2 {
		t.Fatalf("expected 2-dim mean, got %d", len(mean))
	}
	for i := range want {
		if math.Abs(mean[i]-want[i]) > 1e-9 {
			t.Errorf("Mean[%d] = %f, want %f", i, mean[i], want[i])
		}
	}
}

func TestMeanNoValidVectors(t *testing.T) {
	if mean := Mean([][]float64{nil, {}}); mean != nil {
		t.Errorf("expected nil mean for empty input, got %v", mean)
	}
}
