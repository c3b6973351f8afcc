package synth

import (
	"math"
	"testing"

	"github.com/iabetor/whistle/internal/model"
)

func TestCurveAt(t *testing.T) {
	sine := Curve{Shape: model.ShapeSine, Start: 0, End: 100, SClip: 0, EClip: math.Pi}
	clipped := Curve{Shape: model.ShapeSine, Start: 0, End: 100, SClip: 3 * math.Pi / 4, EClip: math.Pi}
	contour := Curve{Shape: model.ShapeContour, Start: 0, End: 0, Peak: 0.7}

	tests := []struct {
		name  string
		curve Curve
		u     float64
		want  float64
	}{
		{"constant holds start", Curve{Shape: model.ShapeConstant, Start: 5, End: 9}, 0.5, 5},
		{"constant reaches end", Curve{Shape: model.ShapeConstant, Start: 5, End: 9}, 1, 9},
		{"linear start", Curve{Shape: model.ShapeLinear, Start: 10, End: 20}, 0, 10},
		{"linear mid", Curve{Shape: model.ShapeLinear, Start: 10, End: 20}, 0.5, 15},
		{"linear end", Curve{Shape: model.ShapeLinear, Start: 10, End: 20}, 1, 20},
		{"sine mid", sine, 0.5, 50},
		{"sine quarter", sine, 0.25, 100 * (1 - math.Cos(math.Pi/4)) / 2},
		{"clipped sine start", clipped, 0, 0},
		{"clipped sine end", clipped, 1, 100},
		{"clipped sine mid", clipped, 0.5,
			100 * (math.Cos(3*math.Pi/4) - math.Cos(7*math.Pi/8)) / (math.Cos(3*math.Pi/4) + 1)},
		{"convex", Curve{Shape: model.ShapeConvex, Start: 0, End: 100}, 0.5, 25},
		{"concave", Curve{Shape: model.ShapeConcave, Start: 0, End: 100}, 0.5, 75},
		{"descending convex", Curve{Shape: model.ShapeConvex, Start: 100, End: 0}, 0.5, 75},
		{"contour attack mid", contour, 1.0 / 6, 0.35},
		{"contour sustain", contour, 0.5, 0.7},
		{"contour release mid", contour, 5.0 / 6, 0.35},
		{"contour end", contour, 1, 0},
		{"below range clamps", Curve{Shape: model.ShapeLinear, Start: 1, End: 2}, -3, 1},
		{"above range clamps", Curve{Shape: model.ShapeLinear, Start: 1, End: 2}, 7, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.curve.At(tt.u); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("At(%v) = %v, want %v", tt.u, got, tt.want)
			}
		})
	}
}

// 所有形状都在起止值之间单调移动。
func TestCurveMonotonic(t *testing.T) {
	for _, shape := range []model.Shape{model.ShapeLinear, model.ShapeSine, model.ShapeConvex, model.ShapeConcave} {
		c := Curve{Shape: shape, Start: 1750, End: 2600, SClip: 0, EClip: math.Pi}
		prev := c.At(0)
		for i := 1; i <= 100; i++ {
			v := c.At(float64(i) / 100)
			if v < prev-1e-9 {
				t.Errorf("%s not monotonic at u=%v: %v < %v", shape, float64(i)/100, v, prev)
			}
			prev = v
		}
	}
}

func TestHold(t *testing.T) {
	c := hold(0.7)
	for _, u := range []float64{0, 0.3, 1} {
		if c.At(u) != 0.7 {
			t.Errorf("hold.At(%v) = %v", u, c.At(u))
		}
	}
}
