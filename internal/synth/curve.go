package synth

import (
	"math"

	"github.com/iabetor/whistle/internal/model"
)

// Curve 是一个维度在一个片段内已完全求值的曲线。
// 起止值总是具体的数，使用方无需处理"保持上一值"的情况。
type Curve struct {
	Shape model.Shape `json:"shape"`
	Start float64     `json:"start"`
	End   float64     `json:"end"`
	Peak  float64     `json:"peak,omitempty"`  // 仅 contour
	SClip float64     `json:"sclip,omitempty"` // 仅 sine
	EClip float64     `json:"eclip,omitempty"` // 仅 sine
}

// hold 返回在整个片段内保持 v 的曲线。
func hold(v float64) Curve {
	return Curve{Shape: model.ShapeConstant, Start: v, End: v}
}

// At 返回曲线在归一化时间 u ∈ [0, 1] 处的值。u 超出范围时按端点截断。
func (c Curve) At(u float64) float64 {
	if u <= 0 {
		return c.Start
	}
	if u >= 1 {
		return c.End
	}
	switch c.Shape {
	case model.ShapeConstant:
		// 阶跃：片段内保持起始值，结束时到达终值
		return c.Start
	case model.ShapeLinear:
		return lerp(c.Start, c.End, u)
	case model.ShapeSine:
		return lerp(c.Start, c.End, sineEase(u, c.SClip, c.EClip))
	case model.ShapeConvex:
		return lerp(c.Start, c.End, u*u)
	case model.ShapeConcave:
		v := 1 - u
		return lerp(c.Start, c.End, 1-v*v)
	case model.ShapeContour:
		// 起音 / 保持 / 释音各占三分之一
		switch {
		case u < 1.0/3:
			return lerp(c.Start, c.Peak, sineEase(3*u, 0, math.Pi))
		case u < 2.0/3:
			return c.Peak
		default:
			return lerp(c.Peak, c.End, sineEase(3*u-2, 0, math.Pi))
		}
	}
	return c.Start
}

func (c Curve) finite() bool {
	for _, v := range [...]float64{c.Start, c.End, c.Peak, c.SClip, c.EClip} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// sineEase 在余弦的 [sclip, eclip] 区间上做归一化缓动，
// 默认区间 [0, pi] 即标准的 (1 - cos(pi*u)) / 2。
func sineEase(u, sclip, eclip float64) float64 {
	theta := sclip + (eclip-sclip)*u
	return (math.Cos(sclip) - math.Cos(theta)) / (math.Cos(sclip) - math.Cos(eclip))
}
