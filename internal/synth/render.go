package synth

import (
	"fmt"
	"math"
)

// DefaultSampleRate 默认采样率（Hz）。
const DefaultSampleRate = 44100

// MaxSampleRate 允许的最高采样率（Hz）。
const MaxSampleRate = 384000

// maxSamples 单次渲染的样本数上限（约 90 分钟 @ 384 kHz）。
const maxSamples = 1 << 31

// CheckSampleRate 检查采样率是否在 (0, MaxSampleRate] 范围内。
func CheckSampleRate(rate int) error {
	if rate <= 0 || rate > MaxSampleRate {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, rate)
	}
	return nil
}

const twoPi = 2 * math.Pi

// Render 把时间线采样为 [-1, 1] 范围内的 float32 PCM。
//
// 输出长度为 round(总时长 / 1000 × sampleRate)。相位按梯形法积分：
// φ[n] = φ[n-1] + π·(f[n-1] + f[n]) / sampleRate，跨片段连续累加，
// 因此片段衔接处没有相位跳变。
func Render(tl *Timeline, sampleRate int) ([]float32, error) {
	n, err := tl.SampleCount(sampleRate)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	if n == 0 {
		return out, nil
	}

	rate := float64(sampleRate)
	segs := tl.Segments
	seg := 0
	segStart := 0.0
	segEnd := segs[0].DurationMs

	var phase, prevF float64
	for i := range out {
		t := float64(i) * 1000 / rate

		for t >= segEnd && seg < len(segs)-1 {
			seg++
			segStart = segEnd
			segEnd += segs[seg].DurationMs
		}
		s := &segs[seg]
		u := (t - segStart) / s.DurationMs

		f := s.Freq.At(u)
		a := s.Amp.At(u)
		if i > 0 {
			phase += math.Pi * (prevF + f) / rate
			if phase >= twoPi {
				phase = math.Mod(phase, twoPi)
			}
		}
		prevF = f

		v := a * math.Sin(phase)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = float32(v)
	}
	return out, nil
}
