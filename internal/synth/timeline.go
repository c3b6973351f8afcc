package synth

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/iabetor/whistle/internal/expr"
	"github.com/iabetor/whistle/internal/model"
)

// Segment 是时间线上一个已完全求值的片段。
type Segment struct {
	Grapheme   string  `json:"grapheme"` // 词间静音为空
	Word       int     `json:"word"`     // 所在词的下标
	Position   int     `json:"position"` // 字素在词中的下标，词间静音为 -1
	Rule       int     `json:"rule"`     // 命中的上下文规则下标，兜底发音为 -1
	DurationMs float64 `json:"duration_ms"`
	Freq       Curve   `json:"freq"`
	Amp        Curve   `json:"amp"`
}

// Timeline 是一次合成的完整片段序列，由产生它的调用独占。
type Timeline struct {
	Segments []Segment `json:"segments"`
}

// TotalMs 返回全部片段的总时长（毫秒）。
func (tl *Timeline) TotalMs() float64 {
	var total float64
	for _, s := range tl.Segments {
		total += s.DurationMs
	}
	return total
}

// SampleCount 返回按 sampleRate 渲染时的样本数：round(总时长 / 1000 × sampleRate)。
// 采样率越界或样本数超出上限时返回错误。
func (tl *Timeline) SampleCount(sampleRate int) (int, error) {
	if err := CheckSampleRate(sampleRate); err != nil {
		return 0, err
	}
	n := math.Round(tl.TotalMs() * float64(sampleRate) / 1000)
	if !(n <= maxSamples) {
		return 0, fmt.Errorf("%w: %.0f ms", ErrTimelineTooLong, tl.TotalMs())
	}
	return int(n), nil
}

// Words 按模型的分词字符和空白把文本切分为词，忽略空词。
func Words(m *model.Model, text string) []string {
	boundary := m.WordBoundary()
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == boundary || unicode.IsSpace(r)
	})
}

// BuildTimeline 对每个词逐字素解析、展开、求值，得到完整的时间线。
// 连续性状态（上一片段结束时的频率与振幅）从 0 开始，跨片段、字素和词向前传递。
// 模型配置了词间静音时，在相邻两个词之间插入该命名发音。
func BuildTimeline(m *model.Model, words []string) (*Timeline, error) {
	b := &builder{m: m, tl: &Timeline{}}

	for wi, word := range words {
		if wi > 0 && m.WordSilence() != "" {
			if err := b.wordSilence(wi, word); err != nil {
				return nil, err
			}
		}

		sc := newScanner(word)
		for sc.Next() {
			g, left, right := sc.Context()
			pos := sc.Position()

			pron, rule, err := resolveRule(m, g, left, right)
			if err != nil {
				return nil, locate(err, g, word, pos)
			}
			segs, err := Expand(m, pron)
			if err != nil {
				return nil, locate(err, g, word, pos)
			}
			for _, seg := range segs {
				if err := b.apply(seg, Segment{Grapheme: string(g), Word: wi, Position: pos, Rule: rule}); err != nil {
					return nil, locate(err, g, word, pos)
				}
			}
		}
	}
	return b.tl, nil
}

type builder struct {
	m     *model.Model
	tl    *Timeline
	lastF float64
	lastA float64
}

func (b *builder) wordSilence(wi int, word string) error {
	name := b.m.WordSilence()
	pron, ok := b.m.Named(name)
	if !ok {
		return &Error{Kind: ErrUnknownReference, Name: name, Word: word, Position: -1}
	}
	segs, err := Expand(b.m, pron)
	if err != nil {
		return locate(err, model.Boundary, word, -1)
	}
	for _, seg := range segs {
		if err := b.apply(seg, Segment{Word: wi, Position: -1, Rule: -1}); err != nil {
			return locate(err, model.Boundary, word, -1)
		}
	}
	return nil
}

// apply 在片段开始时的连续性状态下求值片段的全部字段，然后推进状态。
// 时长为 0 的片段只更新状态，不进入时间线。
func (b *builder) apply(seg *model.Segment, meta Segment) error {
	env := expr.Env{Constants: b.m.Constants(), LastFrequency: b.lastF, LastAmplitude: b.lastA}

	var dur float64
	if seg.Run != nil {
		v, err := b.eval(seg.Run, env)
		if err != nil {
			return err
		}
		if v < 0 {
			return &Error{Kind: ErrNegativeDuration, Name: seg.Run.String(), Err: fmt.Errorf("%v ms", v)}
		}
		dur = v
	}

	freq, err := b.curve(seg.Freq, b.lastF, env)
	if err != nil {
		return err
	}
	amp, err := b.curve(seg.Amp, b.lastA, env)
	if err != nil {
		return err
	}

	b.lastF, b.lastA = freq.End, amp.End
	if dur == 0 {
		return nil
	}

	meta.DurationMs = dur
	meta.Freq = freq
	meta.Amp = amp
	b.tl.Segments = append(b.tl.Segments, meta)
	return nil
}

// curve 把曲线描述求值为具体曲线。spec 为 nil 时保持 last。
func (b *builder) curve(spec *model.CurveSpec, last float64, env expr.Env) (Curve, error) {
	if spec == nil {
		return hold(last), nil
	}

	c := Curve{Shape: spec.Shape, Start: last}
	var err error
	if spec.Start != nil {
		if c.Start, err = b.eval(spec.Start, env); err != nil {
			return Curve{}, err
		}
	}
	if c.End, err = b.eval(spec.End, env); err != nil {
		return Curve{}, err
	}

	if spec.Kind == model.KindContour {
		if c.Peak, err = b.eval(spec.Peak, env); err != nil {
			return Curve{}, err
		}
	}

	if spec.Shape == model.ShapeSine {
		c.SClip, c.EClip = 0, math.Pi
		if spec.SClip != nil {
			if c.SClip, err = b.eval(spec.SClip, env); err != nil {
				return Curve{}, err
			}
		}
		if spec.EClip != nil {
			if c.EClip, err = b.eval(spec.EClip, env); err != nil {
				return Curve{}, err
			}
		}
		if c.SClip < 0 || c.EClip > math.Pi || c.SClip >= c.EClip {
			return Curve{}, &Error{Kind: ErrInvalidClip, Err: fmt.Errorf("[%v, %v]", c.SClip, c.EClip)}
		}
	}

	if !c.finite() {
		return Curve{}, &Error{Kind: ErrNonFinite, Err: fmt.Errorf("曲线 %+v", c)}
	}
	return c, nil
}

func (b *builder) eval(e *expr.Expression, env expr.Env) (float64, error) {
	v, err := e.Eval(env)
	if err != nil {
		return 0, &Error{Kind: ErrEvaluation, Name: e.String(), Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &Error{Kind: ErrNonFinite, Name: e.String()}
	}
	return v, nil
}
