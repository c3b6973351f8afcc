// Package model 定义口哨语音模型：字素规则、命名发音、常量与类，
// 并在加载时一次性完成全部校验。校验通过的 Model 不可变，可被多个合成任务并发共享。
package model

import (
	"fmt"
	"sort"

	"github.com/iabetor/whistle/internal/expr"
)

// Boundary 是词边界的上下文标记（空上下文）。不是合法码点，不会与输入中的任何字符相同。
const Boundary rune = -1

// SpecKind 曲线描述的种类。
type SpecKind int

const (
	KindConstant SpecKind = iota
	KindTransition
	KindContour
)

func (k SpecKind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindTransition:
		return "transition"
	case KindContour:
		return "contour"
	}
	return "unknown"
}

// Shape 起止值之间的插值方式。
type Shape int

const (
	ShapeConstant Shape = iota
	ShapeLinear
	ShapeSine
	ShapeConvex
	ShapeConcave
	ShapeContour
)

var shapeNames = map[Shape]string{
	ShapeConstant: "constant",
	ShapeLinear:   "linear",
	ShapeSine:     "sine",
	ShapeConvex:   "convex",
	ShapeConcave:  "concave",
	ShapeContour:  "contour",
}

func (s Shape) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return "unknown"
}

// MarshalText 以名称输出曲线形状（时间线 JSON 使用）。
func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText 解析 MarshalText 输出的名称。
func (s *Shape) UnmarshalText(b []byte) error {
	name := string(b)
	if name == "contour" {
		*s = ShapeContour
		return nil
	}
	shape, ok := ParseShape(name)
	if !ok || name == "" {
		return fmt.Errorf("未知的曲线形状 %q", name)
	}
	*s = shape
	return nil
}

// ParseShape 解析 transition 的 curve 字段。contour 只能通过 type: contour 声明。
func ParseShape(name string) (Shape, bool) {
	switch name {
	case "constant":
		return ShapeConstant, true
	case "linear", "":
		return ShapeLinear, true
	case "sine":
		return ShapeSine, true
	case "convex":
		return ShapeConvex, true
	case "concave":
		return ShapeConcave, true
	}
	return 0, false
}

// CurveSpec 是一个维度（频率或振幅）在一个片段内的曲线描述。
// Start 为 nil 表示从连续性状态（上一片段的结束值）开始。
type CurveSpec struct {
	Kind  SpecKind
	Shape Shape
	Start *expr.Expression
	End   *expr.Expression
	Peak  *expr.Expression // 仅 contour
	SClip *expr.Expression // 仅 sine，nil 表示 0
	EClip *expr.Expression // 仅 sine，nil 表示 pi
}

// Segment 是最小的声学单元。Freq / Amp 为 nil 表示保持上一值，Run 为 nil 表示时长 0。
type Segment struct {
	Freq *CurveSpec
	Amp  *CurveSpec
	Run  *expr.Expression
}

// Item 是发音中的一项：命名发音引用或字面片段，二者取其一。
type Item struct {
	Ref     string
	Segment *Segment
}

// IsRef 报告该项是否为命名发音引用。
func (it Item) IsRef() bool { return it.Segment == nil }

// Pronunciation 是有序的发音项序列。
type Pronunciation []Item

// PatternKind 上下文模式的种类。
type PatternKind int

const (
	PatternBoundary PatternKind = iota
	PatternLiteral
	PatternClass
)

// Pattern 是上下文规则一侧的模式。
type Pattern struct {
	Kind    PatternKind
	Literal rune
	Class   string
	members map[rune]struct{}
}

// Matches 报告上下文字符 c 是否匹配该模式。c 为 Boundary 表示词边界。
func (p Pattern) Matches(c rune) bool {
	switch p.Kind {
	case PatternBoundary:
		return c == Boundary
	case PatternLiteral:
		return c != Boundary && c == p.Literal
	case PatternClass:
		if c == Boundary {
			return false
		}
		_, ok := p.members[c]
		return ok
	}
	return false
}

func (p Pattern) String() string {
	switch p.Kind {
	case PatternLiteral:
		return string(p.Literal)
	case PatternClass:
		return p.Class
	}
	return ""
}

func (p Pattern) equal(o Pattern) bool {
	return p.Kind == o.Kind && p.Literal == o.Literal && p.Class == o.Class
}

// ContextRule 是 (左模式, 右模式, 发音) 三元组。
type ContextRule struct {
	Left          Pattern
	Right         Pattern
	Pronunciation Pronunciation
}

// RuleSet 是单个字素的规则集：按声明顺序排列的上下文规则与可选的兜底发音。
type RuleSet struct {
	Grapheme     rune
	Rules        []ContextRule
	Elsewhere    Pronunciation
	HasElsewhere bool
}

// Model 是校验通过的模型，创建后不可变。
type Model struct {
	name         string
	digest       string
	wordBoundary rune
	wordSilence  string
	classes      map[string]map[rune]struct{}
	constants    map[string]float64
	named        map[string]Pronunciation
	graphemes    map[rune]*RuleSet
}

// Name 返回模型名。
func (m *Model) Name() string { return m.name }

// Digest 返回模型源文档的 sha256（十六进制），用作缓存键的一部分。
func (m *Model) Digest() string { return m.digest }

// WordBoundary 返回分词字符。
func (m *Model) WordBoundary() rune { return m.wordBoundary }

// WordSilence 返回词间插入的命名发音名，未配置时为空。
func (m *Model) WordSilence() string { return m.wordSilence }

// Grapheme 返回字素的规则集。
func (m *Model) Grapheme(r rune) (*RuleSet, bool) {
	rs, ok := m.graphemes[r]
	return rs, ok
}

// Named 返回命名发音。
func (m *Model) Named(name string) (Pronunciation, bool) {
	p, ok := m.named[name]
	return p, ok
}

// Constants 返回常量表。调用方不得修改。
func (m *Model) Constants() map[string]float64 { return m.constants }

// InClass 报告字符 r 是否属于类 class（展开后的成员集合）。
func (m *Model) InClass(class string, r rune) bool {
	set, ok := m.classes[class]
	if !ok {
		return false
	}
	_, ok = set[r]
	return ok
}

// Alphabet 返回模型声明了规则的全部字素，按码点排序。
func (m *Model) Alphabet() []rune {
	out := make([]rune, 0, len(m.graphemes))
	for r := range m.graphemes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ClassMembers 返回类的展开成员，按码点排序。
func (m *Model) ClassMembers(class string) []rune {
	set := m.classes[class]
	out := make([]rune, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
