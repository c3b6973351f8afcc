package model

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/iabetor/whistle/internal/expr"
	"github.com/iabetor/whistle/internal/logger"
)

// Compile 校验 Document 并构建不可变的 Model。digest 为源文档摘要，可为空。
// 所有错误均为 *DefinitionError。
func Compile(doc *Document, digest string) (*Model, error) {
	c := &compiler{
		doc: doc,
		m: &Model{
			name:      doc.Name,
			digest:    digest,
			classes:   make(map[string]map[rune]struct{}, len(doc.Classes)),
			constants: make(map[string]float64, len(doc.Constants)),
			named:     make(map[string]Pronunciation, len(doc.NamedPronunciations)),
			graphemes: make(map[rune]*RuleSet, len(doc.Graphemes)),
		},
	}

	steps := []func() error{
		c.compileBoundary,
		c.compileConstants,
		c.compileClasses,
		c.compileNamed,
		c.checkNamedCycles,
		c.compileGraphemes,
		c.compileWordSilence,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	logger.Debugf("[model] 模型 %q 校验通过: %d 个字素, %d 个命名发音, %d 个类, %d 个常量",
		c.m.name, len(c.m.graphemes), len(c.m.named), len(c.m.classes), len(c.m.constants))
	return c.m, nil
}

type compiler struct {
	doc *Document
	m   *Model
}

func (c *compiler) compileBoundary() error {
	if c.doc.WordBoundary == "" {
		c.m.wordBoundary = ' '
		return nil
	}
	r, ok := singleRune(c.doc.WordBoundary)
	if !ok {
		return defErr(ErrInvalidGrapheme, c.doc.WordBoundary, "word_boundary")
	}
	c.m.wordBoundary = r
	return nil
}

func (c *compiler) compileConstants() error {
	for _, name := range sortedKeys(c.doc.Constants) {
		v := c.doc.Constants[name]
		if expr.Reserved(name) {
			return defErr(ErrReservedName, name, "constants."+name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &DefinitionError{Kind: ErrInvalidExpression, Name: name, Where: "constants." + name,
				Err: fmt.Errorf("常量值必须是有限数: %v", v)}
		}
		c.m.constants[name] = v
	}
	return nil
}

// compileClasses 把递归的类定义展开为字符集合，灰/黑染色检测环。
func (c *compiler) compileClasses() error {
	const (
		grey = iota + 1
		black
	)
	color := make(map[string]int, len(c.doc.Classes))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = grey
		stack = append(stack, name)
		set := make(map[rune]struct{})
		for i, member := range c.doc.Classes[name] {
			if _, isClass := c.doc.Classes[member]; isClass {
				switch color[member] {
				case grey:
					return &DefinitionError{Kind: ErrCyclicReference, Name: member,
						Where: "classes." + name, Err: cycleErr(stack, member)}
				case 0:
					if err := visit(member); err != nil {
						return err
					}
				}
				for r := range c.m.classes[member] {
					set[r] = struct{}{}
				}
				continue
			}
			r, ok := singleRune(member)
			if !ok {
				return defErr(ErrUndefinedClass, member, fmt.Sprintf("classes.%s[%d]", name, i))
			}
			set[r] = struct{}{}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		c.m.classes[name] = set
		return nil
	}

	for _, name := range sortedKeys(c.doc.Classes) {
		if color[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) compileNamed() error {
	for _, name := range sortedKeys(c.doc.NamedPronunciations) {
		p, err := c.pronunciation(c.doc.NamedPronunciations[name], "named_pronunciations."+name)
		if err != nil {
			return err
		}
		c.m.named[name] = p
	}
	return nil
}

// checkNamedCycles 深度优先遍历命名发音的引用图，活动栈上重复出现的名字即为环。
func (c *compiler) checkNamedCycles() error {
	const (
		grey = iota + 1
		black
	)
	color := make(map[string]int, len(c.m.named))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = grey
		stack = append(stack, name)
		for _, it := range c.m.named[name] {
			if !it.IsRef() {
				continue
			}
			switch color[it.Ref] {
			case grey:
				return &DefinitionError{Kind: ErrCyclicReference, Name: it.Ref,
					Where: "named_pronunciations." + name, Err: cycleErr(stack, it.Ref)}
			case 0:
				if err := visit(it.Ref); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range sortedKeys(c.m.named) {
		if color[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) compileGraphemes() error {
	for _, key := range sortedKeys(c.doc.Graphemes) {
		g, ok := singleRune(key)
		if !ok {
			return defErr(ErrInvalidGrapheme, key, "graphemes")
		}
		doc := c.doc.Graphemes[key]
		where := "graphemes." + key
		rs := &RuleSet{Grapheme: g, Rules: make([]ContextRule, 0, len(doc.Contexts))}

		for i, ctx := range doc.Contexts {
			at := fmt.Sprintf("%s.contexts[%d]", where, i)
			if len(ctx.Con) != 2 {
				return &DefinitionError{Kind: ErrInvalidGrapheme, Name: key, Where: at,
					Err: fmt.Errorf("con 需要 [左, 右] 两个模式，得到 %d 个", len(ctx.Con))}
			}
			left, err := c.pattern(ctx.Con[0], at+".con[0]")
			if err != nil {
				return err
			}
			right, err := c.pattern(ctx.Con[1], at+".con[1]")
			if err != nil {
				return err
			}
			pron, err := c.pronunciation(ctx.Pron, at+".pron")
			if err != nil {
				return err
			}
			rule := ContextRule{Left: left, Right: right, Pronunciation: pron}
			for j, prev := range rs.Rules {
				if prev.Left.equal(left) && prev.Right.equal(right) {
					logger.Debugf("[model] 字素 %q 的第 %d 条上下文规则 [%s, %s] 与第 %d 条重复，先声明者优先",
						key, i, left, right, j)
					break
				}
			}
			rs.Rules = append(rs.Rules, rule)
		}

		if doc.Elsewhere != nil {
			pron, err := c.pronunciation(doc.Elsewhere, where+".elsewhere")
			if err != nil {
				return err
			}
			rs.Elsewhere = pron
			rs.HasElsewhere = true
		}
		if len(rs.Rules) == 0 && !rs.HasElsewhere {
			logger.Debugf("[model] 字素 %q 没有任何规则，出现时将无法解析", key)
		}
		c.m.graphemes[g] = rs
	}
	return nil
}

func (c *compiler) compileWordSilence() error {
	name := c.doc.WordSilence
	if name == "" {
		return nil
	}
	if _, ok := c.m.named[name]; !ok {
		return defErr(ErrUndefinedReference, name, "word_silence")
	}
	c.m.wordSilence = name
	return nil
}

// pattern 解析上下文模式：'' 为词边界；类名优先于同名字面量；否则必须是单个字符。
func (c *compiler) pattern(s, where string) (Pattern, error) {
	if s == "" {
		return Pattern{Kind: PatternBoundary}, nil
	}
	if set, ok := c.m.classes[s]; ok {
		return Pattern{Kind: PatternClass, Class: s, members: set}, nil
	}
	if r, ok := singleRune(s); ok {
		return Pattern{Kind: PatternLiteral, Literal: r}, nil
	}
	return Pattern{}, defErr(ErrUndefinedClass, s, where)
}

func (c *compiler) pronunciation(items []DocItem, where string) (Pronunciation, error) {
	p := make(Pronunciation, 0, len(items))
	for i, it := range items {
		at := fmt.Sprintf("%s[%d]", where, i)
		if it.Segment == nil {
			if _, ok := c.doc.NamedPronunciations[it.Ref]; !ok {
				return nil, defErr(ErrUndefinedReference, it.Ref, at)
			}
			p = append(p, Item{Ref: it.Ref})
			continue
		}
		seg, err := c.segment(it.Segment, at)
		if err != nil {
			return nil, err
		}
		p = append(p, Item{Segment: seg})
	}
	return p, nil
}

func (c *compiler) segment(ds *DocSegment, where string) (*Segment, error) {
	if ds.F == nil && ds.A == nil && ds.Run == nil {
		return nil, &DefinitionError{Kind: ErrInvalidSegment, Where: where, Err: fmt.Errorf("空片段")}
	}
	seg := &Segment{}
	var err error
	if ds.F != nil {
		if seg.Freq, err = c.spec(ds.F, where+".f"); err != nil {
			return nil, err
		}
	}
	if ds.A != nil {
		if seg.Amp, err = c.spec(ds.A, where+".a"); err != nil {
			return nil, err
		}
	}
	if seg.Run, err = c.optional(ds.Run, where+".run"); err != nil {
		return nil, err
	}
	return seg, nil
}

func (c *compiler) spec(ds *DocSpec, where string) (*CurveSpec, error) {
	invalid := func(format string, args ...any) error {
		return &DefinitionError{Kind: ErrInvalidSegment, Where: where, Err: fmt.Errorf(format, args...)}
	}
	clipped := ds.SClip != nil || ds.EClip != nil

	switch ds.Type {
	case "constant":
		if ds.Y == nil {
			return nil, invalid("constant 需要 y")
		}
		if ds.SY != nil || ds.EY != nil || ds.A != nil || ds.Curve != "" || clipped {
			return nil, invalid("constant 只接受 y")
		}
		y, err := c.value(*ds.Y, where+".y")
		if err != nil {
			return nil, err
		}
		return &CurveSpec{Kind: KindConstant, Shape: ShapeConstant, Start: y, End: y}, nil

	case "transition":
		if ds.EY == nil {
			return nil, invalid("transition 需要 ey")
		}
		if ds.Y != nil || ds.A != nil {
			return nil, invalid("transition 不接受 y / a")
		}
		shape, ok := ParseShape(ds.Curve)
		if !ok {
			return nil, invalid("未知曲线 %q", ds.Curve)
		}
		if clipped && shape != ShapeSine {
			return nil, invalid("sclip / eclip 只能用于 sine 曲线")
		}
		spec := &CurveSpec{Kind: KindTransition, Shape: shape}
		var err error
		if spec.Start, err = c.optional(ds.SY, where+".sy"); err != nil {
			return nil, err
		}
		if spec.End, err = c.value(*ds.EY, where+".ey"); err != nil {
			return nil, err
		}
		if spec.SClip, err = c.optional(ds.SClip, where+".sclip"); err != nil {
			return nil, err
		}
		if spec.EClip, err = c.optional(ds.EClip, where+".eclip"); err != nil {
			return nil, err
		}
		if err := checkLiteralClips(spec); err != nil {
			return nil, invalid("%v", err)
		}
		return spec, nil

	case "contour":
		if ds.Y == nil || ds.A == nil {
			return nil, invalid("contour 需要 y 和 a")
		}
		if ds.SY != nil || ds.EY != nil || ds.Curve != "" || clipped {
			return nil, invalid("contour 只接受 y 和 a")
		}
		y, err := c.value(*ds.Y, where+".y")
		if err != nil {
			return nil, err
		}
		a, err := c.value(*ds.A, where+".a")
		if err != nil {
			return nil, err
		}
		return &CurveSpec{Kind: KindContour, Shape: ShapeContour, Start: y, End: y, Peak: a}, nil
	}
	return nil, invalid("未知类型 %q", ds.Type)
}

// checkLiteralClips 在裁剪值为字面量时提前检查 0 <= sclip < eclip <= pi。
// 依赖常量或连续性状态的裁剪值在合成时检查。
func checkLiteralClips(spec *CurveSpec) error {
	lo, hi := 0.0, math.Pi
	loLit, hiLit := true, true
	if spec.SClip != nil {
		lo, loLit = literalValue(spec.SClip)
	}
	if spec.EClip != nil {
		hi, hiLit = literalValue(spec.EClip)
	}
	if loLit && (lo < 0 || lo > math.Pi) {
		return fmt.Errorf("sclip 超出 [0, pi]: %v", lo)
	}
	if hiLit && (hi < 0 || hi > math.Pi) {
		return fmt.Errorf("eclip 超出 [0, pi]: %v", hi)
	}
	if loLit && hiLit && lo >= hi {
		return fmt.Errorf("sclip (%v) 必须小于 eclip (%v)", lo, hi)
	}
	return nil
}

func literalValue(e *expr.Expression) (float64, bool) {
	if v, ok := e.Literal(); ok {
		return v, true
	}
	if e.UsesLast() || len(e.Refs()) > 0 {
		return 0, false
	}
	// 只含字面量与 pi 的表达式可以直接求值
	v, err := e.Eval(expr.Env{})
	return v, err == nil
}

func (c *compiler) optional(v *Value, where string) (*expr.Expression, error) {
	if v == nil {
		return nil, nil
	}
	return c.value(*v, where)
}

// value 解析数值字段：数字直接使用，其余作为表达式解析，并检查引用的常量都已定义。
func (c *compiler) value(v Value, where string) (*expr.Expression, error) {
	if v.Number {
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return nil, &DefinitionError{Kind: ErrInvalidExpression, Name: v.Source(), Where: where,
				Err: fmt.Errorf("必须是有限数")}
		}
		return expr.Number(v.Num), nil
	}
	e, err := expr.Parse(v.Text)
	if err != nil {
		return nil, &DefinitionError{Kind: ErrInvalidExpression, Name: v.Text, Where: where, Err: err}
	}
	for _, ref := range e.Refs() {
		if _, ok := c.m.constants[ref]; !ok {
			return nil, defErr(ErrUndefinedConstant, ref, where)
		}
	}
	return e, nil
}

func singleRune(s string) (rune, bool) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || r == 0 {
		return 0, false
	}
	return r, true
}

func cycleErr(stack []string, repeated string) error {
	start := 0
	for i, name := range stack {
		if name == repeated {
			start = i
			break
		}
	}
	path := append(append([]string{}, stack[start:]...), repeated)
	return fmt.Errorf("%s", strings.Join(path, " -> "))
}
