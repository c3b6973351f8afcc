package synth

import (
	"fmt"
	"strings"

	"github.com/iabetor/whistle/internal/model"
)

// Resolve 为字素 g 在 (left, right) 上下文中选择发音。
// 按声明顺序取第一条左右模式都匹配的规则，都不匹配时使用兜底发音。
// left / right 为 model.Boundary 表示词边界。
func Resolve(m *model.Model, g, left, right rune) (model.Pronunciation, error) {
	p, _, err := resolveRule(m, g, left, right)
	return p, err
}

// resolveRule 与 Resolve 相同，另外返回命中规则的下标，兜底发音为 -1。
func resolveRule(m *model.Model, g, left, right rune) (model.Pronunciation, int, error) {
	rs, ok := m.Grapheme(g)
	if !ok {
		return nil, 0, &Error{Kind: ErrUnresolvedGrapheme, Grapheme: g,
			Err: fmt.Errorf("不在模型 %q 的字母表中", m.Name())}
	}
	for i, rule := range rs.Rules {
		if rule.Left.Matches(left) && rule.Right.Matches(right) {
			return rule.Pronunciation, i, nil
		}
	}
	if rs.HasElsewhere {
		return rs.Elsewhere, -1, nil
	}
	return nil, 0, &Error{Kind: ErrUnresolvedGrapheme, Grapheme: g,
		Err: fmt.Errorf("上下文 [%s, %s] 没有匹配的规则，也没有兜底发音", contextString(left), contextString(right))}
}

func contextString(c rune) string {
	if c == model.Boundary {
		return "''"
	}
	return string(c)
}

// NamedLookup 按名字查找命名发音。*model.Model 实现了该接口。
type NamedLookup interface {
	Named(name string) (model.Pronunciation, bool)
}

// Expand 把发音递归展开为扁平的片段序列，保持原有顺序。
// 维护一个活动名字栈，名字在栈上重复出现即为循环引用。
func Expand(lookup NamedLookup, p model.Pronunciation) ([]*model.Segment, error) {
	var out []*model.Segment
	if err := expandInto(lookup, p, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func expandInto(lookup NamedLookup, p model.Pronunciation, stack []string, out *[]*model.Segment) error {
	for _, it := range p {
		if !it.IsRef() {
			*out = append(*out, it.Segment)
			continue
		}
		for i, active := range stack {
			if active == it.Ref {
				path := append(append([]string{}, stack[i:]...), it.Ref)
				return &Error{Kind: ErrCyclicReference, Name: it.Ref, Err: fmt.Errorf("%s", strings.Join(path, " -> "))}
			}
		}
		named, ok := lookup.Named(it.Ref)
		if !ok {
			return &Error{Kind: ErrUnknownReference, Name: it.Ref}
		}
		if err := expandInto(lookup, named, append(stack, it.Ref), out); err != nil {
			return err
		}
	}
	return nil
}
