package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iabetor/whistle/internal/model"
)

var (
	// ErrUnresolvedGrapheme 字素不在模型字母表中，或没有规则匹配且没有兜底发音。
	ErrUnresolvedGrapheme = errors.New("无法解析的字素")
	// ErrUnknownReference 展开时遇到未定义的命名发音。
	ErrUnknownReference = errors.New("未知的命名发音")
	// ErrCyclicReference 展开时命名发音在活动栈上重复出现。
	ErrCyclicReference = errors.New("命名发音循环引用")
	// ErrEvaluation 表达式求值失败，底层错误为 expr.ErrUnknownSymbol 或 expr.ErrDivisionByZero。
	ErrEvaluation = errors.New("表达式求值失败")
	// ErrNonFinite 求值结果为 NaN 或无穷。
	ErrNonFinite = errors.New("非有限值")
	// ErrNegativeDuration 片段时长为负。
	ErrNegativeDuration = errors.New("片段时长为负")
	// ErrInvalidClip sine 曲线的裁剪区间不满足 0 <= sclip < eclip <= pi。
	ErrInvalidClip = errors.New("sine 裁剪区间无效")
	// ErrInvalidSampleRate 采样率不在 (0, MaxSampleRate] 范围内。
	ErrInvalidSampleRate = errors.New("采样率超出范围")
	// ErrTimelineTooLong 时间线过长，样本数超出单次渲染上限。
	ErrTimelineTooLong = errors.New("时间线过长")
)

// Error 是单次合成（一行或一段文本）中发生的错误，
// 带有出错的字素、所在词与位置，以及出错的名字或表达式。
// errors.Is 同时匹配 Kind 与底层错误。
type Error struct {
	Kind     error
	Grapheme rune   // 词间静音为 model.Boundary，尚未定位时为 0
	Word     string // 出错字素所在的词
	Position int    // 字素在词中的下标（按字符计），词间静音为 -1
	Name     string // 出错的命名发音或表达式
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	switch {
	case e.Grapheme == model.Boundary:
		if e.Word != "" {
			fmt.Fprintf(&b, ": 词 %q 之前的词间静音", e.Word)
		}
	case e.Grapheme != 0 || e.Word != "":
		fmt.Fprintf(&b, ": 字素 %q", e.Grapheme)
		if e.Word != "" {
			fmt.Fprintf(&b, "（词 %q 第 %d 个字符）", e.Word, e.Position+1)
		}
	}
	if e.Name != "" {
		fmt.Fprintf(&b, ": %s", e.Name)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// locate 为尚未定位的 *Error 补充字素位置信息。
func locate(err error, g rune, word string, pos int) error {
	var se *Error
	if errors.As(err, &se) && se.Word == "" {
		se.Grapheme = g
		se.Word = word
		se.Position = pos
	}
	return err
}
