package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelDefinition 是所有模型定义错误的共同根。
	ErrModelDefinition = errors.New("模型定义错误")

	// ErrUndefinedReference 引用了不存在的命名发音。
	ErrUndefinedReference = errors.New("未定义的引用")
	// ErrCyclicReference 命名发音或类之间存在循环引用。
	ErrCyclicReference = errors.New("循环引用")
	// ErrUndefinedConstant 表达式引用了不存在的常量。
	ErrUndefinedConstant = errors.New("未定义的常量")
	// ErrUndefinedClass 类成员或上下文模式既不是类名也不是单个字符。
	ErrUndefinedClass = errors.New("未定义的类")
	// ErrInvalidExpression 表达式无法解析。
	ErrInvalidExpression = errors.New("无效表达式")
	// ErrInvalidSegment 片段或曲线描述不合法。
	ErrInvalidSegment = errors.New("无效片段")
	// ErrReservedName 常量使用了表达式语言的保留名称。
	ErrReservedName = errors.New("保留名称")
	// ErrInvalidGrapheme 字素或词边界不是单个字符，或上下文规则格式错误。
	ErrInvalidGrapheme = errors.New("无效字素")
)

// DefinitionError 描述模型校验阶段发现的问题。
// errors.Is 同时匹配 ErrModelDefinition、具体类别以及底层错误。
type DefinitionError struct {
	Kind  error
	Name  string // 出问题的名称（引用名、常量名、类名、表达式）
	Where string // 在文档中的位置，如 graphemes.t.contexts[3].pron[1]
	Err   error
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString(ErrModelDefinition.Error())
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Where != "" {
		fmt.Fprintf(&b, " (位置 %s)", e.Where)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DefinitionError) Unwrap() []error {
	errs := []error{ErrModelDefinition, e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func defErr(kind error, name, where string) *DefinitionError {
	return &DefinitionError{Kind: kind, Name: name, Where: where}
}
