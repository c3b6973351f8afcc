// Package expr 实现模型中数值字段使用的小型表达式语言。
//
// 表达式在模型加载时解析一次，合成时针对每个片段求值多次。
// 支持：数字字面量、常量名、+ - * /、括号、一元负号、pi、
// 连续性状态 lf/lastFrequency 与 la/lastAmplitude，以及线性映射函数
// lr(x, inLow, inHigh, outLow, outHigh)（别名 linearRemap）。
package expr

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrSyntax 表达式语法错误或使用了不支持的运算。
	ErrSyntax = errors.New("表达式语法错误")
	// ErrUnknownFunction 调用了未定义的函数。
	ErrUnknownFunction = errors.New("未知函数")
	// ErrUnknownSymbol 求值时遇到常量表中不存在的名称。
	ErrUnknownSymbol = errors.New("未知符号")
	// ErrDivisionByZero 除数为零。
	ErrDivisionByZero = errors.New("除数不能为零")
)

// 保留名称，不能用作常量名。
const (
	SymbolPi            = "pi"
	SymbolLastFrequency = "lastFrequency"
	SymbolLastAmplitude = "lastAmplitude"
	SymbolLF            = "lf"
	SymbolLA            = "la"
	FuncLinearRemap     = "linearRemap"
	FuncLR              = "lr"
)

// Reserved 报告 name 是否为表达式语言的保留名称。
func Reserved(name string) bool {
	switch name {
	case SymbolPi, SymbolLastFrequency, SymbolLastAmplitude, SymbolLF, SymbolLA, FuncLinearRemap, FuncLR:
		return true
	}
	return false
}

// Env 是一次求值的环境：常量表与上一片段结束时的频率/振幅。
type Env struct {
	Constants     map[string]float64
	LastFrequency float64
	LastAmplitude float64
}

// Expression 是解析后的表达式，可并发求值。
type Expression struct {
	src  string
	root node
}

// Parse 解析表达式文本。
// 纯数字直接使用，纯标识符直接解析为常量或特殊符号，其余交给 go/parser。
func Parse(src string) (*Expression, error) {
	s := strings.TrimSpace(src)
	if s == "" {
		return nil, fmt.Errorf("%w: 空表达式", ErrSyntax)
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
		return &Expression{src: s, root: numNode{v: v}}, nil
	}
	if isIdent(s) {
		return &Expression{src: s, root: identNode(s)}, nil
	}

	tree, err := parser.ParseExpr(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	root, err := convert(tree)
	if err != nil {
		return nil, fmt.Errorf("表达式 %q: %w", s, err)
	}
	return &Expression{src: s, root: root}, nil
}

// MustParse 与 Parse 相同，解析失败时 panic。仅用于测试和内置常量。
func MustParse(src string) *Expression {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Number 返回一个常数表达式。
func Number(v float64) *Expression {
	return &Expression{src: strconv.FormatFloat(v, 'g', -1, 64), root: numNode{v: v}}
}

// String 返回表达式源文本。
func (e *Expression) String() string { return e.src }

// Eval 在 env 下求值。错误中带有表达式源文本。
func (e *Expression) Eval(env Env) (float64, error) {
	v, err := e.root.eval(env)
	if err != nil {
		return 0, fmt.Errorf("表达式 %q: %w", e.src, err)
	}
	return v, nil
}

// Refs 按出现顺序返回表达式引用的常量名（去重）。
func (e *Expression) Refs() []string {
	var refs []string
	seen := make(map[string]bool)
	walk(e.root, func(n node) {
		if c, ok := n.(constNode); ok && !seen[c.name] {
			seen[c.name] = true
			refs = append(refs, c.name)
		}
	})
	return refs
}

// Literal 在表达式是数字字面量时返回其值。
func (e *Expression) Literal() (float64, bool) {
	n, ok := e.root.(numNode)
	return n.v, ok
}

// UsesLast 报告表达式是否依赖连续性状态。
func (e *Expression) UsesLast() bool {
	found := false
	walk(e.root, func(n node) {
		if _, ok := n.(lastNode); ok {
			found = true
		}
	})
	return found
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func identNode(name string) node {
	switch name {
	case SymbolPi:
		return numNode{v: math.Pi}
	case SymbolLF, SymbolLastFrequency:
		return lastNode{amplitude: false}
	case SymbolLA, SymbolLastAmplitude:
		return lastNode{amplitude: true}
	}
	return constNode{name: name}
}

// convert 将 go/ast 表达式转换为内部 AST，拒绝不支持的构造。
func convert(n ast.Expr) (node, error) {
	switch n := n.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, fmt.Errorf("%w: 不支持的字面量 %s", ErrSyntax, n.Value)
		}
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: 无效数字 %s", ErrSyntax, n.Value)
		}
		return numNode{v: v}, nil

	case *ast.Ident:
		return identNode(n.Name), nil

	case *ast.ParenExpr:
		return convert(n.X)

	case *ast.UnaryExpr:
		x, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.SUB:
			return negNode{x: x}, nil
		case token.ADD:
			return x, nil
		}
		return nil, fmt.Errorf("%w: 不支持的运算符 %s", ErrSyntax, n.Op)

	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO:
		default:
			return nil, fmt.Errorf("%w: 不支持的运算符 %s", ErrSyntax, n.Op)
		}
		x, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		y, err := convert(n.Y)
		if err != nil {
			return nil, err
		}
		return binaryNode{op: n.Op, x: x, y: y}, nil

	case *ast.CallExpr:
		fn, ok := n.Fun.(*ast.Ident)
		if !ok {
			return nil, fmt.Errorf("%w: 不支持的调用", ErrSyntax)
		}
		if fn.Name != FuncLR && fn.Name != FuncLinearRemap {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, fn.Name)
		}
		if len(n.Args) != 5 || n.Ellipsis.IsValid() {
			return nil, fmt.Errorf("%w: %s 需要 5 个参数，得到 %d 个", ErrSyntax, fn.Name, len(n.Args))
		}
		var args [5]node
		for i, a := range n.Args {
			c, err := convert(a)
			if err != nil {
				return nil, err
			}
			args[i] = c
		}
		return remapNode{args: args}, nil
	}
	return nil, fmt.Errorf("%w: 不支持的表达式类型", ErrSyntax)
}
