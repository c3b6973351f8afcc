package expr

import (
	"fmt"
	"go/token"
)

type node interface {
	eval(env Env) (float64, error)
}

type numNode struct{ v float64 }

func (n numNode) eval(Env) (float64, error) { return n.v, nil }

type constNode struct{ name string }

func (n constNode) eval(env Env) (float64, error) {
	v, ok := env.Constants[n.name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, n.name)
	}
	return v, nil
}

// lastNode 读取连续性状态。
type lastNode struct{ amplitude bool }

func (n lastNode) eval(env Env) (float64, error) {
	if n.amplitude {
		return env.LastAmplitude, nil
	}
	return env.LastFrequency, nil
}

type negNode struct{ x node }

func (n negNode) eval(env Env) (float64, error) {
	v, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	return -v, nil
}

type binaryNode struct {
	op   token.Token
	x, y node
}

func (n binaryNode) eval(env Env) (float64, error) {
	left, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	right, err := n.y.eval(env)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case token.ADD:
		return left + right, nil
	case token.SUB:
		return left - right, nil
	case token.MUL:
		return left * right, nil
	case token.QUO:
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		return left / right, nil
	}
	return 0, fmt.Errorf("%w: 不支持的运算符 %s", ErrSyntax, n.op)
}

// remapNode 将 x 从 [inLow, inHigh] 按比例映射到 [outLow, outHigh]，不截断。
type remapNode struct{ args [5]node }

func (n remapNode) eval(env Env) (float64, error) {
	var v [5]float64
	for i, a := range n.args {
		x, err := a.eval(env)
		if err != nil {
			return 0, err
		}
		v[i] = x
	}
	x, inLow, inHigh, outLow, outHigh := v[0], v[1], v[2], v[3], v[4]
	if inHigh == inLow {
		return 0, fmt.Errorf("%w: lr 输入区间为空", ErrDivisionByZero)
	}
	return outLow + (x-inLow)*(outHigh-outLow)/(inHigh-inLow), nil
}

func walk(n node, fn func(node)) {
	fn(n)
	switch n := n.(type) {
	case negNode:
		walk(n.x, fn)
	case binaryNode:
		walk(n.x, fn)
		walk(n.y, fn)
	case remapNode:
		for _, a := range n.args {
			walk(a, fn)
		}
	}
}
