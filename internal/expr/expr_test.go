package expr

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

var testConstants = map[string]float64{
	"SEG_LEN": 270,
	"C_TRANS": 170,
	"H":       2600,
	"M":       2100,
	"L":       1750,
	"SHARP_L": 3300,
	"SHARP_H": 3700,
	"ACUTE_L": 2500,
	"ACUTE_H": 2700,
	"ZERO":    0,
}

func TestEval(t *testing.T) {
	env := Env{Constants: testConstants, LastFrequency: 2100, LastAmplitude: 0.7}

	tests := []struct {
		name string
		src  string
		want float64
	}{
		{"integer", "270", 270},
		{"float", "0.7", 0.7},
		{"negative literal", "-5", -5},
		{"constant", "SEG_LEN", 270},
		{"multiply", "SEG_LEN * 1.5", 405},
		{"divide", "C_TRANS/3", 170.0 / 3},
		{"parentheses", "(ACUTE_L + ACUTE_H) / 2", 2600},
		{"precedence", "1 + 2 * 3", 7},
		{"unary minus", "-(H - M)", -500},
		{"unary plus", "+H", 2600},
		{"pi", "3*pi/4", 3 * math.Pi / 4},
		{"last frequency short", "lf", 2100},
		{"last frequency long", "lastFrequency", 2100},
		{"last amplitude short", "la", 0.7},
		{"last amplitude long", "lastAmplitude * 2", 1.4},
		{"remap midpoint", "lr(M, 1600, 2600, 0, 100)", 50},
		{"remap vowel to sharp", "lr(lf, L, H, SHARP_L, SHARP_H)", 3300 + (2100-1750)*400.0/850},
		{"remap alias", "linearRemap(H, L, H, ACUTE_L, ACUTE_H)", 2700},
		{"remap inverted range", "lr(0, 0, 10, 10, 0)", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.src, err)
			}
			got, err := e.Eval(env)
			if err != nil {
				t.Fatalf("Eval(%q) failed: %v", tt.src, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Eval(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"empty", "   ", ErrSyntax},
		{"garbage", "1 +", ErrSyntax},
		{"modulo", "10 % 3", ErrSyntax},
		{"string literal", `"abc"`, ErrSyntax},
		{"unknown function", "max(1, 2)", ErrUnknownFunction},
		{"wrong arity", "lr(1, 2, 3)", ErrSyntax},
		{"selector", "a.b", ErrSyntax},
		{"comparison", "H > M", ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.src, err, tt.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	env := Env{Constants: testConstants}

	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unknown symbol", "NOPE", ErrUnknownSymbol},
		{"unknown symbol nested", "H + NOPE * 2", ErrUnknownSymbol},
		{"division by zero", "H / 0", ErrDivisionByZero},
		{"division by zero constant", "H / ZERO", ErrDivisionByZero},
		{"division by zero expression", "H / (M - M)", ErrDivisionByZero},
		{"remap empty range", "lr(1, H, H, 0, 1)", ErrDivisionByZero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.src, err)
			}
			_, err = e.Eval(env)
			if !errors.Is(err, tt.want) {
				t.Errorf("Eval(%q) error = %v, want %v", tt.src, err, tt.want)
			}
		})
	}
}

func TestNonFiniteLiteralsAreNotNumbers(t *testing.T) {
	for _, src := range []string{"Inf", "NaN", "inf"} {
		e, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", src, err)
		}
		if _, ok := e.Literal(); ok {
			t.Errorf("%q should not parse as a numeric literal", src)
		}
		if _, err := e.Eval(Env{}); !errors.Is(err, ErrUnknownSymbol) {
			t.Errorf("Eval(%q) error = %v, want ErrUnknownSymbol", src, err)
		}
	}
}

func TestRefs(t *testing.T) {
	e := MustParse("lr(lf, L, H, SHARP_L, SHARP_H) + H * pi")
	want := []string{"L", "H", "SHARP_L", "SHARP_H"}
	if got := e.Refs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Refs() = %v, want %v", got, want)
	}
	if refs := MustParse("3*pi/4").Refs(); len(refs) != 0 {
		t.Errorf("expected no refs, got %v", refs)
	}
}

func TestLiteralAndUsesLast(t *testing.T) {
	if v, ok := MustParse("270").Literal(); !ok || v != 270 {
		t.Errorf("Literal() = %v, %v", v, ok)
	}
	if _, ok := MustParse("SEG_LEN").Literal(); ok {
		t.Error("constant should not be a literal")
	}
	if !MustParse("lr(lf, 0, 1, 0, 1)").UsesLast() {
		t.Error("expected UsesLast for lf reference")
	}
	if MustParse("H * 2").UsesLast() {
		t.Error("unexpected UsesLast")
	}
}

func TestNumberAndString(t *testing.T) {
	e := Number(0.25)
	if e.String() != "0.25" {
		t.Errorf("String() = %q", e.String())
	}
	if v, err := e.Eval(Env{}); err != nil || v != 0.25 {
		t.Errorf("Eval() = %v, %v", v, err)
	}
}

func TestReserved(t *testing.T) {
	for _, name := range []string{"pi", "lf", "la", "lastFrequency", "lastAmplitude", "lr", "linearRemap"} {
		if !Reserved(name) {
			t.Errorf("%s should be reserved", name)
		}
	}
	if Reserved("SEG_LEN") {
		t.Error("SEG_LEN should not be reserved")
	}
}

func TestErrorMentionsExpression(t *testing.T) {
	_, err := MustParse("H / 0").Eval(Env{Constants: testConstants})
	if err == nil || !strings.Contains(err.Error(), "H / 0") {
		t.Errorf("error should mention the expression, got %v", err)
	}
}
