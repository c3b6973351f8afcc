package synth

import (
	"errors"
	"testing"

	"github.com/iabetor/whistle/internal/model"
)

func compile(t *testing.T, src string) *model.Model {
	t.Helper()
	m, err := model.Parse([]byte(src), model.FormatYAML)
	if err != nil {
		t.Fatalf("model.Parse failed: %v", err)
	}
	return m
}

func builtin(t *testing.T, name string) *model.Model {
	t.Helper()
	m, err := model.Builtin(name)
	if err != nil {
		t.Fatalf("model.Builtin(%q) failed: %v", name, err)
	}
	return m
}

const resolveYAML = `
classes:
  C: ['t', 'k']
  V: ['i', 'a']
named_pronunciations:
  FIRST: [{run: 1}]
  SECOND: [{run: 2}]
  BOUNDARY: [{run: 3}]
  FALLBACK: [{run: 4}]
graphemes:
  'a':
    elsewhere: [FALLBACK]
    contexts:
      - {con: ['C', ''], pron: [FIRST]}
      - {con: ['t', ''], pron: [SECOND]}
      - {con: ['', ''], pron: [BOUNDARY]}
  't':
    contexts:
      - {con: ['', 'V'], pron: [FIRST]}
  'k':
    elsewhere: []
  'i':
    elsewhere: [FALLBACK]
`

func TestResolve(t *testing.T) {
	m := compile(t, resolveYAML)

	tests := []struct {
		name        string
		g           rune
		left, right rune
		want        string
	}{
		{"first match wins over later literal", 'a', 't', model.Boundary, "FIRST"},
		{"class member", 'a', 'k', model.Boundary, "FIRST"},
		{"boundary both sides", 'a', model.Boundary, model.Boundary, "BOUNDARY"},
		{"right context not boundary", 'a', 't', 'i', "FALLBACK"},
		{"left vowel falls back", 'a', 'i', model.Boundary, "FALLBACK"},
		{"consonant before vowel", 't', model.Boundary, 'a', "FIRST"},
		{"NUL is not a boundary", 'a', 0, model.Boundary, "FALLBACK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Resolve(m, tt.g, tt.left, tt.right)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if len(p) != 1 || p[0].Ref != tt.want {
				t.Errorf("Resolve(%q, %q, %q) = %+v, want %s", tt.g, tt.left, tt.right, p, tt.want)
			}
		})
	}
}

func TestResolveEmptyElsewhere(t *testing.T) {
	m := compile(t, resolveYAML)
	p, err := Resolve(m, 'k', model.Boundary, model.Boundary)
	if err != nil || len(p) != 0 {
		t.Errorf("Resolve(k) = %+v, %v; want empty pronunciation", p, err)
	}
}

func TestResolveUnresolved(t *testing.T) {
	m := compile(t, resolveYAML)

	tests := []struct {
		name        string
		g           rune
		left, right rune
	}{
		{"no rule and no elsewhere", 't', 'a', 'i'},
		{"outside alphabet", 'z', model.Boundary, model.Boundary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(m, tt.g, tt.left, tt.right)
			if !errors.Is(err, ErrUnresolvedGrapheme) {
				t.Fatalf("error = %v, want ErrUnresolvedGrapheme", err)
			}
			var se *Error
			if !errors.As(err, &se) || se.Grapheme != tt.g {
				t.Errorf("error should carry grapheme %q: %+v", tt.g, se)
			}
		})
	}
}

// 有兜底发音的字素在任意上下文中都能解析。
func TestResolveTotalWithElsewhere(t *testing.T) {
	for _, name := range model.BuiltinNames() {
		m := builtin(t, name)
		contexts := append([]rune{model.Boundary}, m.Alphabet()...)
		for _, g := range m.Alphabet() {
			rs, _ := m.Grapheme(g)
			if !rs.HasElsewhere {
				continue
			}
			for _, l := range contexts {
				for _, r := range contexts {
					if _, err := Resolve(m, g, l, r); err != nil {
						t.Errorf("%s: Resolve(%q, %q, %q) failed: %v", name, g, l, r, err)
					}
				}
			}
		}
	}
}

type namedMap map[string]model.Pronunciation

func (n namedMap) Named(name string) (model.Pronunciation, bool) {
	p, ok := n[name]
	return p, ok
}

func TestExpandPreservesOrder(t *testing.T) {
	s1, s2, s3 := &model.Segment{}, &model.Segment{}, &model.Segment{}
	lookup := namedMap{
		"X": {{Segment: s2}, {Ref: "Y"}},
		"Y": {{Segment: s3}},
	}
	got, err := Expand(lookup, model.Pronunciation{{Segment: s1}, {Ref: "X"}, {Ref: "Y"}})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	want := []*model.Segment{s1, s2, s3, s3}
	if len(got) != len(want) {
		t.Fatalf("Expand returned %d segments, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d out of order", i)
		}
	}
}

func TestExpandErrors(t *testing.T) {
	seg := &model.Segment{}
	tests := []struct {
		name   string
		lookup namedMap
		entry  string
		kind   error
		ref    string
	}{
		{"unknown reference", namedMap{"A": {{Segment: seg}, {Ref: "Q"}}}, "A", ErrUnknownReference, "Q"},
		{"self cycle", namedMap{"A": {{Ref: "A"}}}, "A", ErrCyclicReference, "A"},
		{"indirect cycle", namedMap{"A": {{Ref: "B"}}, "B": {{Segment: seg}, {Ref: "A"}}}, "A", ErrCyclicReference, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Expand(tt.lookup, model.Pronunciation{{Ref: tt.entry}})
			if !errors.Is(err, tt.kind) {
				t.Fatalf("error = %v, want %v", err, tt.kind)
			}
			var se *Error
			if !errors.As(err, &se) || se.Name != tt.ref {
				t.Errorf("error name = %+v, want %q", se, tt.ref)
			}
		})
	}
}

// 无环的命名发音图展开后只剩字面片段。
func TestExpandBuiltinTerminates(t *testing.T) {
	m := builtin(t, "suli")
	for _, g := range m.Alphabet() {
		rs, _ := m.Grapheme(g)
		prons := []model.Pronunciation{rs.Elsewhere}
		for _, r := range rs.Rules {
			prons = append(prons, r.Pronunciation)
		}
		for _, p := range prons {
			segs, err := Expand(m, p)
			if err != nil {
				t.Fatalf("Expand for %q failed: %v", g, err)
			}
			for _, s := range segs {
				if s == nil {
					t.Fatalf("nil segment in expansion of %q", g)
				}
			}
		}
	}
}

func TestScanner(t *testing.T) {
	sc := newScanner("tOk")
	if sc.State() != StateBeforeWord {
		t.Fatalf("initial state = %s", sc.State())
	}

	type ctx struct{ g, l, r rune }
	var got []ctx
	for sc.Next() {
		if sc.State() != StateAtGrapheme {
			t.Fatalf("state = %s while scanning", sc.State())
		}
		g, l, r := sc.Context()
		got = append(got, ctx{g, l, r})
	}
	want := []ctx{
		{'t', model.Boundary, 'O'},
		{'O', 't', 'k'},
		{'k', 'O', model.Boundary},
	}
	if len(got) != len(want) {
		t.Fatalf("scanned %d graphemes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("context %d = %q, want %q", i, []rune{got[i].g, got[i].l, got[i].r}, []rune{want[i].g, want[i].l, want[i].r})
		}
	}
	if sc.State() != StateAfterWord || sc.Next() {
		t.Error("scanner should stay in AfterWord")
	}
}

func TestScannerEmptyWord(t *testing.T) {
	sc := newScanner("")
	if sc.Next() {
		t.Error("empty word should have no graphemes")
	}
	if sc.State() != StateAfterWord {
		t.Errorf("state = %s, want AfterWord", sc.State())
	}
}

func TestValidScanTransition(t *testing.T) {
	tests := []struct {
		from, to ScanState
		want     bool
	}{
		{StateBeforeWord, StateAtGrapheme, true},
		{StateBeforeWord, StateAfterWord, true},
		{StateAtGrapheme, StateAtGrapheme, true},
		{StateAtGrapheme, StateAfterWord, true},
		{StateAtGrapheme, StateBeforeWord, false},
		{StateAfterWord, StateAtGrapheme, false},
		{StateAfterWord, StateBeforeWord, false},
	}
	for _, tt := range tests {
		if got := validScanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("validScanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if ScanState(9).String() != "Unknown" {
		t.Error("unexpected name for unknown state")
	}
}
