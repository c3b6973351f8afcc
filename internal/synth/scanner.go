package synth

import (
	"github.com/iabetor/whistle/internal/logger"
	"github.com/iabetor/whistle/internal/model"
)

// ScanState 表示扫描一个词时的状态。
type ScanState int

const (
	// StateBeforeWord：尚未读入任何字素，左上下文为词边界。
	StateBeforeWord ScanState = iota
	// StateAtGrapheme：位于某个字素上，左上下文为前一个字素。
	StateAtGrapheme
	// StateAfterWord：词已扫描完毕（终止状态）。
	StateAfterWord
)

var scanStateNames = [...]string{
	"BeforeWord",
	"AtGrapheme",
	"AfterWord",
}

func (s ScanState) String() string {
	if int(s) < len(scanStateNames) {
		return scanStateNames[s]
	}
	return "Unknown"
}

// scanner 从左到右扫描一个词，给出每个字素的左右上下文。
type scanner struct {
	word  []rune
	pos   int
	prev  rune
	state ScanState
}

func newScanner(word string) *scanner {
	return &scanner{word: []rune(word), pos: -1, prev: model.Boundary, state: StateBeforeWord}
}

// Next 前进到下一个字素，到达词尾时进入 AfterWord 并返回 false。
func (s *scanner) Next() bool {
	switch s.state {
	case StateAfterWord:
		return false
	case StateAtGrapheme:
		s.prev = s.word[s.pos]
	}
	s.pos++
	if s.pos >= len(s.word) {
		s.transition(StateAfterWord)
		return false
	}
	s.transition(StateAtGrapheme)
	return true
}

// Context 返回当前字素及其左右上下文。
func (s *scanner) Context() (g, left, right rune) {
	g = s.word[s.pos]
	right = model.Boundary
	if s.pos+1 < len(s.word) {
		right = s.word[s.pos+1]
	}
	return g, s.prev, right
}

// Position 返回当前字素在词中的下标。
func (s *scanner) Position() int { return s.pos }

// State 返回当前状态。
func (s *scanner) State() ScanState { return s.state }

func (s *scanner) transition(to ScanState) bool {
	if !validScanTransition(s.state, to) {
		logger.Warnf("[synth] 非法扫描状态转换 %s → %s", s.state, to)
		return false
	}
	s.state = to
	return true
}

// validScanTransition 检查状态转换是否合法：
//
//	BeforeWord → AtGrapheme | AfterWord（空词）
//	AtGrapheme → AtGrapheme | AfterWord
//	AfterWord 为终止状态
func validScanTransition(from, to ScanState) bool {
	switch from {
	case StateBeforeWord, StateAtGrapheme:
		return to == StateAtGrapheme || to == StateAfterWord
	}
	return false
}
