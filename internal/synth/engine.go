// Package synth 是口哨语音合成引擎：上下文解析、发音展开、曲线合成与波形渲染。
//
// 引擎是纯同步计算，除共享的只读 Model 外没有共享状态。
// 每一行文本拥有独立的连续性状态，可以在多个 goroutine 中并行渲染。
package synth

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"runtime"
	"sync"
	"time"

	"github.com/iabetor/whistle/internal/logger"
	"github.com/iabetor/whistle/internal/model"
	"github.com/iabetor/whistle/internal/tts"
)

var _ tts.Engine = (*Synthesizer)(nil)

// Cache 缓存渲染结果。实现必须是并发安全的。
type Cache interface {
	Lookup(key string) ([]float32, bool)
	Store(key string, samples []float32) error
}

// Option 配置 Synthesizer。
type Option func(*Synthesizer)

// WithSampleRate 设置采样率，非正值被忽略。
func WithSampleRate(rate int) Option {
	return func(s *Synthesizer) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithWorkers 设置独立行模式下的最大并行数，非正值被忽略。
func WithWorkers(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithCache 启用渲染结果缓存。
func WithCache(c Cache) Option {
	return func(s *Synthesizer) { s.cache = c }
}

// Synthesizer 使用一个已校验的模型把文本合成为 PCM。可被多个 goroutine 并发使用。
type Synthesizer struct {
	model      *model.Model
	sampleRate int
	workers    int
	cache      Cache
}

// New 创建合成器。默认采样率 44100 Hz，并行数为 CPU 核数。
func New(m *model.Model, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		model:      m,
		sampleRate: DefaultSampleRate,
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// With 返回应用了额外选项的副本，原合成器不变。
func (s *Synthesizer) With(opts ...Option) *Synthesizer {
	c := *s
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Model 返回合成器使用的模型。
func (s *Synthesizer) Model() *model.Model { return s.model }

// SampleRate 返回输出采样率。
func (s *Synthesizer) SampleRate() int { return s.sampleRate }

// Timeline 为一段文本构建时间线。
func (s *Synthesizer) Timeline(text string) (*Timeline, error) {
	return BuildTimeline(s.model, Words(s.model, text))
}

// Synthesize 把整段文本合成为一个 PCM 缓冲（合并模式）。
// 任一字素出错都会使整段合成失败。
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	key := s.cacheKey(text)
	if s.cache != nil {
		if pcm, ok := s.cache.Lookup(key); ok {
			logger.Debugf("[synth] 缓存命中: %q (%d 样本)", text, len(pcm))
			return pcm, s.sampleRate, nil
		}
	}

	start := time.Now()
	tl, err := s.Timeline(text)
	if err != nil {
		return nil, 0, err
	}
	pcm, err := Render(tl, s.sampleRate)
	if err != nil {
		return nil, 0, err
	}
	logger.Debugf("[synth] 合成 %q: %d 个片段, %.0f ms, %d 样本, 耗时 %v",
		text, len(tl.Segments), tl.TotalMs(), len(pcm), time.Since(start))

	if s.cache != nil {
		if err := s.cache.Store(key, pcm); err != nil {
			logger.Warnf("[synth] 写入缓存失败: %v", err)
		}
	}
	return pcm, s.sampleRate, nil
}

// LineResult 是独立行模式下一行的合成结果。
type LineResult struct {
	Index      int
	Text       string
	Samples    []float32
	SampleRate int
	Err        error
}

// SynthesizeLines 独立合成每一行（独立行模式）。
// 各行并行渲染，结果按原始行号排列；某一行失败不影响其他行。
// ctx 取消后尚未开始的行以 ctx.Err() 结束。
func (s *Synthesizer) SynthesizeLines(ctx context.Context, lines []string) []LineResult {
	results := make([]LineResult, len(lines))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i, line := range lines {
		wg.Add(1)
		go func(i int, line string) {
			defer wg.Done()
			results[i] = LineResult{Index: i, Text: line}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			pcm, rate, err := s.Synthesize(ctx, line)
			if err != nil {
				logger.Debugf("[synth] 第 %d 行合成失败: %v", i+1, err)
				results[i].Err = err
				return
			}
			results[i].Samples = pcm
			results[i].SampleRate = rate
		}(i, line)
	}

	wg.Wait()
	return results
}

// cacheKey = sha256(模型摘要, 采样率, 文本)。
func (s *Synthesizer) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(s.model.Digest()))
	var rate [8]byte
	binary.LittleEndian.PutUint64(rate[:], uint64(s.sampleRate))
	h.Write(rate[:])
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
