package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/iabetor/whistle/internal/audio"
	"github.com/iabetor/whistle/internal/config"
	"github.com/iabetor/whistle/internal/database"
	"github.com/iabetor/whistle/internal/logger"
	"github.com/iabetor/whistle/internal/model"
	"github.com/iabetor/whistle/internal/synth"
	"github.com/iabetor/whistle/internal/text"
	"github.com/iabetor/whistle/internal/tts"
)

// errUsage 表示命令行参数错误，退出码为 2。
var errUsage = errors.New("参数错误")

type options struct {
	config      string
	model       string
	modelFile   string
	input       string
	outDir      string
	split       bool
	rate        int
	workers     int
	play        bool
	timeline    bool
	noNormalize bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	logger.Sync()
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "whistle: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("whistle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.config, "config", "", "配置文件路径（.yaml / .toml）")
	fs.StringVar(&opts.model, "m", "", "内置模型名称: "+strings.Join(model.BuiltinNames(), ", "))
	fs.StringVar(&opts.modelFile, "model-file", "", "外部模型文件（.yaml / .json），优先于 -m")
	fs.StringVar(&opts.input, "i", "", "输入：文本文件路径或直接的文本（必填）")
	fs.StringVar(&opts.outDir, "o", "", "逐行模式下 WAV 文件的输出目录")
	fs.BoolVar(&opts.split, "split", false, "每行独立合成，输出 <行>.wav")
	fs.IntVar(&opts.rate, "rate", 0, "采样率（Hz）")
	fs.IntVar(&opts.workers, "workers", 0, "逐行模式的并发数")
	fs.BoolVar(&opts.play, "play", false, "直接播放而不输出 WAV")
	fs.BoolVar(&opts.timeline, "timeline", false, "输出求值后的时间线（JSON）而不是音频")
	fs.BoolVar(&opts.noNormalize, "no-normalize", false, "跳过正字法预处理")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "用法: whistle -i <文件|文本> [选项] > out.wav")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.input == "" {
		fmt.Fprintln(stderr, "缺少 -i 参数")
		fs.Usage()
		return nil, errUsage
	}
	if opts.rate != 0 {
		if err := synth.CheckSampleRate(opts.rate); err != nil {
			fmt.Fprintf(stderr, "-rate 无效: %v\n", err)
			return nil, errUsage
		}
	}
	return opts, nil
}

// applyFlags 用命令行参数覆盖配置文件。
func applyFlags(cfg *config.Config, opts *options) {
	if opts.model != "" {
		cfg.Synth.Model = strings.ToLower(opts.model)
		cfg.Synth.ModelFile = ""
	}
	if opts.modelFile != "" {
		cfg.Synth.ModelFile = opts.modelFile
	}
	if opts.outDir != "" {
		cfg.Output.Dir = opts.outDir
	}
	if opts.split {
		cfg.Synth.Split = true
	}
	if opts.rate > 0 {
		cfg.Synth.SampleRate = opts.rate
	}
	if opts.workers > 0 {
		cfg.Synth.Workers = opts.workers
	}
	if opts.play {
		cfg.Playback.Enabled = true
	}
	if opts.noNormalize {
		cfg.Synth.SkipNormalize = true
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.config)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)
	if err := synth.CheckSampleRate(cfg.Synth.SampleRate); err != nil {
		return fmt.Errorf("配置 sample_rate 无效: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	m, err := model.Select(cfg.Synth.Model, cfg.Synth.ModelFile)
	if err != nil {
		return err
	}
	logger.Infof("[main] 使用模型 %q", m.Name())

	synthOpts := []synth.Option{
		synth.WithSampleRate(cfg.Synth.SampleRate),
		synth.WithWorkers(cfg.Synth.Workers),
	}
	if cfg.Cache.Enabled && !opts.timeline {
		db, err := database.Open(cfg.Cache.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		cache, err := audio.NewRenderCache(db, cfg.Cache.MaxSizeMB*1024*1024)
		if err != nil {
			return err
		}
		synthOpts = append(synthOpts, synth.WithCache(cache))
	}
	s := synth.New(m, synthOpts...)

	raw, err := text.ReadInput(opts.input)
	if err != nil {
		return err
	}
	lines := raw
	if !cfg.Synth.SkipNormalize {
		lines = text.PreprocessLines(raw)
	}

	switch {
	case opts.timeline:
		return writeTimelines(stdout, s, lines, cfg.Synth.Split)
	case cfg.Synth.Split:
		return runSplit(ctx, stdout, s, raw, lines, cfg)
	default:
		return runJoined(ctx, stdout, s, text.JoinLines(lines, m.WordBoundary()), cfg)
	}
}

// runJoined 把整段输入合成为一个 WAV 写到 stdout。
func runJoined(ctx context.Context, stdout io.Writer, eng tts.Engine, joined string, cfg *config.Config) error {
	pcm, rate, err := eng.Synthesize(ctx, joined)
	if err != nil {
		return err
	}

	if cfg.Playback.Enabled {
		return play(ctx, pcm, rate, cfg.Playback.Channels)
	}

	data, err := audio.WAVBytes(pcm, rate)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

// runSplit 每行输出一个 <原始行>.wav，失败的行不影响其他行。
func runSplit(ctx context.Context, stdout io.Writer, s *synth.Synthesizer, raw, lines []string, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	var player *audio.Player
	if cfg.Playback.Enabled {
		p, err := audio.NewPlayer(cfg.Playback.Channels)
		if err != nil {
			return err
		}
		defer p.Close()
		player = p
	}

	failed := 0
	for _, r := range s.SynthesizeLines(ctx, lines) {
		if r.Err != nil {
			logger.Errorf("[main] 第 %d 行 %q 合成失败: %v", r.Index+1, raw[r.Index], r.Err)
			failed++
			continue
		}
		if player != nil {
			if err := player.Play(ctx, r.Samples, r.SampleRate); err != nil {
				return err
			}
			continue
		}

		name := fileName(raw[r.Index]) + ".wav"
		if err := audio.WriteWAVFile(filepath.Join(cfg.Output.Dir, name), r.Samples, r.SampleRate); err != nil {
			logger.Errorf("[main] 写入 %s 失败: %v", name, err)
			failed++
			continue
		}
		fmt.Fprintln(stdout, name)
	}

	if failed > 0 {
		return fmt.Errorf("%d/%d 行合成失败", failed, len(lines))
	}
	return nil
}

// fileName 把一行文本变成可用的文件名。
func fileName(line string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, line)
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name
}

func play(ctx context.Context, pcm []float32, rate, channels int) error {
	p, err := audio.NewPlayer(channels)
	if err != nil {
		return err
	}
	defer p.Close()
	return p.Play(ctx, pcm, rate)
}

// lineTimeline 是 -timeline -split 的输出单元。
type lineTimeline struct {
	Line     int             `json:"line"`
	Text     string          `json:"text"`
	Timeline *synth.Timeline `json:"timeline,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func writeTimelines(stdout io.Writer, s *synth.Synthesizer, lines []string, split bool) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if !split {
		tl, err := s.Timeline(text.JoinLines(lines, s.Model().WordBoundary()))
		if err != nil {
			return err
		}
		return enc.Encode(tl)
	}

	out := make([]lineTimeline, len(lines))
	failed := 0
	for i, line := range lines {
		out[i] = lineTimeline{Line: i + 1, Text: line}
		tl, err := s.Timeline(line)
		if err != nil {
			out[i].Error = err.Error()
			failed++
			continue
		}
		out[i].Timeline = tl
	}
	if err := enc.Encode(out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d 行求值失败", failed, len(lines))
	}
	return nil
}
