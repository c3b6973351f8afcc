package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/iabetor/whistle/internal/audio"
	"github.com/iabetor/whistle/internal/config"
	"github.com/iabetor/whistle/internal/database"
	"github.com/iabetor/whistle/internal/logger"
	"github.com/iabetor/whistle/internal/model"
	"github.com/iabetor/whistle/internal/objectstore"
	"github.com/iabetor/whistle/internal/synth"
	"github.com/iabetor/whistle/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（.yaml / .toml），为空使用默认配置")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] whistled 启动中 (log_level=%s)", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("[main] 服务运行出错: %v", err)
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("[main] whistled 已停止")
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := synth.CheckSampleRate(cfg.Synth.SampleRate); err != nil {
		return fmt.Errorf("配置 sample_rate 无效: %w", err)
	}
	m, err := model.Select(cfg.Synth.Model, cfg.Synth.ModelFile)
	if err != nil {
		return err
	}

	opts := []synth.Option{
		synth.WithSampleRate(cfg.Synth.SampleRate),
		synth.WithWorkers(cfg.Synth.Workers),
	}
	if cfg.Cache.Enabled {
		db, err := database.Open(cfg.Cache.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		cache, err := audio.NewRenderCache(db, cfg.Cache.MaxSizeMB*1024*1024)
		if err != nil {
			return err
		}
		opts = append(opts, synth.WithCache(cache))
	}
	s := synth.New(m, opts...)

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("whistled"))
	if err != nil {
		return fmt.Errorf("连接 NATS %s 失败: %w", cfg.NATS.URL, err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("创建 JetStream 上下文失败: %w", err)
	}
	store, err := objectstore.New(js, cfg.NATS.Bucket)
	if err != nil {
		return err
	}

	w := worker.New(nc, cfg.NATS.Subject, store, s, time.Duration(cfg.NATS.TimeoutSeconds)*time.Second)
	return w.Run(ctx)
}
