package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config 是 whistle 的顶层配置结构。
type Config struct {
	Synth    SynthConfig    `yaml:"synth" toml:"synth"`
	Output   OutputConfig   `yaml:"output" toml:"output"`
	Playback PlaybackConfig `yaml:"playback" toml:"playback"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	NATS     NATSConfig     `yaml:"nats" toml:"nats"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// SynthConfig 合成引擎配置。
type SynthConfig struct {
	// Model 内置模型名称（suli / waso）。
	Model string `yaml:"model" toml:"model"`
	// ModelFile 外部模型文件路径（.yaml / .yml / .json），设置后优先于 Model。
	ModelFile  string `yaml:"model_file" toml:"model_file"`
	SampleRate int    `yaml:"sample_rate" toml:"sample_rate"`
	// Workers 逐行合成时的并发数。
	Workers int `yaml:"workers" toml:"workers"`
	// Split 为 true 时每行独立合成、独立输出。
	Split bool `yaml:"split" toml:"split"`
	// SkipNormalize 跳过正字法预处理（输入已是模型字母表）。
	SkipNormalize bool `yaml:"skip_normalize" toml:"skip_normalize"`
}

// OutputConfig 输出配置。
type OutputConfig struct {
	// Dir 逐行模式下 WAV 文件的输出目录。
	Dir string `yaml:"dir" toml:"dir"`
}

// PlaybackConfig 播放配置。
type PlaybackConfig struct {
	Enabled  bool `yaml:"enabled" toml:"enabled"`
	Channels int  `yaml:"channels" toml:"channels"`
}

// CacheConfig 渲染缓存配置。
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	DBPath  string `yaml:"db_path" toml:"db_path"`
	// MaxSizeMB 缓存的 PCM 数据总大小上限（MB）。
	MaxSizeMB int64 `yaml:"max_size_mb" toml:"max_size_mb"`
}

// NATSConfig 合成服务（whistled）配置。
type NATSConfig struct {
	URL     string `yaml:"url" toml:"url"`
	Subject string `yaml:"subject" toml:"subject"`
	Bucket  string `yaml:"bucket" toml:"bucket"`
	// TimeoutSeconds 单个请求的处理超时。
	TimeoutSeconds int `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSize    int    `yaml:"max_size" toml:"max_size"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAge     int    `yaml:"max_age" toml:"max_age"`
}

// Default 返回只包含默认值的配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load 读取配置文件并返回 Config。
// 按扩展名选择格式：.toml 使用 TOML，其余按 YAML 解析。
// 支持 ${VAR_NAME} 形式的环境变量展开。path 为空时返回默认配置。
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${WHISTLE_NATS_URL}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Synth.Model == "" {
		cfg.Synth.Model = "suli"
	}
	if cfg.Synth.SampleRate == 0 {
		cfg.Synth.SampleRate = 44100
	}
	if cfg.Synth.Workers <= 0 {
		cfg.Synth.Workers = runtime.NumCPU()
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	if cfg.Playback.Channels == 0 {
		cfg.Playback.Channels = 1
	}
	if cfg.Cache.MaxSizeMB == 0 {
		cfg.Cache.MaxSizeMB = 256
	}
	if cfg.Cache.DBPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Cache.DBPath = filepath.Join(home, ".whistle", "cache.db")
		} else {
			cfg.Cache.DBPath = "./.whistle-cache.db"
		}
	} else if strings.HasPrefix(cfg.Cache.DBPath, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Cache.DBPath = home + cfg.Cache.DBPath[1:]
		}
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "whistle.synthesize"
	}
	if cfg.NATS.Bucket == "" {
		cfg.NATS.Bucket = "whistle-audio"
	}
	if cfg.NATS.TimeoutSeconds == 0 {
		cfg.NATS.TimeoutSeconds = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	cfg.Synth.Model = strings.ToLower(strings.TrimSpace(cfg.Synth.Model))
}
