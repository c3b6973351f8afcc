// Package worker 通过 NATS 提供口哨语音合成服务。
//
// 请求是 JSON 编码的 Request，合成结果以 WAV 对象写入对象存储，
// 回复中只携带对象 key。
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/iabetor/whistle/internal/audio"
	"github.com/iabetor/whistle/internal/logger"
	"github.com/iabetor/whistle/internal/synth"
	"github.com/iabetor/whistle/internal/text"
)

const defaultTimeout = 30 * time.Second

// ErrEmptyInput 表示请求中没有可合成的文本。
var ErrEmptyInput = errors.New("输入为空")

// ObjectStore 是保存合成结果的对象存储。
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Request 是一次合成请求。
type Request struct {
	RequestID string `json:"request_id"`
	// Text 可包含多行；Lines 非空时忽略 Text。
	Text  string   `json:"text,omitempty"`
	Lines []string `json:"lines,omitempty"`
	// Split 为 true 时每行独立合成，各生成一个对象。
	Split      bool `json:"split,omitempty"`
	SampleRate int  `json:"sample_rate,omitempty"`
	// Normalize 默认为 true。
	Normalize *bool `json:"normalize,omitempty"`
}

// LineError 描述一行（Line 从 1 开始）或整个请求（Line 为 0）的失败。
type LineError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Reply 是合成请求的回复。AudioKeys 与输入行一一对应，失败的行为空字符串。
type Reply struct {
	RequestID  string      `json:"request_id"`
	AudioKeys  []string    `json:"audio_keys"`
	SampleRate int         `json:"sample_rate"`
	Errors     []LineError `json:"errors,omitempty"`
}

// Worker 监听 NATS subject 并处理合成请求。
type Worker struct {
	nc      *nats.Conn
	subject string
	store   ObjectStore
	synth   *synth.Synthesizer
	timeout time.Duration
}

// New 创建 Worker。timeout 为单个请求的处理超时，非正值使用 30 秒。
func New(nc *nats.Conn, subject string, store ObjectStore, s *synth.Synthesizer, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Worker{nc: nc, subject: subject, store: store, synth: s, timeout: timeout}
}

// Run 订阅 subject，阻塞直到 ctx 被取消，然后排空订阅。
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.nc.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("订阅 %s 失败: %w", w.subject, err)
	}
	logger.Infof("[worker] 开始监听: %s (模型 %s)", w.subject, w.synth.Model().Name())

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		return fmt.Errorf("排空订阅失败: %w", err)
	}
	logger.Info("[worker] 已停止")
	return nil
}

func (w *Worker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var req Request
	var reply *Reply
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		logger.Warnf("[worker] 解析请求失败: %v", err)
		reply = &Reply{Errors: []LineError{{Message: fmt.Sprintf("解析请求失败: %v", err)}}}
	} else {
		reply = w.Process(ctx, &req)
	}

	if msg.Reply == "" {
		return
	}
	if err := respond(msg, reply); err != nil {
		logger.Warnf("[worker] 回复请求 %s 失败: %v", reply.RequestID, err)
	}
}

// Process 处理一个请求并返回回复。单行失败不影响其他行。
func (w *Worker) Process(ctx context.Context, req *Request) *Reply {
	s := w.synth
	if req.SampleRate != 0 {
		if err := synth.CheckSampleRate(req.SampleRate); err != nil {
			logger.Warnf("[worker] 请求 %s 的采样率无效: %d", req.RequestID, req.SampleRate)
			return &Reply{RequestID: req.RequestID, AudioKeys: []string{}, Errors: []LineError{{Message: err.Error()}}}
		}
		if req.SampleRate != s.SampleRate() {
			s = s.With(synth.WithSampleRate(req.SampleRate))
		}
	}
	reply := &Reply{RequestID: req.RequestID, SampleRate: s.SampleRate(), AudioKeys: []string{}}
	start := time.Now()

	lines := req.Lines
	if len(lines) == 0 {
		var err error
		if lines, err = text.SplitLines([]byte(req.Text)); err != nil {
			reply.Errors = append(reply.Errors, LineError{Message: err.Error()})
			return reply
		}
	}
	if len(lines) == 0 {
		reply.Errors = append(reply.Errors, LineError{Message: ErrEmptyInput.Error()})
		return reply
	}
	if req.Normalize == nil || *req.Normalize {
		lines = text.PreprocessLines(lines)
	}

	if req.Split {
		for _, r := range s.SynthesizeLines(ctx, lines) {
			key := ""
			err := r.Err
			if err == nil {
				key, err = w.upload(ctx, r.Samples, r.SampleRate)
			}
			if err != nil {
				reply.Errors = append(reply.Errors, LineError{Line: r.Index + 1, Message: err.Error()})
			}
			reply.AudioKeys = append(reply.AudioKeys, key)
		}
	} else {
		joined := text.JoinLines(lines, s.Model().WordBoundary())
		pcm, rate, err := s.Synthesize(ctx, joined)
		var key string
		if err == nil {
			key, err = w.upload(ctx, pcm, rate)
		}
		if err != nil {
			reply.Errors = append(reply.Errors, LineError{Message: err.Error()})
		} else {
			reply.AudioKeys = append(reply.AudioKeys, key)
		}
	}

	logger.Infof("[worker] 请求 %s 完成: %d 行, %d 个错误, 耗时 %v",
		req.RequestID, len(lines), len(reply.Errors), time.Since(start))
	return reply
}

func (w *Worker) upload(ctx context.Context, pcm []float32, rate int) (string, error) {
	data, err := audio.WAVBytes(pcm, rate)
	if err != nil {
		return "", err
	}
	key := uuid.NewString() + ".wav"
	if err := w.store.Upload(ctx, key, data); err != nil {
		return "", fmt.Errorf("上传音频 %s 失败: %w", key, err)
	}
	return key, nil
}

func respond(msg *nats.Msg, reply *Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("编码回复失败: %w", err)
	}
	return msg.Respond(data)
}
