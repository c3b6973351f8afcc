// Package tts 定义合成后端的统一接口。
package tts

import "context"

// Engine 把一段文本合成为单声道 PCM。
type Engine interface {
	// Synthesize 返回 [-1, 1] 范围的 float32 样本、采样率（Hz）和错误。
	// ctx 取消时尽快返回 ctx.Err()。
	Synthesize(ctx context.Context, text string) ([]float32, int, error)
}
