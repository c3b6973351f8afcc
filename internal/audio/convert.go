package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// clamp 把样本限制在 [-1.0, 1.0]。
func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}

// Int16ToFloat32 将 PCM int16 样本转换为 [-1.0, 1.0] 范围的 float32。
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Float32ToInt16 将 [-1.0, 1.0] 范围的 float32 样本转换为 PCM int16，超出范围的先钳位。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = int16(clamp(s) * math.MaxInt16)
	}
	return out
}

// Float32ToInts 转换为 go-audio IntBuffer 使用的 16 bit 整数样本。
func Float32ToInts(in []float32) []int {
	out := make([]int, len(in))
	for i, s := range in {
		out[i] = int(clamp(s) * wavMaxAmplitude)
	}
	return out
}

// IntsToFloat32 是 Float32ToInts 的逆变换。
func IntsToFloat32(in []int) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / wavMaxAmplitude
	}
	return out
}

// Int16ToBytes 将 int16 样本转换为小端字节切片，供播放设备回调使用。
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// EncodeSamples 把 float32 样本按小端 IEEE754 原样编码，缓存中保存的是未量化的 PCM。
func EncodeSamples(in []float32) []byte {
	out := make([]byte, len(in)*4)
	for i, s := range in {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(s))
	}
	return out
}

// DecodeSamples 是 EncodeSamples 的逆变换。
func DecodeSamples(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("样本数据长度 %d 不是 4 的倍数", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}
