package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV 输出格式：16 bit 单声道 PCM。
const (
	wavBitDepth     = 16
	wavChannels     = 1
	wavFormatPCM    = 1
	wavMaxAmplitude = 32767
)

// EncodeWAV 把 float32 样本编码为 16 bit 单声道 WAV 写入 w。
// WAV 头中的长度字段需要回填，所以 w 必须可 Seek。
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("无效的采样率: %d", sampleRate)
	}
	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, wavChannels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Data:           Float32ToInts(samples),
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: wavChannels},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("写入 WAV 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("写入 WAV 头失败: %w", err)
	}
	return nil
}

// WAVBytes 把样本编码为内存中的 WAV 文件。
func WAVBytes(samples []float32, sampleRate int) ([]byte, error) {
	buf := &MemFile{}
	if err := EncodeWAV(buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVFile 把样本写成 WAV 文件。
func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 WAV 文件失败: %w", err)
	}
	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DecodeWAV 读取 WAV 数据，返回 [-1, 1] 范围的 float32 样本与采样率。
func DecodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("不是有效的 WAV 数据")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("解码 WAV 失败: %w", err)
	}
	return IntsToFloat32(buf.Data), int(dec.SampleRate), nil
}

// MemFile 是内存中的 io.WriteSeeker，用于在不落盘的情况下生成 WAV。
type MemFile struct {
	buf []byte
	pos int
}

func (m *MemFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *MemFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("无效的 whence: %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("负的偏移量")
	}
	m.pos = int(abs)
	return abs, nil
}

// Bytes 返回已写入的全部数据。
func (m *MemFile) Bytes() []byte { return m.buf }
