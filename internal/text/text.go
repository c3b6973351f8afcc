// Package text 把输入文本规整为模型字母表中的字素序列。
package text

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// stressMinLen 不以元音开头的词至少要有这么多字符才标重音。
const stressMinLen = 4

// Preprocess 规整一行文本：
// NFC 归一化后按空白分词，小写，e→i、u→o；
// 长度不小于 4 或以元音开头的词，第一个元音 (i/a/o) 改为大写表示重音；
// 同一行的词直接拼接，整行作为一个词合成。
func Preprocess(line string) string {
	var b strings.Builder
	for _, w := range strings.Fields(norm.NFC.String(line)) {
		b.WriteString(preprocessWord(w))
	}
	return b.String()
}

func preprocessWord(w string) string {
	w = strings.ToLower(w)
	w = strings.NewReplacer("e", "i", "u", "o").Replace(w)

	first, _ := utf8.DecodeRuneInString(w)
	if utf8.RuneCountInString(w) < stressMinLen && !isVowel(first) {
		return w
	}
	if i := strings.IndexFunc(w, isVowel); i >= 0 {
		r, size := utf8.DecodeRuneInString(w[i:])
		return w[:i] + string(unicode.ToUpper(r)) + w[i+size:]
	}
	return w
}

func isVowel(r rune) bool {
	return r == 'i' || r == 'a' || r == 'o'
}

// PreprocessLines 逐行规整。
func PreprocessLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = Preprocess(l)
	}
	return out
}

// JoinLines 用分词字符把多行拼成一段文本（合并模式）。
func JoinLines(lines []string, boundary rune) string {
	return strings.Join(lines, string(boundary))
}

// ReadInput 如果 arg 是一个文件则逐行读取（去掉首尾空白并跳过空行），否则把 arg 本身当作一行文本。
func ReadInput(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err != nil || !info.Mode().IsRegular() {
		return []string{arg}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("读取输入文件失败: %w", err)
	}
	return SplitLines(data)
}

// SplitLines 按行切分，去掉首尾空白并跳过空行。行长度不受限制。
func SplitLines(data []byte) ([]string, error) {
	var lines []string
	r := bufio.NewReader(bytes.NewReader(data))
	for {
		l, err := r.ReadString('\n')
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("读取输入失败: %w", err)
		}
	}
}
