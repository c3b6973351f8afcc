package model

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Parse 解析并校验模型文档。
func Parse(data []byte, format Format) (*Model, error) {
	doc, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return Compile(doc, hex.EncodeToString(sum[:]))
}

// Load 从文件加载模型。扩展名为 .json 时按 JSON 解析，否则按 YAML。
func Load(file string) (*Model, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("读取模型文件失败: %w", err)
	}
	m, err := Parse(data, FormatFor(file))
	if err != nil {
		return nil, fmt.Errorf("加载模型 %s: %w", file, err)
	}
	if m.name == "" {
		m.name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	return m, nil
}

// FormatFor 根据文件扩展名判断模型格式。
func FormatFor(file string) Format {
	if strings.EqualFold(filepath.Ext(file), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Builtin 返回内置模型（suli、waso）。
func Builtin(name string) (*Model, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("未知的内置模型 %q（可选: %s）", name, strings.Join(BuiltinNames(), ", "))
	}
	m, err := Parse(data, FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("内置模型 %s: %w", name, err)
	}
	if m.name == "" {
		m.name = name
	}
	return m, nil
}

// BuiltinNames 返回内置模型名，按字母排序。
func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Select 优先加载 file 指定的模型文件，否则使用名为 name 的内置模型。
func Select(name, file string) (*Model, error) {
	if file != "" {
		return Load(file)
	}
	return Builtin(name)
}
