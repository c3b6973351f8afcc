package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Document 是模型文件的原始结构（YAML / JSON），校验前的形态。
type Document struct {
	Name         string `yaml:"name" json:"name"`
	WordBoundary string `yaml:"word_boundary" json:"word_boundary"`
	// WordSilence 词间插入的命名发音，为空表示由字素的边界规则自行处理。
	WordSilence         string                      `yaml:"word_silence" json:"word_silence"`
	Classes             map[string][]string         `yaml:"classes" json:"classes"`
	Constants           map[string]float64          `yaml:"constants" json:"constants"`
	NamedPronunciations map[string][]DocItem        `yaml:"named_pronunciations" json:"named_pronunciations"`
	Graphemes           map[string]DocGraphemeRules `yaml:"graphemes" json:"graphemes"`
}

// DocGraphemeRules 一个字素的上下文规则与兜底发音。
// Elsewhere 为 nil 表示未声明兜底发音；空列表表示声明了一个空发音。
type DocGraphemeRules struct {
	Elsewhere []DocItem    `yaml:"elsewhere" json:"elsewhere"`
	Contexts  []DocContext `yaml:"contexts" json:"contexts"`
}

// DocContext 一条上下文规则：con 为 [左模式, 右模式]，'' 表示词边界。
type DocContext struct {
	Con  []string  `yaml:"con" json:"con"`
	Pron []DocItem `yaml:"pron" json:"pron"`
}

// DocItem 是发音列表中的一项：命名发音的名字，或一个字面片段。
type DocItem struct {
	Ref     string
	Segment *DocSegment
}

// DocSegment 字面片段：f 频率、a 振幅、run 时长（毫秒）。
type DocSegment struct {
	F   *DocSpec `yaml:"f" json:"f"`
	A   *DocSpec `yaml:"a" json:"a"`
	Run *Value   `yaml:"run" json:"run"`
}

// DocSpec 曲线描述。type 为 constant / transition / contour。
type DocSpec struct {
	Type  string `yaml:"type" json:"type"`
	Curve string `yaml:"curve" json:"curve"`
	Y     *Value `yaml:"y" json:"y"`
	A     *Value `yaml:"a" json:"a"`
	SY    *Value `yaml:"sy" json:"sy"`
	EY    *Value `yaml:"ey" json:"ey"`
	SClip *Value `yaml:"sclip" json:"sclip"`
	EClip *Value `yaml:"eclip" json:"eclip"`
}

// Value 是数值字段：数字，或常量名 / 表达式文本。
type Value struct {
	Text   string
	Num    float64
	Number bool
}

// Source 返回交给表达式解析器的文本。
func (v Value) Source() string {
	if v.Number {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return v.Text
}

// UnmarshalYAML 区分数字标量与字符串标量。
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("第 %d 行: 数值字段必须是数字或字符串", node.Line)
	}
	switch node.ShortTag() {
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("第 %d 行: %w", node.Line, err)
		}
		*v = Value{Num: f, Number: true}
	default:
		*v = Value{Text: node.Value}
	}
	return nil
}

// UnmarshalJSON 区分 JSON 数字与字符串。
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{Text: s}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("数值字段必须是数字或字符串: %w", err)
	}
	*v = Value{Num: f, Number: true}
	return nil
}

// UnmarshalYAML 标量为引用，映射为字面片段。
func (it *DocItem) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*it = DocItem{Ref: node.Value}
		return nil
	case yaml.MappingNode:
		if err := checkKeys(node, segmentKeys); err != nil {
			return err
		}
		seg := &DocSegment{}
		if err := node.Decode(seg); err != nil {
			return err
		}
		*it = DocItem{Segment: seg}
		return nil
	}
	return fmt.Errorf("第 %d 行: 发音项必须是名称或片段", node.Line)
}

// UnmarshalJSON 字符串为引用，对象为字面片段。
func (it *DocItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*it = DocItem{Ref: s}
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("发音项必须是名称或片段: %s", data)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	seg := &DocSegment{}
	if err := dec.Decode(seg); err != nil {
		return err
	}
	*it = DocItem{Segment: seg}
	return nil
}

// UnmarshalYAML 拒绝未知字段，避免 sy/ey 之类的拼写错误被静默忽略。
func (s *DocSpec) UnmarshalYAML(node *yaml.Node) error {
	if err := checkKeys(node, specKeys); err != nil {
		return err
	}
	type plain DocSpec
	return node.Decode((*plain)(s))
}

var (
	segmentKeys = map[string]bool{"f": true, "a": true, "run": true}
	specKeys    = map[string]bool{
		"type": true, "curve": true, "y": true, "a": true,
		"sy": true, "ey": true, "sclip": true, "eclip": true,
	}
)

func checkKeys(node *yaml.Node, allowed map[string]bool) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("第 %d 行: 期望映射", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k := node.Content[i]
		if !allowed[k.Value] {
			return fmt.Errorf("第 %d 行: 未知字段 %q", k.Line, k.Value)
		}
	}
	return nil
}

// Format 模型文件格式。
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// Decode 将模型文件内容解析为 Document（不做语义校验）。
func Decode(data []byte, format Format) (*Document, error) {
	doc := &Document{}
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(doc); err != nil {
			return nil, fmt.Errorf("解析 JSON 模型失败: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(doc); err != nil {
			return nil, fmt.Errorf("解析 YAML 模型失败: %w", err)
		}
	}
	return doc, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
