package notes

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Meta：front-matter 中本服务关心的字段
type Meta struct {
	Title    string         `json:"title,omitempty"`
	Entities []string       `json:"entities,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Links    []string       `json:"links,omitempty"`
	Raw      map[string]any `json:"-"`
}

// ParseFrontMatter：拆出开头的 --- 块并解析，返回元数据与去掉该块的正文
// 约束：块以 "---" 开头、以下一处 "\n---" 结束；先按 YAML 解码，失败时退回逐行 key: value 解析；
// 没有闭合分隔符时原文返回、元数据为空
func ParseFrontMatter(md string) (Meta, string) {
	if !strings.HasPrefix(md, "---") {
		return Meta{}, md
	}
	end := strings.Index(md[3:], "\n---")
	if end < 0 {
		return Meta{}, md
	}
	end += 3
	block := strings.TrimSpace(md[3:end])
	body := strings.TrimLeft(md[end+4:], " \t\r\n")

	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil || raw == nil {
		raw = parseLines(block)
	}
	return metaFrom(raw), body
}

func metaFrom(raw map[string]any) Meta {
	m := Meta{Raw: raw}
	m.Title = scalar(raw["title"])
	m.Entities = stringList(raw["entities"])
	m.Tags = stringList(raw["tags"])
	m.Links = stringList(raw["links"])
	return m
}

// stringList：列表或单个标量都归一为字符串切片，空项丢弃
func stringList(v any) []string {
	var out []string
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		for _, it := range x {
			if s := scalar(it); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := scalar(x); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseLines：宽松的逐行解析（YAML 无法解码时使用）
func parseLines(block string) map[string]any {
	out := map[string]any{}
	for _, line := range strings.Split(block, "\n") {
		i := strings.Index(line, ":")
		if i < 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if key == "" {
			continue
		}
		if strings.HasPrefix(val, "[") && strings.HasSuffix(val, "]") {
			var items []any
			for _, s := range strings.Split(val[1:len(val)-1], ",") {
				if s = unquote(strings.TrimSpace(s)); s != "" {
					items = append(items, s)
				}
			}
			out[key] = items
			continue
		}
		switch lv := strings.ToLower(val); {
		case lv == "true" || lv == "false":
			out[key] = lv == "true"
		default:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				out[key] = f
			} else {
				out[key] = unquote(val)
			}
		}
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
		return s[1 : len(s)-1]
	}
	return s
}
