// 包 country：国家多边形数据集的索引、令牌解析与落点计算
package country

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 文档注释：名称规范化（slug）
// 约束：NFD 分解后去掉组合附加符号，小写；非字母数字的连续片段折叠为单个 "-"，首尾 "-" 去除
// 例："Côte d'Ivoire" -> "cote-d-ivoire"，"U.S.S.R." -> "u-s-s-r"
func Slugify(s string) string {
	folded := StripDiacritics(s)
	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// StripDiacritics：去掉变音符号，保留其余字符与大小写
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
