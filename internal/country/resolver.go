package country

import (
	"strings"

	"globe-notes/internal/logger"
	"globe-notes/internal/metrics"
)

// 国家实体 id 前缀
const EntityPrefix = "ent-country-"

// Resolve：把任意令牌解析为规范三字母代码
// 背景：令牌可能是 ISO2、ISO3、自由名称或带前缀的实体 id
// 约束（按序，首个命中即返回）：
//  1. 空令牌失败
//  2. 去掉 "ent-country-" 前缀（不区分大小写）
//  3. 含 ussr/soviet/urss 直接返回 RUS，不依赖索引
//  4. 恰为三个字母：原样大写返回，不校验是否存在于索引（允许数据集未就绪时前向引用）
//  5. 恰为两个字母：查 ISO2 表
//  6. 其余按 slug 查名称表
//
// idx 可以为空索引或 nil，此时只有 3、4 两步可能成功
func Resolve(idx *Index, token string) (string, bool) {
	iso3, ok, via := resolve(idx, token)
	if ok {
		metrics.ResolveTotal.WithLabelValues(via).Inc()
	} else {
		metrics.ResolveTotal.WithLabelValues("miss").Inc()
		logger.L().Debug("country_resolve_miss", "token", token)
	}
	return iso3, ok
}

func resolve(idx *Index, token string) (string, bool, string) {
	t := strings.TrimSpace(token)
	if t == "" {
		return "", false, ""
	}
	if len(t) >= len(EntityPrefix) && strings.EqualFold(t[:len(EntityPrefix)], EntityPrefix) {
		t = strings.TrimSpace(t[len(EntityPrefix):])
		if t == "" {
			return "", false, ""
		}
	}
	if isRegimeAlias(t) {
		return "RUS", true, "regime"
	}
	up := strings.ToUpper(t)
	if isAlpha(up, 3) {
		return up, true, "iso3"
	}
	if idx == nil {
		return "", false, ""
	}
	if isAlpha(up, 2) {
		v, ok := idx.ISO3ForISO2(up)
		return v, ok, "iso2"
	}
	s := Slugify(t)
	if s == "" {
		return "", false, ""
	}
	v, ok := idx.ISO3ForName(s)
	return v, ok, "name"
}
