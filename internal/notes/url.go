package notes

import (
	"net/url"
	"strings"
)

// ResolveNoteURL：笔记原文地址
// 约束：事件笔记位于 <base>/<id>.md；实体笔记位于 <base>/entities/<子目录>/<id>.md，
// 子目录按前缀取 countries / orgs / person，其他 ent- 前缀为空子目录
func ResolveNoteURL(base, id string) string {
	base = strings.TrimRight(base, "/")
	esc := url.PathEscape(id) + ".md"
	if !strings.HasPrefix(id, "ent-") {
		return base + "/" + esc
	}
	sub := ""
	switch {
	case strings.HasPrefix(id, "ent-country-"):
		sub = "countries"
	case strings.HasPrefix(id, "ent-org-"):
		sub = "orgs"
	case strings.HasPrefix(id, "ent-person-"):
		sub = "person"
	}
	return base + "/entities/" + sub + "/" + esc
}
