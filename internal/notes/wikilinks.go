package notes

import (
	"regexp"
	"strings"
)

var wikiLinkRe = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)

// WikiLinks：[[id]] 与 [[id|标签]] 中的 id，按出现顺序去重
func WikiLinks(body string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range wikiLinkRe.FindAllStringSubmatch(body, -1) {
		id := strings.TrimSpace(m[1])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
