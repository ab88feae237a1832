package country

import "strings"

// 历史政权与法语别名种子（slug 形式）
// 约束：建索引最后写入，覆盖数据集中的同名别名
var seedAliases = map[string]string{
	"ussr":                  "RUS",
	"u-s-s-r":               "RUS",
	"urss":                  "RUS",
	"u-r-s-s":               "RUS",
	"soviet-union":          "RUS",
	"union-sovietique":      "RUS",
	"cccp":                  "RUS",
	"sssr":                  "RUS",
	"russie":                "RUS",
	"etats-unis":            "USA",
	"etats-unis-d-amerique": "USA",
}

// 政权别名直达：包含以下任一子串（不区分大小写）即解析为 RUS，不依赖索引
var regimeMarkers = []string{"ussr", "soviet", "urss"}

func isRegimeAlias(token string) bool {
	t := strings.ToLower(StripDiacritics(token))
	for _, m := range regimeMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	// "U.S.S.R." 之类的标点变体
	return strings.Contains(strings.ReplaceAll(Slugify(token), "-", ""), "ussr")
}
