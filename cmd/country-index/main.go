package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"globe-notes/internal/config"
	"globe-notes/internal/country"
	"globe-notes/internal/logger"
)

type line struct {
	Token    string              `json:"token"`
	ISO3     string              `json:"iso3,omitempty"`
	Resolved bool                `json:"resolved"`
	Target   country.FocusTarget `json:"target"`
}

// 文档注释：国家索引调试工具
// 背景：加载 COUNTRIES_GEOJSON 后逐个解析令牌并输出落点，每行一个 JSON
// 约束：令牌取自命令行参数；没有参数时逐行读取标准输入；"list" 输出全部国家记录
func main() {
	config.LoadDotEnv()
	l := logger.Setup()
	cfg := config.FromEnv()
	idx, err := country.NewLoader(cfg.CountriesGeoJSON, nil).Ensure(context.Background())
	if err != nil {
		l.Error("country_index_error", "source", cfg.CountriesGeoJSON, "err", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	run := func(token string) {
		if token == "list" {
			for _, r := range idx.Records() {
				_ = enc.Encode(r)
			}
			return
		}
		out := line{Token: token}
		if iso3, ok := country.Resolve(idx, token); ok {
			out.ISO3, out.Resolved = iso3, true
			out.Target = country.ComputeOrigin(idx, country.OrbGeometry{}, iso3)
		}
		_ = enc.Encode(out)
	}
	if len(os.Args) > 1 {
		for _, t := range os.Args[1:] {
			run(t)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "country index ready (%d countries)\n", idx.Len())
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		if t := strings.TrimSpace(in.Text()); t != "" {
			run(t)
		}
	}
}
