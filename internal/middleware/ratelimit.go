package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"globe-notes/internal/logger"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：会话接口会触发笔记抓取与场景重算，流量峰值时对入口限速
// 约束：不做排队，超出即返回 429
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

func NewTokenBucket(qps int) *TokenBucket {
	if qps <= 0 {
		qps = 200
	}
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// EdgeGeo：CDN 边缘节点写入的访问者国家信息
type EdgeGeo struct {
	ClientIP string
	Alpha2   string
	Alpha3   string
}

type edgeGeoKey struct{}

// EdgeGeoFrom：取出中间件注入的边缘地理信息
func EdgeGeoFrom(ctx context.Context) (EdgeGeo, bool) {
	g, ok := ctx.Value(edgeGeoKey{}).(EdgeGeo)
	return g, ok
}

// Wrap：注入边缘地理信息；rateLimit 开启时再套一层令牌桶
func Wrap(next http.Handler, rateLimit bool, qps int) http.Handler {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if geo, ok := parseEdgeGeo(r); ok {
			logger.L().Debug("edge_geo_inject", "ip", geo.ClientIP, "alpha2", geo.Alpha2, "alpha3", geo.Alpha3)
			r = r.WithContext(context.WithValue(r.Context(), edgeGeoKey{}, geo))
		}
		next.ServeHTTP(w, r)
	})
	if !rateLimit {
		return h
	}
	tb := NewTokenBucket(qps)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.allow() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// 文档注释：解析边缘节点请求头（EdgeOne 的 X-EO-* 与 Cloudflare 的 CF-IPCountry）
// 约束：只取国家代码，异常值忽略
func parseEdgeGeo(r *http.Request) (EdgeGeo, bool) {
	h := r.Header
	g := EdgeGeo{
		ClientIP: h.Get("X-EO-Client-IP"),
		Alpha2:   strings.ToUpper(strings.TrimSpace(h.Get("X-EO-Geo-CountryCodeAlpha2"))),
		Alpha3:   strings.ToUpper(strings.TrimSpace(h.Get("X-EO-Geo-CountryCodeAlpha3"))),
	}
	if g.Alpha2 == "" {
		g.Alpha2 = strings.ToUpper(strings.TrimSpace(h.Get("CF-IPCountry")))
	}
	if len(g.Alpha2) != 2 || g.Alpha2 == "XX" {
		g.Alpha2 = ""
	}
	if len(g.Alpha3) != 3 {
		g.Alpha3 = ""
	}
	return g, g.Alpha2 != "" || g.Alpha3 != ""
}
